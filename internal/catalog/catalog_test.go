package catalog

import (
	"testing"
)

func TestCatalogCodesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, e := range All() {
		if seen[e.Code] {
			t.Errorf("duplicate exam code %q", e.Code)
		}
		seen[e.Code] = true
	}
}

func TestEverySchemaStartsWithImageRef(t *testing.T) {
	for _, e := range All() {
		if len(e.Columns) == 0 {
			t.Fatalf("exam %q has no columns", e.Code)
		}
		first := e.Columns[0]
		if first.ID != "image_ref" {
			t.Errorf("exam %q: first column = %q, want image_ref", e.Code, first.ID)
		}
		if !first.ReadOnly || first.Type != ColumnAuto {
			t.Errorf("exam %q: image_ref must be read-only auto column", e.Code)
		}
	}
}

func TestColumnIDsAreUniquePerExam(t *testing.T) {
	for _, e := range All() {
		seen := make(map[string]bool)
		for _, c := range e.Columns {
			if seen[c.ID] {
				t.Errorf("exam %q: duplicate column %q", e.Code, c.ID)
			}
			seen[c.ID] = true
		}
	}
}

func TestByCode(t *testing.T) {
	e, err := ByCode("baptism")
	if err != nil {
		t.Fatalf("ByCode(baptism): %v", err)
	}
	if e.DurationMinutes <= 0 {
		t.Errorf("baptism duration = %d, want > 0", e.DurationMinutes)
	}

	if _, err := ByCode("census"); err == nil {
		t.Error("ByCode(census) should fail for an unknown code")
	}
}
