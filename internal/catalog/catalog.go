// Package catalog defines the static exam catalog. Exam codes and column
// schemas are fixed at build time; the numeric database key for each exam
// is resolved lazily at runtime and cached for the process lifetime.
package catalog

import (
	"fmt"
)

// ColumnType hints how a column is edited and scored.
type ColumnType string

const (
	ColumnText ColumnType = "text"
	ColumnDate ColumnType = "date"
	ColumnInt  ColumnType = "int"
	ColumnAuto ColumnType = "auto" // filled by the system, read-only
)

// Column is one typed field of an exam schema.
type Column struct {
	ID       string     `json:"id"`
	Label    string     `json:"label"`
	Type     ColumnType `json:"type"`
	ReadOnly bool       `json:"read_only"`
}

// Exam is one catalog entry: a named category of annotation task with its
// own ordered column schema.
type Exam struct {
	Code            string   `json:"code"`
	DisplayName     string   `json:"display_name"`
	DurationMinutes int      `json:"duration_minutes"`
	Columns         []Column `json:"columns"`
}

// HasColumn reports whether id is part of the exam schema.
func (e Exam) HasColumn(id string) bool {
	for _, c := range e.Columns {
		if c.ID == id {
			return true
		}
	}
	return false
}

func imageRef() Column {
	return Column{ID: "image_ref", Label: "Image", Type: ColumnAuto, ReadOnly: true}
}

// exams is the catalog, in display order. Every schema starts with the
// auto-filled image_ref column.
var exams = []Exam{
	{
		Code:            "baptism",
		DisplayName:     "Baptism Records",
		DurationMinutes: 40,
		Columns: []Column{
			imageRef(),
			{ID: "entry_no", Label: "Entry No.", Type: ColumnInt},
			{ID: "baptism_date", Label: "Baptism Date", Type: ColumnDate},
			{ID: "given", Label: "Given Name", Type: ColumnText},
			{ID: "surname", Label: "Surname", Type: ColumnText},
			{ID: "father_name", Label: "Father", Type: ColumnText},
			{ID: "mother_name", Label: "Mother", Type: ColumnText},
			{ID: "parish", Label: "Parish", Type: ColumnText},
		},
	},
	{
		Code:            "marriage",
		DisplayName:     "Marriage Records",
		DurationMinutes: 40,
		Columns: []Column{
			imageRef(),
			{ID: "entry_no", Label: "Entry No.", Type: ColumnInt},
			{ID: "marriage_date", Label: "Marriage Date", Type: ColumnDate},
			{ID: "groom_given", Label: "Groom Given Name", Type: ColumnText},
			{ID: "groom_surname", Label: "Groom Surname", Type: ColumnText},
			{ID: "bride_given", Label: "Bride Given Name", Type: ColumnText},
			{ID: "bride_surname", Label: "Bride Surname", Type: ColumnText},
			{ID: "parish", Label: "Parish", Type: ColumnText},
		},
	},
	{
		Code:            "confirmation",
		DisplayName:     "Confirmation Records",
		DurationMinutes: 40,
		Columns: []Column{
			imageRef(),
			{ID: "entry_no", Label: "Entry No.", Type: ColumnInt},
			{ID: "confirmation_date", Label: "Confirmation Date", Type: ColumnDate},
			{ID: "given", Label: "Given Name", Type: ColumnText},
			{ID: "surname", Label: "Surname", Type: ColumnText},
			{ID: "sponsor_name", Label: "Sponsor", Type: ColumnText},
			{ID: "parish", Label: "Parish", Type: ColumnText},
		},
	},
	{
		Code:            "burial",
		DisplayName:     "Burial Records",
		DurationMinutes: 40,
		Columns: []Column{
			imageRef(),
			{ID: "entry_no", Label: "Entry No.", Type: ColumnInt},
			{ID: "death_date", Label: "Death Date", Type: ColumnDate},
			{ID: "burial_date", Label: "Burial Date", Type: ColumnDate},
			{ID: "given", Label: "Given Name", Type: ColumnText},
			{ID: "surname", Label: "Surname", Type: ColumnText},
			{ID: "age", Label: "Age", Type: ColumnInt},
			{ID: "parish", Label: "Parish", Type: ColumnText},
		},
	},
}

// All returns the catalog in display order.
func All() []Exam {
	out := make([]Exam, len(exams))
	copy(out, exams)
	return out
}

// ByCode looks up one exam by its stable string key.
func ByCode(code string) (Exam, error) {
	for _, e := range exams {
		if e.Code == code {
			return e, nil
		}
	}
	return Exam{}, fmt.Errorf("unknown exam code %q", code)
}
