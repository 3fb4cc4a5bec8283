package service

import (
	"errors"
	"testing"

	"github.com/liftlabs/liftapp-backend/internal/catalog"
	"github.com/liftlabs/liftapp-backend/internal/model"
)

func testTask() model.ImageTask {
	name := "reg_014.jpg"
	return model.ImageTask{ImageID: 77, ExamID: 1, StoragePath: "uploads/baptism/abc123.jpg", OriginalFilename: &name}
}

func TestTaskRefPrefersOriginalFilename(t *testing.T) {
	task := testTask()
	if got := TaskRef(task); got != "reg_014.jpg" {
		t.Errorf("TaskRef = %q, want reg_014.jpg", got)
	}

	task.OriginalFilename = nil
	if got := TaskRef(task); got != "abc123.jpg" {
		t.Errorf("TaskRef without original filename = %q, want abc123.jpg", got)
	}
}

func TestNewRowPrefillsImageRef(t *testing.T) {
	row := NewRow(testTask())
	if row.ClientRowID == "" {
		t.Error("new row has no client row ID")
	}
	if row.Cells[model.ImageRefColumn] != "reg_014.jpg" {
		t.Errorf("image_ref = %q, want reg_014.jpg", row.Cells[model.ImageRefColumn])
	}
}

func TestApplyCellEdit(t *testing.T) {
	exam, err := catalog.ByCode("baptism")
	if err != nil {
		t.Fatal(err)
	}
	rows := []model.AnnotationRow{NewRow(testTask())}

	if err := ApplyCellEdit(exam, rows, 0, "given", "Ana"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if rows[0].Cells["given"] != "Ana" {
		t.Errorf("cell = %q, want Ana", rows[0].Cells["given"])
	}

	// Clearing a cell is a legal edit.
	if err := ApplyCellEdit(exam, rows, 0, "given", ""); err != nil {
		t.Fatalf("clearing edit: %v", err)
	}

	if err := ApplyCellEdit(exam, rows, 0, model.ImageRefColumn, "forged.jpg"); !errors.Is(err, ErrImageRefImmutable) {
		t.Errorf("image_ref edit: err = %v, want ErrImageRefImmutable", err)
	}
	if err := ApplyCellEdit(exam, rows, 0, "groom_given", "x"); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("foreign column edit: err = %v, want ErrUnknownColumn", err)
	}
	if err := ApplyCellEdit(exam, rows, 3, "given", "x"); !errors.Is(err, ErrRowIndex) {
		t.Errorf("out-of-range edit: err = %v, want ErrRowIndex", err)
	}
}

func TestDeleteRowKeepsAtLeastOne(t *testing.T) {
	task := testTask()
	rows := AddRow([]model.AnnotationRow{NewRow(task)}, task)

	rows, err := DeleteRow(rows, 1)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len = %d, want 1", len(rows))
	}

	if _, err := DeleteRow(rows, 0); !errors.Is(err, ErrLastRow) {
		t.Errorf("deleting last row: err = %v, want ErrLastRow", err)
	}
}

func TestSanitizeRowsRestoresImageRefAndIDs(t *testing.T) {
	task := testTask()
	rows := []model.AnnotationRow{
		{Cells: map[string]string{model.ImageRefColumn: "tampered.jpg", "given": "Ana"}},
		{ClientRowID: "keep-me", Cells: nil},
	}

	rows = sanitizeRows(task, rows)

	if rows[0].Cells[model.ImageRefColumn] != "reg_014.jpg" {
		t.Errorf("image_ref = %q, want reg_014.jpg", rows[0].Cells[model.ImageRefColumn])
	}
	if rows[0].ClientRowID == "" {
		t.Error("missing client row ID was not assigned")
	}
	if rows[1].ClientRowID != "keep-me" {
		t.Errorf("existing client row ID changed to %q", rows[1].ClientRowID)
	}
	if rows[1].Cells[model.ImageRefColumn] != "reg_014.jpg" {
		t.Error("nil cell map not initialized with image_ref")
	}
}
