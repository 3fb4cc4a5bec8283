package service

import (
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"
	"github.com/liftlabs/liftapp-backend/internal/catalog"
	"github.com/liftlabs/liftapp-backend/internal/model"
)

// Row editing errors. These are user-facing warnings, not crashes.
var (
	ErrLastRow           = errors.New("the last remaining row cannot be deleted")
	ErrImageRefImmutable = errors.New("image_ref is read-only")
	ErrRowIndex          = errors.New("row index out of range")
	ErrUnknownColumn     = errors.New("column is not part of the exam schema")
)

// TaskRef is the value auto-filled into every row's image_ref cell: the
// original filename when known, otherwise the storage path basename.
func TaskRef(task model.ImageTask) string {
	if task.OriginalFilename != nil && *task.OriginalFilename != "" {
		return *task.OriginalFilename
	}
	return path.Base(task.StoragePath)
}

// NewRow creates an empty row with a fresh client row ID and the image_ref
// cell pre-filled.
func NewRow(task model.ImageTask) model.AnnotationRow {
	return model.AnnotationRow{
		ClientRowID: uuid.New().String(),
		Cells:       map[string]string{model.ImageRefColumn: TaskRef(task)},
	}
}

// ApplyCellEdit replaces one cell value in place. Empty values are
// permitted everywhere except the immutable image_ref column; no other
// validation happens at edit time.
func ApplyCellEdit(exam catalog.Exam, rows []model.AnnotationRow, idx int, columnID, value string) error {
	if idx < 0 || idx >= len(rows) {
		return fmt.Errorf("%w: %d", ErrRowIndex, idx)
	}
	if columnID == model.ImageRefColumn {
		return ErrImageRefImmutable
	}
	if !exam.HasColumn(columnID) {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, columnID)
	}
	if rows[idx].Cells == nil {
		rows[idx].Cells = make(map[string]string)
	}
	rows[idx].Cells[columnID] = value
	return nil
}

// AddRow appends a fresh empty row.
func AddRow(rows []model.AnnotationRow, task model.ImageTask) []model.AnnotationRow {
	return append(rows, NewRow(task))
}

// DeleteRow removes the row at idx. Deleting the only remaining row is
// rejected; at least one row is always kept.
func DeleteRow(rows []model.AnnotationRow, idx int) ([]model.AnnotationRow, error) {
	if idx < 0 || idx >= len(rows) {
		return rows, fmt.Errorf("%w: %d", ErrRowIndex, idx)
	}
	if len(rows) == 1 {
		return rows, ErrLastRow
	}
	return append(rows[:idx], rows[idx+1:]...), nil
}

// sanitizeRows forces the image_ref cell to the assigned task and ensures
// every row carries a stable client row ID.
func sanitizeRows(task model.ImageTask, rows []model.AnnotationRow) []model.AnnotationRow {
	ref := TaskRef(task)
	for i := range rows {
		if rows[i].Cells == nil {
			rows[i].Cells = make(map[string]string)
		}
		rows[i].Cells[model.ImageRefColumn] = ref
		if rows[i].ClientRowID == "" {
			rows[i].ClientRowID = uuid.New().String()
		}
	}
	return rows
}
