package model

import (
	"time"
)

// ImageRefColumn is the auto-filled, read-only column present in every
// exam schema. Its value identifies the assigned document image.
const ImageRefColumn = "image_ref"

// AnnotationRow is one transcribed table row. ClientRowID is generated by
// the client when the row is created and stays stable across edits, drafts
// and submission; together with (annotator, image) it is the conflict key
// for the remote upsert.
type AnnotationRow struct {
	ClientRowID string            `json:"client_row_id"`
	Cells       map[string]string `json:"cells"`
}

// HasContent reports whether the row carries at least one non-empty value
// outside the auto-filled image_ref column. Rows without content are
// skipped on submission.
func (r AnnotationRow) HasContent() bool {
	for col, val := range r.Cells {
		if col == ImageRefColumn {
			continue
		}
		if val != "" {
			return true
		}
	}
	return false
}

// SubmittedRow is a persisted annotation row as read back from storage.
type SubmittedRow struct {
	AnnotatorID int               `json:"annotator_id"`
	ImageID     int               `json:"image_id"`
	ClientRowID string            `json:"client_row_id"`
	Cells       map[string]string `json:"cells"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// RowSource identifies which load path produced the rows for a session.
type RowSource string

const (
	RowSourceDraft     RowSource = "draft"     // Local draft took precedence
	RowSourceSubmitted RowSource = "submitted" // Previously-submitted rows
	RowSourceFresh     RowSource = "fresh"     // One empty row, image_ref pre-filled
)

// CellEditRequest applies one cell edit to the active session's rows.
type CellEditRequest struct {
	ColumnID string `json:"column_id" binding:"required"`
	Value    string `json:"value"`
}

// SaveDraftRequest is the payload for persisting the in-progress rows.
type SaveDraftRequest struct {
	Rows []AnnotationRow `json:"rows" binding:"required,min=1,dive"`
}

// SubmitRequest is the payload for submitting all annotation rows.
type SubmitRequest struct {
	Rows []AnnotationRow `json:"rows" binding:"required,min=1,dive"`
}

// CloseRequest is the payload for closing the session.
type CloseRequest struct {
	Reason     CompletionStatus `json:"reason" binding:"required,oneof=submitted timed_out"`
	Rows       []AnnotationRow  `json:"rows" binding:"omitempty,dive"`
	Keystrokes int              `json:"keystrokes" binding:"omitempty,min=0"`
}
