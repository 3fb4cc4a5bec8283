package model

import (
	"time"
)

// AnswerRow is one administrator-authored correct annotation row for an
// image, used by the scoring worker.
type AnswerRow struct {
	ID      int               `json:"id"`
	ImageID int               `json:"image_id"`
	RowNo   int               `json:"row_no"`
	Cells   map[string]string `json:"cells"`
}

// AnswerKeySummary lists one image together with its answer-row count.
type AnswerKeySummary struct {
	ImageID          int       `json:"image_id"`
	ExamID           int       `json:"exam_id"`
	ExamCode         string    `json:"exam_code"`
	StoragePath      string    `json:"storage_path"`
	OriginalFilename *string   `json:"original_filename,omitempty"`
	RowCount         int       `json:"row_count"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SaveAnswerKeyRequest replaces the full answer-row set for an image.
// ImageID is zero when a new image record should be created from the
// uploaded file referenced by StoragePath.
type SaveAnswerKeyRequest struct {
	ExamCode         string              `json:"exam_code" binding:"required"`
	ImageID          int                 `json:"image_id" binding:"omitempty,min=1"`
	StoragePath      string              `json:"storage_path" binding:"omitempty"`
	OriginalFilename string              `json:"original_filename" binding:"omitempty,max=255"`
	Rows             []map[string]string `json:"rows" binding:"required,min=1"`
}
