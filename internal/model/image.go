package model

import (
	"time"
)

// ImageTask is one scanned document image assigned to an annotator for an
// exam attempt.
type ImageTask struct {
	ImageID          int     `json:"image_id"`
	ExamID           int     `json:"exam_id"`
	StoragePath      string  `json:"storage_path"`
	OriginalFilename *string `json:"original_filename,omitempty"`
}

// Image is the persisted document image record.
type Image struct {
	ID               int       `json:"id"`
	ExamID           int       `json:"exam_id"`
	StoragePath      string    `json:"storage_path"`
	OriginalFilename *string   `json:"original_filename,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
