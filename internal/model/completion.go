package model

import (
	"time"
)

// CompletionStatus enumerates how an exam attempt ended.
type CompletionStatus string

const (
	CompletionSubmitted CompletionStatus = "submitted"
	CompletionTimedOut  CompletionStatus = "timed_out"
)

// CompletionRecord is the durable record of a finished exam attempt.
// One record per (annotator, exam); a retake overwrites the prior one.
type CompletionRecord struct {
	AnnotatorID     int              `json:"annotator_id"`
	ExamID          int              `json:"exam_id"`
	ExamCode        string           `json:"exam_code,omitempty"`
	ImageID         int              `json:"image_id"`
	DurationSeconds int              `json:"duration_seconds"`
	Status          CompletionStatus `json:"status"`
	CompletedAt     time.Time        `json:"completed_at"`
	Keystrokes      int              `json:"keystrokes"`
	Score           *float64         `json:"score,omitempty"`
	CellsCorrect    *int             `json:"cells_correct,omitempty"`
	CellsTotal      *int             `json:"cells_total,omitempty"`
}
