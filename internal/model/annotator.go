package model

import (
	"time"
)

// Annotator is a registered end-user identity allowed to take exams.
// Created lazily on first login: one record per external identifier.
type Annotator struct {
	ID                 int        `json:"id"`
	ExternalID         string     `json:"external_id"`
	CreatedAt          time.Time  `json:"created_at"`
	OverallCompletedAt *time.Time `json:"overall_completed_at,omitempty"`
}

// AnnotatorLoginRequest is the payload for the identifier-only login.
type AnnotatorLoginRequest struct {
	ExternalID string `json:"external_id" binding:"required,min=2,max=64"`
}
