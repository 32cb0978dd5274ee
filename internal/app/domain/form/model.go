package form

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a submission.
type Status string

const (
	// StatusInProgress marks a draft that can still be edited in place.
	StatusInProgress Status = "in_progress"
	// StatusSubmitted marks a finalized submission. Rows never leave this
	// state; a new draft after finalization is a new row.
	StatusSubmitted Status = "submitted"
)

// Definition is a dynamic form as published to clients. Schema is opaque
// structured data (a SurveyJS-style document); the service only inspects it
// to count fields and snapshot it.
type Definition struct {
	ID        string          `json:"form_id"`
	Name      string          `json:"name"`
	Schema    json.RawMessage `json:"schema_json"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Submission is one user's answer set for a form, optionally scoped to an
// incorporation case. SchemaSnapshot and SchemaHash are captured once at
// first draft creation and are immutable thereafter.
type Submission struct {
	ID              string          `json:"submission_id"`
	FormID          string          `json:"form_id"`
	UserID          string          `json:"user_id"`
	IncorporationID string          `json:"incorporation_id,omitempty"`
	Status          Status          `json:"status"`
	Answers         json.RawMessage `json:"data_json"`
	SchemaSnapshot  json.RawMessage `json:"schema_snapshot,omitempty"`
	SchemaHash      string          `json:"schema_hash,omitempty"`
	ProgressPercent *int            `json:"progress_percent,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	SubmittedAt     *time.Time      `json:"submitted_at,omitempty"`
}
