package models

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run id does not exist in the history
// store.
var ErrRunNotFound = errors.New("run not found")

// Run is one archived analysis run, persisted for offline review.
type Run struct {
	ID          string    `json:"id"`
	Session     string    `json:"session"`
	Kind        JobKind   `json:"kind"`
	Status      JobStatus `json:"status"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	Patterns    []Pattern `json:"patterns"`
	TotalErrors int       `json:"total_errors"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}
