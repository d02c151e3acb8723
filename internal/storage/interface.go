// Package storage defines the run-history store for completed analyses.
package storage

import (
	"context"

	"github.com/jfrid/logsleuth/pkg/models"
)

// Storage archives finished analysis runs for offline review.
// Implementations must be safe for concurrent use.
type Storage interface {
	// SaveRun persists one finished run.
	SaveRun(ctx context.Context, run *models.Run) error
	// GetRun fetches a run by id, returning models.ErrRunNotFound when it
	// does not exist.
	GetRun(ctx context.Context, id string) (*models.Run, error)
	// ListRuns returns runs for a session, most recent first. An empty
	// session matches everything; limit <= 0 means no limit.
	ListRuns(ctx context.Context, session string, limit int) ([]*models.Run, error)

	// Clear removes all stored runs.
	Clear(ctx context.Context) error

	// Close releases the backing resources.
	Close() error
}
