// Package memory provides an in-memory run-history store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jfrid/logsleuth/pkg/models"
)

// Store keeps runs in a map. Suitable for tests and one-shot CLI use.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*models.Run
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{runs: make(map[string]*models.Run)}
}

// SaveRun stores or replaces a run.
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, models.ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

// ListRuns returns runs most recent first.
func (s *Store) ListRuns(ctx context.Context, session string, limit int) ([]*models.Run, error) {
	s.mu.RLock()
	out := make([]*models.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if session != "" && run.Session != session {
			continue
		}
		copied := *run
		out = append(out, &copied)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Clear drops everything.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = make(map[string]*models.Run)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
