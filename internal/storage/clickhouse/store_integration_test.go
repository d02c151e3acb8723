package clickhouse

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jfrid/logsleuth/pkg/models"
)

// Requires a running ClickHouse; set CLICKHOUSE_TEST_ADDR to enable.
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("CLICKHOUSE_TEST_ADDR")
	if addr == "" {
		t.Skip("CLICKHOUSE_TEST_ADDR not set, skipping integration test")
	}

	cfg := DefaultConfig()
	cfg.Addr = addr

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := NewStore(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestIntegration_SaveGetList(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	session := "it-" + uuid.NewString()
	run := &models.Run{
		ID:      id,
		Session: session,
		Kind:    models.KindPrimary,
		Status:  models.StatusCompleted,
		Patterns: []models.Pattern{
			{Key: "api:ERROR:timeout after <NUM>s", Message: "timeout after 30s",
				Component: "api", Severity: "ERROR", TotalCount: 7},
		},
		TotalErrors: 7,
		StartedAt:   time.Now().Add(-time.Minute),
		CompletedAt: time.Now(),
	}

	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() error: %v", err)
	}

	got, err := store.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if got.Session != session || len(got.Patterns) != 1 {
		t.Errorf("loaded run = %+v", got)
	}

	runs, err := store.ListRuns(ctx, session, 10)
	if err != nil {
		t.Fatalf("ListRuns() error: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("ListRuns() returned %d runs, want 1", len(runs))
	}
}
