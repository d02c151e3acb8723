package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jfrid/logsleuth/pkg/models"
)

func TestSaveGetList(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	runs := []*models.Run{
		{ID: "a", Session: "s1", Status: models.StatusCompleted, CompletedAt: now},
		{ID: "b", Session: "s1", Status: models.StatusPartial, CompletedAt: now.Add(time.Minute)},
		{ID: "c", Session: "s2", Status: models.StatusCompleted, CompletedAt: now},
	}
	for _, run := range runs {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun(%s) error: %v", run.ID, err)
		}
	}

	got, err := store.GetRun(ctx, "b")
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if got.Status != models.StatusPartial {
		t.Errorf("GetRun(b).Status = %s", got.Status)
	}

	listed, err := store.ListRuns(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ListRuns() error: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "b" {
		t.Errorf("ListRuns(s1) = %v", listed)
	}
}

func TestNotFoundAndClear(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.GetRun(ctx, "nope"); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}

	store.SaveRun(ctx, &models.Run{ID: "a", Session: "s1"})
	store.Clear(ctx)
	if runs, _ := store.ListRuns(ctx, "", 0); len(runs) != 0 {
		t.Errorf("Clear left %d runs", len(runs))
	}
}

// Stored runs must not alias caller memory.
func TestCopiesOnWrite(t *testing.T) {
	store := New()
	ctx := context.Background()

	run := &models.Run{ID: "a", Session: "s1", Message: "original"}
	store.SaveRun(ctx, run)
	run.Message = "mutated"

	got, _ := store.GetRun(ctx, "a")
	if got.Message != "original" {
		t.Errorf("stored run aliased caller memory: %q", got.Message)
	}
}
