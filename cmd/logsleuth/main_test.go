package main

import (
	"testing"
	"time"

	"github.com/jfrid/logsleuth/pkg/models"
)

func TestNewRunRecordsStartTime(t *testing.T) {
	startedAt := time.Now().UTC().Add(-3 * time.Minute)
	job := models.Job{Kind: models.KindPrimary, Status: models.StatusCompleted, Message: "analysis complete"}
	patterns := []models.Pattern{{TotalCount: 5}, {TotalCount: 2}}

	run := newRun("sess-1", job, patterns, startedAt)

	if !run.StartedAt.Equal(startedAt) {
		t.Errorf("StartedAt = %v, want the captured start time %v", run.StartedAt, startedAt)
	}
	if !run.CompletedAt.After(run.StartedAt) {
		t.Errorf("CompletedAt %v is not after StartedAt %v", run.CompletedAt, run.StartedAt)
	}
	if run.TotalErrors != 7 {
		t.Errorf("TotalErrors = %d, want 7", run.TotalErrors)
	}
	if run.ID == "" {
		t.Error("run has no id")
	}
}

func TestParseIndices(t *testing.T) {
	tests := []struct {
		arg     string
		want    []int
		wantErr bool
	}{
		{"", nil, false},
		{"0,2,5", []int{0, 2, 5}, false},
		{" 1 , 3 ", []int{1, 3}, false},
		{"1,x", nil, true},
	}
	for _, tt := range tests {
		got, err := parseIndices(tt.arg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseIndices(%q) returned nil error", tt.arg)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseIndices(%q) error: %v", tt.arg, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseIndices(%q) = %v, want %v", tt.arg, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseIndices(%q) = %v, want %v", tt.arg, got, tt.want)
				break
			}
		}
	}
}
