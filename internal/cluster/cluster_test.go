package cluster

import (
	"reflect"
	"testing"

	"github.com/jfrid/logsleuth/pkg/models"
)

func rec(component, severity, message string, count int) models.ProblemRecord {
	return models.ProblemRecord{
		Component: component,
		Severity:  severity,
		Message:   message,
		Count:     count,
	}
}

func TestCluster_SeverityPartOfKey(t *testing.T) {
	c := New(nil)

	records := []models.ProblemRecord{
		rec("rails", "ERROR", "Connection refused", 5),
		rec("rails", "CRITICAL", "Connection refused", 2),
	}

	patterns := c.Cluster(records, Filter{})
	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns (severity is part of the key), got %d", len(patterns))
	}

	// Count-descending order: the ERROR group (5) first.
	if patterns[0].Severity != models.SeverityError || patterns[0].TotalCount != 5 {
		t.Errorf("first pattern = %s/%d, want ERROR/5", patterns[0].Severity, patterns[0].TotalCount)
	}
	if patterns[1].Severity != models.SeverityCritical || patterns[1].TotalCount != 2 {
		t.Errorf("second pattern = %s/%d, want CRITICAL/2", patterns[1].Severity, patterns[1].TotalCount)
	}
}

func TestCluster_MergesMatchingKeys(t *testing.T) {
	c := New(nil)

	records := []models.ProblemRecord{
		{Component: "api", Severity: "ERROR", Message: "timeout after 30s", Count: 3,
			HasCorrelation: true, ErrorCodes: []string{"E100"}},
		{Component: "api", Severity: "ERROR", Message: "timeout after 45s", Count: 4,
			HasFullContext: true, ErrorCodes: []string{"E100", "E200"}},
	}

	patterns := c.Cluster(records, Filter{})
	if len(patterns) != 1 {
		t.Fatalf("expected 1 merged pattern, got %d", len(patterns))
	}

	p := patterns[0]
	if p.TotalCount != 7 {
		t.Errorf("TotalCount = %d, want 7", p.TotalCount)
	}
	if !p.HasCorrelation || !p.HasContext {
		t.Errorf("flags not unioned: correlation=%v context=%v", p.HasCorrelation, p.HasContext)
	}
	if !reflect.DeepEqual(p.ErrorCodes, []string{"E100", "E200"}) {
		t.Errorf("ErrorCodes = %v, want [E100 E200]", p.ErrorCodes)
	}
	if len(p.Members) != 2 {
		t.Errorf("Members = %d, want 2", len(p.Members))
	}
	if p.Message != "timeout after 30s" {
		t.Errorf("representative message = %q, want first member's", p.Message)
	}
}

func TestCluster_UnknownSeverityEscalation(t *testing.T) {
	c := New(nil)

	// Unknown severities canonicalize to ERROR and merge with real ERROR
	// records under the same key.
	records := []models.ProblemRecord{
		rec("db", "notice", "disk full", 1),
		rec("db", "ERROR", "disk full", 2),
	}

	patterns := c.Cluster(records, Filter{})
	if len(patterns) != 1 {
		t.Fatalf("expected unknown severity to merge with ERROR, got %d patterns", len(patterns))
	}
	if patterns[0].Severity != models.SeverityError {
		t.Errorf("Severity = %s, want ERROR", patterns[0].Severity)
	}
	if patterns[0].TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", patterns[0].TotalCount)
	}
}

func TestCluster_Deterministic(t *testing.T) {
	c := New(nil)

	records := []models.ProblemRecord{
		rec("a", "ERROR", "x failed at 2024-01-05T10:00:00 retries=3", 2),
		rec("b", "WARNING", "slow query 1532ms", 2),
		rec("a", "ERROR", "x failed at 2024-02-09T11:30:00 retries=9", 2),
		rec("c", "CRITICAL", "oom", 1),
	}

	first := c.Cluster(records, Filter{})
	second := c.Cluster(records, Filter{})
	if !reflect.DeepEqual(first, second) {
		t.Errorf("two runs over the same input diverged:\n%v\n%v", first, second)
	}

	// The two "x failed" records only differ in timestamp and retry count
	// and must land in the same pattern.
	if len(first) != 3 {
		t.Fatalf("expected 3 patterns, got %d", len(first))
	}
}

func TestCluster_TiesKeepFirstEncounteredOrder(t *testing.T) {
	c := New(nil)

	records := []models.ProblemRecord{
		rec("z", "ERROR", "late but first", 2),
		rec("a", "ERROR", "second", 2),
		rec("m", "ERROR", "third", 2),
	}

	patterns := c.Cluster(records, Filter{})
	got := []string{patterns[0].Component, patterns[1].Component, patterns[2].Component}
	want := []string{"z", "a", "m"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tie order = %v, want input order %v", got, want)
	}
}

func TestCluster_CountInvariant(t *testing.T) {
	c := New(nil)

	records := []models.ProblemRecord{
		rec("a", "ERROR", "one", 3),
		rec("a", "ERROR", "one", 4),
		rec("b", "WARNING", "two", 1),
		rec("c", "bogus", "three", 7),
		{Component: "d", Severity: "ERROR", Count: 2}, // no message at all
	}

	patterns := c.Cluster(records, Filter{})

	sum := 0
	for _, p := range patterns {
		sum += p.TotalCount
	}
	want := 0
	for _, r := range records {
		want += r.Count
	}
	if sum != want {
		t.Errorf("sum of pattern counts = %d, want %d", sum, want)
	}
}

func TestCluster_RecordWithoutMessageStillClusters(t *testing.T) {
	c := New(nil)

	records := []models.ProblemRecord{
		{Component: "x", Severity: "ERROR", Count: 1},
		{Component: "x", Severity: "ERROR", Count: 2},
	}

	patterns := c.Cluster(records, Filter{})
	if len(patterns) != 1 {
		t.Fatalf("expected messageless records to group under the fallback, got %d patterns", len(patterns))
	}
	if patterns[0].TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", patterns[0].TotalCount)
	}
}

func TestCluster_Filters(t *testing.T) {
	c := New(nil)

	records := []models.ProblemRecord{
		rec("rails", "ERROR", "Connection refused", 5),
		rec("rails", "WARNING", "Connection refused", 2),
		rec("sidekiq", "ERROR", "job dead", 1),
		rec("rails", "ERROR", "Mysql2::Error timeout", 9),
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"no filter", Filter{}, 4},
		{"severity", Filter{Severity: "ERROR"}, 3},
		{"component", Filter{Component: "sidekiq"}, 1},
		{"search matches message case-insensitively", Filter{Search: "connection"}, 2},
		{"search matches component", Filter{Search: "sidek"}, 1},
		{"min count", Filter{MinCount: 5}, 2},
		{"combined", Filter{Severity: "ERROR", Component: "rails", MinCount: 6}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patterns := c.Cluster(records, tt.filter)
			if len(patterns) != tt.want {
				t.Errorf("got %d patterns, want %d", len(patterns), tt.want)
			}
		})
	}
}
