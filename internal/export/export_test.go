package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jfrid/logsleuth/pkg/models"
)

func sampleArtifact() Artifact {
	return Build("sess-1",
		models.Job{Kind: models.KindPrimary, Status: models.StatusCompleted, Progress: 100, Message: "analysis complete"},
		[]models.Pattern{
			{Key: "rails:ERROR:Connection refused", Message: "Connection refused",
				Component: "rails", Severity: "ERROR", TotalCount: 5},
			{Key: "api:CRITICAL:oom | killed", Message: "oom | killed",
				Component: "api", Severity: "CRITICAL", TotalCount: 2},
		})
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleArtifact()); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("artifact is not valid JSON: %v", err)
	}

	for _, field := range []string{"timestamp", "session", "job", "patterns"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("artifact is missing field %q", field)
		}
	}

	patterns, ok := decoded["patterns"].([]any)
	if !ok || len(patterns) != 2 {
		t.Fatalf("patterns = %v", decoded["patterns"])
	}
	first := patterns[0].(map[string]any)
	for _, field := range []string{"message", "severity", "component", "total_count"} {
		if _, ok := first[field]; !ok {
			t.Errorf("pattern is missing field %q", field)
		}
	}
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, sampleArtifact()); err != nil {
		t.Fatalf("WriteMarkdown() error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# Error Pattern Report",
		"sess-1",
		"| ERROR | rails | 5 | Connection refused |",
		"Patterns (2)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}

	// Pipes inside a message must not break the table.
	if !strings.Contains(out, `oom \| killed`) {
		t.Errorf("cell escaping failed:\n%s", out)
	}
}

func TestWriteMarkdown_NoPatterns(t *testing.T) {
	var buf bytes.Buffer
	artifact := Build("sess-1", models.Job{Kind: models.KindPrimary, Status: models.StatusFailed, Error: "boom"}, nil)
	if err := WriteMarkdown(&buf, artifact); err != nil {
		t.Fatalf("WriteMarkdown() error: %v", err)
	}
	if !strings.Contains(buf.String(), "Patterns (0)") {
		t.Errorf("empty report malformed:\n%s", buf.String())
	}
}
