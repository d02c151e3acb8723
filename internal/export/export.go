// Package export writes analysis runs as JSON or Markdown artifacts for
// offline review.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jfrid/logsleuth/pkg/models"
)

// JobMeta is the job metadata carried in an artifact.
type JobMeta struct {
	Kind     models.JobKind   `json:"kind"`
	Status   models.JobStatus `json:"status"`
	Progress int              `json:"progress"`
	Message  string           `json:"message,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Artifact is the exported dump of one analysis run.
type Artifact struct {
	Timestamp time.Time        `json:"timestamp"`
	Session   string           `json:"session"`
	Job       JobMeta          `json:"job"`
	Patterns  []models.Pattern `json:"patterns"`
}

// Build assembles an artifact from the current job snapshot and its
// clustered patterns.
func Build(session string, job models.Job, patterns []models.Pattern) Artifact {
	return Artifact{
		Timestamp: time.Now().UTC(),
		Session:   session,
		Job: JobMeta{
			Kind:     job.Kind,
			Status:   job.Status,
			Progress: job.Progress,
			Message:  job.Message,
			Error:    job.Error,
		},
		Patterns: patterns,
	}
}

// WriteJSON writes the artifact as indented JSON.
func WriteJSON(w io.Writer, artifact Artifact) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(artifact); err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}
	return nil
}

// WriteMarkdown writes the artifact as a Markdown report with one table
// row per pattern.
func WriteMarkdown(w io.Writer, artifact Artifact) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Error Pattern Report\n\n")
	fmt.Fprintf(&b, "- **Session**: %s\n", artifact.Session)
	fmt.Fprintf(&b, "- **Job**: %s (%s)\n", artifact.Job.Kind, artifact.Job.Status)
	if artifact.Job.Message != "" {
		fmt.Fprintf(&b, "- **Message**: %s\n", artifact.Job.Message)
	}
	if artifact.Job.Error != "" {
		fmt.Fprintf(&b, "- **Error**: %s\n", artifact.Job.Error)
	}
	fmt.Fprintf(&b, "- **Exported**: %s\n\n", artifact.Timestamp.Format(time.RFC3339))

	fmt.Fprintf(&b, "## Patterns (%d)\n\n", len(artifact.Patterns))
	if len(artifact.Patterns) > 0 {
		b.WriteString("| Severity | Component | Count | Message |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, p := range artifact.Patterns {
			fmt.Fprintf(&b, "| %s | %s | %d | %s |\n",
				p.Severity, p.Component, p.TotalCount, escapeCell(p.Message))
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("writing markdown: %w", err)
	}
	return nil
}

// escapeCell keeps pattern messages from breaking the table layout.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
