package models

import "encoding/json"

// JobKind identifies one of the two tracked backend jobs.
type JobKind string

const (
	KindPrimary       JobKind = "primary"
	KindAISubanalysis JobKind = "ai-subanalysis"
)

// JobStatus is the lifecycle state of a tracked job.
type JobStatus string

const (
	StatusNotStarted JobStatus = "not_started"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusPartial    JobStatus = "partial"
)

// Terminal reports whether the status ends the job's lifecycle until a
// retry or clear.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPartial
}

// Job is the current snapshot of one tracked backend task.
type Job struct {
	Kind     JobKind         `json:"kind"`
	Status   JobStatus       `json:"status"`
	Progress int             `json:"progress"`
	Message  string          `json:"message,omitempty"`
	Result   *AnalysisResult `json:"results,omitempty"`
	Error    string          `json:"error,omitempty"`

	// Extra carries job-kind-specific progress fields (patterns_total,
	// patterns_analyzed, total_errors, ...) passed through opaquely.
	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// Start response status values reported by the backend.
const (
	StartAlreadyCompleted = "already_completed"
	StartAlreadyRunning   = "already_running"
	StartProcessing       = "processing"
)

// StartRequest is the optional body of an AI sub-analysis start call.
// A nil SelectedIndices means "analyze all patterns".
type StartRequest struct {
	SelectedIndices []int `json:"selected_indices"`
}

// StartResponse is the backend's answer to a job start call.
type StartResponse struct {
	Status   string          `json:"status"`
	Results  *AnalysisResult `json:"results,omitempty"`
	Progress int             `json:"progress,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// StatusSnapshot is one status payload for a job, delivered over the push
// channel or returned by a status poll.
type StatusSnapshot struct {
	Type     string          `json:"type,omitempty"`
	Status   JobStatus       `json:"status,omitempty"`
	Progress int             `json:"progress,omitempty"`
	Message  string          `json:"message,omitempty"`
	Results  *AnalysisResult `json:"results,omitempty"`
	Error    string          `json:"error,omitempty"`

	// Extra holds any field not named above, preserved verbatim.
	Extra map[string]json.RawMessage `json:"-"`
}

// Keepalive reports whether the snapshot is a heartbeat with no status
// content.
func (s *StatusSnapshot) Keepalive() bool {
	return s.Type == "ping" || s.Status == ""
}

// snapshotKnownFields are the keys owned by StatusSnapshot itself; anything
// else lands in Extra.
var snapshotKnownFields = map[string]bool{
	"type": true, "status": true, "progress": true,
	"message": true, "results": true, "error": true,
}

// UnmarshalJSON decodes the known fields and captures the rest into Extra.
func (s *StatusSnapshot) UnmarshalJSON(data []byte) error {
	type plain StatusSnapshot
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = StatusSnapshot(p)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if snapshotKnownFields[k] {
			continue
		}
		if s.Extra == nil {
			s.Extra = make(map[string]json.RawMessage)
		}
		s.Extra[k] = v
	}
	return nil
}

// MarshalJSON emits the known fields plus every Extra field at the top
// level, so a snapshot round-trips byte-compatibly.
func (s StatusSnapshot) MarshalJSON() ([]byte, error) {
	type plain StatusSnapshot
	base, err := json.Marshal(plain(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}
