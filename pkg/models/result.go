package models

import "encoding/json"

// AnalysisResult is the result payload of a completed (or partially
// completed) analysis job.
type AnalysisResult struct {
	Problems           []ProblemRecord   `json:"problems"`
	MonitoringProblems []ProblemRecord   `json:"monitoring_problems,omitempty"`
	GitlabProblems     int               `json:"gitlab_problems,omitempty"`
	MonitoringIssues   int               `json:"monitoring_issues,omitempty"`
	CorrelationGroups  []json.RawMessage `json:"correlation_groups,omitempty"`
	Metadata           map[string]any    `json:"metadata,omitempty"`
}

// AllProblems returns the combined problem list, analysis problems first.
func (r *AnalysisResult) AllProblems() []ProblemRecord {
	if len(r.MonitoringProblems) == 0 {
		return r.Problems
	}
	out := make([]ProblemRecord, 0, len(r.Problems)+len(r.MonitoringProblems))
	out = append(out, r.Problems...)
	out = append(out, r.MonitoringProblems...)
	return out
}
