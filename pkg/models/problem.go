package models

// Severity levels reported by the analysis engine, most severe first.
const (
	SeverityCritical = "CRITICAL"
	SeverityError    = "ERROR"
	SeverityWarning  = "WARNING"
)

// severityRank orders severities for escalation. Higher wins.
var severityRank = map[string]int{
	SeverityCritical: 3,
	SeverityError:    2,
	SeverityWarning:  1,
}

// CanonicalSeverity maps a raw severity string to one of the known levels.
// Unknown values are treated as ERROR.
func CanonicalSeverity(s string) string {
	if _, ok := severityRank[s]; ok {
		return s
	}
	return SeverityError
}

// MoreSevere reports whether severity a outranks severity b.
// Both arguments are expected to be canonical.
func MoreSevere(a, b string) bool {
	return severityRank[a] > severityRank[b]
}

// Sample is one raw occurrence attached to a ProblemRecord.
type Sample struct {
	Message      string `json:"message,omitempty"`
	CleanMessage string `json:"clean_message,omitempty"`
	SampleLine   string `json:"sample_line,omitempty"`
	FullLine     string `json:"full_line,omitempty"`
}

// ProblemRecord is one detected error occurrence bundle as reported by the
// backend. Records are immutable once received and live only as long as the
// job result that carried them.
type ProblemRecord struct {
	Component      string   `json:"component"`
	Severity       string   `json:"severity"`
	Count          int      `json:"count"`
	PatternID      string   `json:"pattern_id,omitempty"`
	Message        string   `json:"message,omitempty"`
	CleanMessage   string   `json:"clean_message,omitempty"`
	SampleLine     string   `json:"sample_line,omitempty"`
	FullLine       string   `json:"full_line,omitempty"`
	Samples        []Sample `json:"samples,omitempty"`
	Files          []string `json:"files,omitempty"`
	HasCorrelation bool     `json:"has_correlation,omitempty"`
	CorrelationID  string   `json:"correlation_id,omitempty"`
	HasFullContext bool     `json:"has_full_context,omitempty"`
	ContextBefore  []string `json:"context_before,omitempty"`
	ContextAfter   []string `json:"context_after,omitempty"`
	StackTrace     []string `json:"stack_trace,omitempty"`
	ErrorCodes     []string `json:"error_codes,omitempty"`
}

// RawLine returns the record's raw sample text, preferring full_line.
func (p *ProblemRecord) RawLine() string {
	if p.FullLine != "" {
		return p.FullLine
	}
	return p.SampleLine
}

// RawLine returns the sample's raw text, preferring full_line.
func (s *Sample) RawLine() string {
	if s.FullLine != "" {
		return s.FullLine
	}
	return s.SampleLine
}
