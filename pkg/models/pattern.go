package models

// Pattern is a cluster of ProblemRecords sharing component, severity and
// normalized message. Patterns are derived locally and never transmitted.
type Pattern struct {
	Key            string          `json:"key"`
	Message        string          `json:"message"`
	Component      string          `json:"component"`
	Severity       string          `json:"severity"`
	TotalCount     int             `json:"total_count"`
	HasCorrelation bool            `json:"has_correlation"`
	HasContext     bool            `json:"has_context"`
	ErrorCodes     []string        `json:"error_codes,omitempty"`
	Members        []ProblemRecord `json:"members,omitempty"`
}
