// Package cluster groups problem records into named error patterns.
package cluster

import (
	"sort"
	"strings"

	"github.com/jfrid/logsleuth/internal/normalize"
	"github.com/jfrid/logsleuth/pkg/models"
)

// Filter narrows the record list before clustering. Zero values mean "no
// constraint".
type Filter struct {
	// Severity matches exactly against the canonical severity.
	Severity string
	// Component matches exactly.
	Component string
	// Search is a case-insensitive substring match against the extracted and
	// normalized message, the raw sample line and the component.
	Search string
	// MinCount drops records with fewer collapsed occurrences.
	MinCount int
}

// Clusterer groups records by component, severity and normalized message.
// Clustering is deterministic: the same input and filter always yield the
// same patterns in the same order.
type Clusterer struct {
	norm *normalize.Normalizer
}

// New creates a Clusterer using the given normalizer.
func New(n *normalize.Normalizer) *Clusterer {
	if n == nil {
		n = normalize.New()
	}
	return &Clusterer{norm: n}
}

// Cluster filters the records and emits patterns sorted by total count
// descending, ties broken by first-encountered order.
func (c *Clusterer) Cluster(records []models.ProblemRecord, f Filter) []models.Pattern {
	search := strings.ToLower(f.Search)

	groups := make(map[string]*models.Pattern)
	var order []string

	for i := range records {
		rec := &records[i]
		severity := models.CanonicalSeverity(rec.Severity)

		if f.Severity != "" && severity != f.Severity {
			continue
		}
		if f.Component != "" && rec.Component != f.Component {
			continue
		}
		if f.MinCount > 0 && rec.Count < f.MinCount {
			continue
		}

		message := normalize.ExtractMessage(rec)
		normalized := c.norm.Normalize(message)
		if search != "" && !matchesSearch(rec, message, normalized, search) {
			continue
		}

		key := rec.Component + ":" + severity + ":" + normalized

		group, ok := groups[key]
		if !ok {
			group = &models.Pattern{
				Key:       key,
				Message:   message,
				Component: rec.Component,
				Severity:  severity,
			}
			groups[key] = group
			order = append(order, key)
		}

		group.TotalCount += rec.Count
		group.HasCorrelation = group.HasCorrelation || rec.HasCorrelation
		group.HasContext = group.HasContext || rec.HasFullContext
		group.ErrorCodes = unionCodes(group.ErrorCodes, rec.ErrorCodes)
		if models.MoreSevere(severity, group.Severity) {
			group.Severity = severity
		}
		group.Members = append(group.Members, *rec)
	}

	patterns := make([]models.Pattern, 0, len(order))
	for _, key := range order {
		patterns = append(patterns, *groups[key])
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].TotalCount > patterns[j].TotalCount
	})

	return patterns
}

// matchesSearch implements the free-text filter over the extracted and
// normalized message forms, the raw sample and the component.
func matchesSearch(rec *models.ProblemRecord, message, normalized, search string) bool {
	if strings.Contains(strings.ToLower(message), search) {
		return true
	}
	if strings.Contains(strings.ToLower(normalized), search) {
		return true
	}
	if strings.Contains(strings.ToLower(rec.RawLine()), search) {
		return true
	}
	return strings.Contains(strings.ToLower(rec.Component), search)
}

// unionCodes appends codes not already present, preserving order.
func unionCodes(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[c] = true
	}
	for _, c := range incoming {
		if !seen[c] {
			existing = append(existing, c)
			seen[c] = true
		}
	}
	return existing
}
