// Package normalize extracts representative messages from problem records
// and reduces them to stable grouping keys.
package normalize

import (
	"github.com/tidwall/gjson"

	"github.com/jfrid/logsleuth/pkg/models"
)

// maxMessageLen caps extracted and normalized messages.
const maxMessageLen = 200

// FallbackMessage is used when a record carries no extractable message at
// all. Such records still cluster, under this string.
const FallbackMessage = "Unknown error pattern"

// jsonMessageFields are probed, in order, when a raw log line turns out to
// be JSON-encoded.
var jsonMessageFields = []string{"msg", "message", "error", "exception.message"}

// ExtractMessage returns a single human-readable message for the record.
// The resolution order is load-bearing for cluster stability: clean_message,
// message, each sample's fields, the record's own raw line, then pattern id.
// The result is never empty.
func ExtractMessage(rec *models.ProblemRecord) string {
	if rec.CleanMessage != "" {
		return rec.CleanMessage
	}
	if rec.Message != "" {
		return rec.Message
	}
	for i := range rec.Samples {
		s := &rec.Samples[i]
		if s.CleanMessage != "" {
			return s.CleanMessage
		}
		if s.Message != "" {
			return s.Message
		}
		if m := messageFromRaw(s.RawLine()); m != "" {
			return m
		}
	}
	if m := messageFromRaw(rec.RawLine()); m != "" {
		return m
	}
	if rec.PatternID != "" {
		return rec.PatternID
	}
	return FallbackMessage
}

// messageFromRaw extracts a message from a raw log line. JSON-encoded lines
// are probed for the usual message fields; anything else (including JSON
// that lacks them, or JSON that fails to parse) is truncated raw text.
// Malformed JSON never raises, it just falls through.
func messageFromRaw(raw string) string {
	if raw == "" {
		return ""
	}
	if gjson.Valid(raw) {
		for _, field := range jsonMessageFields {
			if v := gjson.Get(raw, field); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	return Truncate(raw)
}

// Truncate caps a message at the shared maximum length, counted in runes
// so a multi-byte character at the boundary is never split.
func Truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxMessageLen {
		return s
	}
	return string(runes[:maxMessageLen])
}

// Normalizer reduces free-text messages to grouping keys by applying an
// ordered list of token patterns.
type Normalizer struct {
	patterns []CompiledPattern
}

// New creates a Normalizer with the default token patterns.
func New() *Normalizer {
	return NewWithPatterns(nil)
}

// NewWithPatterns creates a Normalizer with custom token patterns, falling
// back to the defaults when nil.
func NewWithPatterns(pats []CompiledPattern) *Normalizer {
	if pats == nil {
		pats = DefaultPatterns()
	}
	return &Normalizer{patterns: pats}
}

// Normalize applies the token patterns in order and truncates the result.
// Timestamps and UUIDs are tokenized before the generic digit collapse;
// reordering would let the digit rule eat fragments of a timestamp first
// and yield unstable keys.
func (n *Normalizer) Normalize(message string) string {
	out := message
	for _, p := range n.patterns {
		out = p.Regex.ReplaceAllString(out, p.Placeholder)
	}
	return Truncate(out)
}
