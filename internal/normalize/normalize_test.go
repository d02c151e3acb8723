package normalize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jfrid/logsleuth/pkg/models"
)

func TestExtractMessage_ResolutionOrder(t *testing.T) {
	tests := []struct {
		name     string
		record   models.ProblemRecord
		expected string
	}{
		{
			name: "clean_message wins over everything",
			record: models.ProblemRecord{
				CleanMessage: "clean",
				Message:      "plain",
				SampleLine:   `{"msg":"from json"}`,
			},
			expected: "clean",
		},
		{
			name: "message wins over samples",
			record: models.ProblemRecord{
				Message: "plain",
				Samples: []models.Sample{{CleanMessage: "sample clean"}},
			},
			expected: "plain",
		},
		{
			name: "sample clean_message before sample message",
			record: models.ProblemRecord{
				Samples: []models.Sample{{CleanMessage: "sample clean", Message: "sample plain"}},
			},
			expected: "sample clean",
		},
		{
			name: "sample JSON full_line msg field",
			record: models.ProblemRecord{
				Samples: []models.Sample{{FullLine: `{"msg":"db timeout"}`}},
			},
			expected: "db timeout",
		},
		{
			name: "sample JSON nested exception.message",
			record: models.ProblemRecord{
				Samples: []models.Sample{{SampleLine: `{"exception":{"message":"boom"}}`}},
			},
			expected: "boom",
		},
		{
			name: "sample JSON prefers msg over error",
			record: models.ProblemRecord{
				Samples: []models.Sample{{FullLine: `{"error":"late","msg":"early"}`}},
			},
			expected: "early",
		},
		{
			name: "malformed sample JSON falls through to raw text",
			record: models.ProblemRecord{
				Samples: []models.Sample{{FullLine: `{"msg": truncated`}},
			},
			expected: `{"msg": truncated`,
		},
		{
			name: "first sample with content wins",
			record: models.ProblemRecord{
				Samples: []models.Sample{{}, {Message: "second sample"}},
			},
			expected: "second sample",
		},
		{
			name: "record sample_line used after samples",
			record: models.ProblemRecord{
				SampleLine: `{"message":"record level"}`,
			},
			expected: "record level",
		},
		{
			name:     "pattern id fallback",
			record:   models.ProblemRecord{PatternID: "pat-42"},
			expected: "pat-42",
		},
		{
			name:     "final fallback",
			record:   models.ProblemRecord{},
			expected: FallbackMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractMessage(&tt.record)
			if got != tt.expected {
				t.Errorf("ExtractMessage() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestExtractMessage_NeverEmpty(t *testing.T) {
	records := []models.ProblemRecord{
		{},
		{SampleLine: "{}"},
		{Samples: []models.Sample{{FullLine: "not json at all"}}},
	}
	for _, rec := range records {
		if got := ExtractMessage(&rec); got == "" {
			t.Errorf("ExtractMessage(%+v) returned empty string", rec)
		}
	}
}

func TestExtractMessage_TruncatesRawText(t *testing.T) {
	long := strings.Repeat("x", 500)
	rec := models.ProblemRecord{SampleLine: long}
	got := ExtractMessage(&rec)
	if len(got) != 200 {
		t.Errorf("expected raw text truncated to 200 chars, got %d", len(got))
	}
}

func TestNormalize(t *testing.T) {
	n := New()

	tests := []struct {
		name     string
		message  string
		expected string
	}{
		{
			name:     "timestamp tokenized as one unit",
			message:  "at 2024-01-05T10:00:00 retries=3",
			expected: "at <TIMESTAMP> retries=<NUM>",
		},
		{
			name:     "uuid tokenized before digits",
			message:  "request 550e8400-e29b-41d4-a716-446655440000 failed",
			expected: "request <UUID> failed",
		},
		{
			name:     "digit runs collapse",
			message:  "worker 17 exited with code 137",
			expected: "worker <NUM> exited with code <NUM>",
		},
		{
			name:     "timestamp with fraction and zone",
			message:  "seen 2024-03-02 08:15:09.123+02:00 ok",
			expected: "seen <TIMESTAMP> ok",
		},
		{
			name:     "no tokens",
			message:  "connection refused",
			expected: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.message)
			if got != tt.expected {
				t.Errorf("\nNormalize(%q)\nExpected: %s\nGot:      %s", tt.message, tt.expected, got)
			}
		})
	}
}

// Messages differing only in timestamp and trailing digits must normalize to
// the same key; a message lacking the trailing field must not.
func TestNormalize_OrderSensitivity(t *testing.T) {
	n := New()

	a := n.Normalize("at 2024-01-05T10:00:00 retries=3")
	b := n.Normalize("at 2024-02-09T11:30:00 retries=9")
	c := n.Normalize("at 2024-02-09T11:30:00")

	if a != b {
		t.Errorf("expected equal keys, got %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("message without retries field must not share key %q", a)
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	long := strings.Repeat("ä", 300)
	got := Truncate(long)
	if !utf8.ValidString(got) {
		t.Error("truncation split a multi-byte rune")
	}
	if n := utf8.RuneCountInString(got); n != 200 {
		t.Errorf("truncated to %d runes, want 200", n)
	}
}

func TestNormalize_Truncates(t *testing.T) {
	n := New()
	long := strings.Repeat("a", 300)
	if got := n.Normalize(long); len(got) != 200 {
		t.Errorf("expected 200 chars after truncation, got %d", len(got))
	}
}
