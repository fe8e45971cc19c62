// Package annotation defines the record type shared by committed annotations
// and machine suggestions, and the fixed line format they are stored in.
package annotation

import (
	"fmt"
	"math"
)

const (
	// Unset marks a time, index or confidence that is not known.
	Unset = -1

	// IntrusionText is committed when an intrusion is entered with no text.
	IntrusionText = "<>"

	// WordExpected is the text of a placeholder suggestion that carries a
	// time and score but no recognised word.
	WordExpected = "**WORD_EXPECTED**"
)

// Kind selects which column layout a record is stored with.
type Kind int

const (
	KindAnnotation Kind = iota
	KindSuggestion
)

func (k Kind) String() string {
	switch k {
	case KindAnnotation:
		return "annotation"
	case KindSuggestion:
		return "suggestion"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Record is a single annotation or suggestion. Records are values; copy them
// freely.
//
// Equality (Equal) looks at every field, while ordering (CompareByTime) looks
// at Time only. Two records at the same time with different text therefore
// compare as 0 but are not equal.
type Record struct {
	// Time is milliseconds from the start of the recording.
	Time float64 `json:"time_ms"`
	// Index is the 1-based vocabulary rank, or Unset.
	Index int `json:"index"`
	// Text is the literal word.
	Text string `json:"text"`
	// Confidence is the recogniser score for suggestions, or Unset.
	Confidence float64 `json:"confidence"`
}

// NewAnnotation returns a committed annotation.
func NewAnnotation(timeMs float64, index int, text string) Record {
	return Record{Time: timeMs, Index: index, Text: text, Confidence: Unset}
}

// NewSuggestion returns a suggestion with a recogniser score.
func NewSuggestion(timeMs, confidence float64, text string) Record {
	return Record{Time: timeMs, Index: Unset, Text: text, Confidence: confidence}
}

// Placeholder returns a suggestion whose word is not known yet.
func Placeholder(timeMs, confidence float64) Record {
	return NewSuggestion(timeMs, confidence, WordExpected)
}

// HasConfidence reports whether the record carries a score.
func (r Record) HasConfidence() bool {
	return r.Confidence != Unset
}

func (r Record) String() string {
	if r.HasConfidence() {
		return fmt.Sprintf("%s @ %s ms (conf %s)", r.Text, formatFloat(r.Time), formatFloat(r.Confidence))
	}
	return fmt.Sprintf("%s @ %s ms (#%d)", r.Text, formatFloat(r.Time), r.Index)
}

// Equal reports whether a and b hold the same text, time, index and score.
func Equal(a, b Record) bool {
	return a.Text == b.Text &&
		a.Time == b.Time &&
		a.Index == b.Index &&
		a.Confidence == b.Confidence
}

// CompareByTime orders records by Time alone. It is deliberately
// inconsistent with Equal; use it only for sorting.
func CompareByTime(a, b Record) int {
	switch {
	case a.Time < b.Time:
		return -1
	case a.Time > b.Time:
		return 1
	case math.IsNaN(a.Time) && !math.IsNaN(b.Time):
		return -1
	case !math.IsNaN(a.Time) && math.IsNaN(b.Time):
		return 1
	default:
		return 0
	}
}
