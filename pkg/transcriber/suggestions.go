package transcriber

import (
	"math"

	"github.com/fankserver/wordpool-annotator/pkg/annotation"
)

// Snapper maps a recognised word to the vocabulary word it most likely is.
// It reports false when nothing is close enough.
type Snapper func(text string) (string, bool)

// Suggestions converts recognised words into suggestion records placed at
// each word's start time. Words the recogniser could not resolve become
// placeholders. When snap is non-nil, recognised words are replaced by the
// vocabulary word it returns.
func Suggestions(result *TranscriptResult, snap Snapper) []annotation.Record {
	if result == nil {
		return nil
	}
	recs := make([]annotation.Record, 0, len(result.Words))
	for _, w := range result.Words {
		timeMs := float64(w.StartTime.Microseconds()) / 1000
		conf := math.Round(float64(w.Confidence)*1e4) / 1e4
		if w.Word == "" {
			recs = append(recs, annotation.Placeholder(timeMs, conf))
			continue
		}
		text := w.Word
		if snap != nil {
			if snapped, ok := snap(text); ok {
				text = snapped
			}
		}
		recs = append(recs, annotation.NewSuggestion(timeMs, conf, text))
	}
	return recs
}
