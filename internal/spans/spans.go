// Package spans turns interaction timestamps into activity spans for the
// audit lines of an annotation file.
package spans

import (
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultGap is the idle time, in milliseconds, that ends a span.
const DefaultGap int64 = 10_000

// Span is a burst of activity in epoch milliseconds.
type Span struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// AuditText is the line written for s before obfuscation.
func (s Span) AuditText() string {
	return fmt.Sprintf("Span: %d-%d", s.Start, s.End)
}

// Coalesce sorts stamps and groups them into spans. The first stamp opens a
// span and a gap larger than gap between consecutive stamps starts a new
// one. Spans that do not last (start == end) or start at or before zero are
// dropped. stamps is not modified.
func Coalesce(stamps []int64, gap int64) []Span {
	sorted := slices.Clone(stamps)
	slices.Sort(sorted)

	var out []Span
	var start, end int64
	for i, stamp := range sorted {
		if i == 0 || stamp-end > gap {
			if start > 0 && end > start {
				out = append(out, Span{Start: start, End: end})
			}
			start, end = stamp, stamp
			continue
		}
		end = stamp
	}
	if start > 0 && end > start {
		out = append(out, Span{Start: start, End: end})
	}
	return out
}

// AuditWriter appends one free-form audit line to the file at path.
type AuditWriter interface {
	AppendAuditField(path, text string) error
}

// Recorder collects interaction timestamps for one session. It is not safe
// for concurrent use.
type Recorder struct {
	gap    int64
	stamps []int64
	now    func() time.Time
}

// NewRecorder returns a recorder that splits spans at gap milliseconds.
// A gap <= 0 selects DefaultGap.
func NewRecorder(gap int64) *Recorder {
	if gap <= 0 {
		gap = DefaultGap
	}
	return &Recorder{gap: gap, now: time.Now}
}

// Stamp records an interaction at ms (epoch milliseconds).
func (r *Recorder) Stamp(ms int64) {
	r.stamps = append(r.stamps, ms)
}

// StampNow records an interaction at the current time.
func (r *Recorder) StampNow() {
	r.Stamp(r.now().UnixMilli())
}

// Len returns the number of pending timestamps.
func (r *Recorder) Len() int { return len(r.stamps) }

// Flush coalesces the pending timestamps, clears them, and writes one audit
// line per span to path. Timestamps are consumed even if a write fails; the
// first write error is returned after every span has been attempted.
func (r *Recorder) Flush(w AuditWriter, path string) ([]Span, error) {
	if len(r.stamps) == 0 {
		return nil, nil
	}
	spans := Coalesce(r.stamps, r.gap)
	r.stamps = r.stamps[:0]

	var firstErr error
	for _, s := range spans {
		if err := w.AppendAuditField(path, s.AuditText()); err != nil {
			logrus.WithError(err).WithField("path", path).Warn("Failed to write span")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return spans, firstErr
}
