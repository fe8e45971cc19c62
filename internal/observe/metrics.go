// Package observe holds the OpenTelemetry instruments of the annotator.
//
// Instruments are created from a [metric.MeterProvider]. Production code
// uses [DefaultMetrics], which binds to the global provider; tests build
// their own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/fankserver/wordpool-annotator"

// Commit statuses recorded on wordpool.commits.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusAborted   = "aborted"
	StatusCancelled = "cancelled"
)

// Metrics holds all metric instruments. The OTel types are safe for
// concurrent use.
type Metrics struct {
	// Commits counts commit attempts. Attributes: mode, status.
	Commits metric.Int64Counter

	// Rewrites counts full file rewrites. Attribute: kind.
	Rewrites metric.Int64Counter

	// RewriteDuration tracks how long a full rewrite takes.
	RewriteDuration metric.Float64Histogram

	// SpansWritten counts audit spans appended to annotation files.
	SpansWritten metric.Int64Counter

	// VocabularyRegistered counts words added to the wordpool by intrusions.
	VocabularyRegistered metric.Int64Counter

	// ControlRequests counts control server requests. Attributes: command, status.
	ControlRequests metric.Int64Counter

	// ActiveSessions tracks open audio sessions.
	ActiveSessions metric.Int64UpDownCounter
}

var rewriteBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Commits, err = m.Int64Counter("wordpool.commits",
		metric.WithDescription("Commit attempts by mode and status."),
	); err != nil {
		return nil, err
	}
	if met.Rewrites, err = m.Int64Counter("wordpool.rewrites",
		metric.WithDescription("Full annotation or suggestion file rewrites."),
	); err != nil {
		return nil, err
	}
	if met.RewriteDuration, err = m.Float64Histogram("wordpool.rewrite.duration",
		metric.WithDescription("Latency of a full file rewrite."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(rewriteBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpansWritten, err = m.Int64Counter("wordpool.spans.written",
		metric.WithDescription("Interaction spans appended as audit lines."),
	); err != nil {
		return nil, err
	}
	if met.VocabularyRegistered, err = m.Int64Counter("wordpool.vocabulary.registered",
		metric.WithDescription("Words registered into the wordpool by intrusion commits."),
	); err != nil {
		return nil, err
	}
	if met.ControlRequests, err = m.Int64Counter("wordpool.control.requests",
		metric.WithDescription("Control server requests by command and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("wordpool.active_sessions",
		metric.WithDescription("Number of open audio sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance bound to
// [otel.GetMeterProvider]. It panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordCommit counts one commit attempt.
func (m *Metrics) RecordCommit(ctx context.Context, mode, status string) {
	m.Commits.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", status),
		),
	)
}

// RecordRewrite counts one rewrite of a file of kind that took d.
func (m *Metrics) RecordRewrite(ctx context.Context, kind string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.Rewrites.Add(ctx, 1, attrs)
	m.RewriteDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordSpans counts n written spans.
func (m *Metrics) RecordSpans(ctx context.Context, n int) {
	if n > 0 {
		m.SpansWritten.Add(ctx, int64(n))
	}
}

// RecordRegistration counts one wordpool registration.
func (m *Metrics) RecordRegistration(ctx context.Context) {
	m.VocabularyRegistered.Add(ctx, 1)
}

// RecordControlRequest counts one control request.
func (m *Metrics) RecordControlRequest(ctx context.Context, command, status string) {
	m.ControlRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}
