// Package observe provides the observability primitives of speakerfmt:
// OpenTelemetry metrics, tracing and trace-aware structured logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to a Prometheus registry so a run can dump them in the text
// exposition format. A package-level [Metrics] instance ([DefaultMetrics]) is
// provided for convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/speakerfmt"

// Metrics holds all metric instruments. The underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// TranscriptsProcessed counts Process calls. Attributes: mode, status.
	TranscriptsProcessed metric.Int64Counter

	// PhaseDuration tracks the latency of each pipeline phase. Attribute: phase.
	PhaseDuration metric.Float64Histogram

	// ResolverRequests counts language-model calls. Attributes: provider,
	// task, status.
	ResolverRequests metric.Int64Counter

	// ResolverDuration tracks language-model call latency. Attributes:
	// provider, task.
	ResolverDuration metric.Float64Histogram

	// Escalations counts low-confidence matches sent to the resolver.
	// Attribute: outcome (accepted, rejected, failed).
	Escalations metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// name, to.
	BreakerTransitions metric.Int64Counter

	// InFlight tracks transcripts currently being processed.
	InFlight metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries in seconds. Regex phases take
// microseconds, model calls take seconds.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranscriptsProcessed, err = m.Int64Counter("speakerfmt.transcripts.processed",
		metric.WithDescription("Transcripts processed by mode and status."),
	); err != nil {
		return nil, err
	}
	if met.PhaseDuration, err = m.Float64Histogram("speakerfmt.phase.duration",
		metric.WithDescription("Latency of a processing phase."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResolverRequests, err = m.Int64Counter("speakerfmt.resolver.requests",
		metric.WithDescription("Language model requests by provider, task and status."),
	); err != nil {
		return nil, err
	}
	if met.ResolverDuration, err = m.Float64Histogram("speakerfmt.resolver.duration",
		metric.WithDescription("Latency of language model requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Escalations, err = m.Int64Counter("speakerfmt.escalations",
		metric.WithDescription("Low-confidence matches escalated to the resolver by outcome."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("speakerfmt.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions."),
	); err != nil {
		return nil, err
	}
	if met.InFlight, err = m.Int64UpDownCounter("speakerfmt.transcripts.in_flight",
		metric.WithDescription("Transcripts currently being processed."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, created on
// first call from [otel.GetMeterProvider].
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

// RecordTranscript counts one processed transcript.
func (m *Metrics) RecordTranscript(ctx context.Context, mode, status string) {
	m.TranscriptsProcessed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", status),
		),
	)
}

// RecordPhase records the duration of one pipeline phase.
func (m *Metrics) RecordPhase(ctx context.Context, phase string, d time.Duration) {
	m.PhaseDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("phase", phase)),
	)
}

// RecordResolverRequest counts one model call and records its latency.
func (m *Metrics) RecordResolverRequest(ctx context.Context, provider, task, status string, d time.Duration) {
	m.ResolverRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("task", task),
			attribute.String("status", status),
		),
	)
	m.ResolverDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("task", task),
		),
	)
}

// RecordEscalation counts one escalated match by outcome.
func (m *Metrics) RecordEscalation(ctx context.Context, outcome string) {
	m.Escalations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordBreakerTransition counts a circuit breaker entering state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("name", name),
			attribute.String("to", to),
		),
	)
}
