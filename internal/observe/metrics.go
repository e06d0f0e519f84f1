// Package observe provides observability primitives for the vaidya session
// engine: OpenTelemetry metrics, tracing helpers, and the SDK provider setup.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so the reference CLI can
// expose a /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all vaidya metrics.
const meterName = "github.com/tanmayd/vaidya"

// Metrics holds all OpenTelemetry metric instruments for the session engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// BackendCallDuration tracks backend API call latency. Use with attributes:
	//   attribute.String("call", ...), attribute.String("status", ...)
	BackendCallDuration metric.Float64Histogram

	// PollTicks counts status poll ticks by reported processing state. Use
	// with attribute.String("state", ...).
	PollTicks metric.Int64Counter

	// ChatTurns counts completed chat exchanges. Use with
	// attribute.String("status", ...).
	ChatTurns metric.Int64Counter

	// BackendErrors counts failed backend calls by call kind.
	BackendErrors metric.Int64Counter

	// ActiveSessions tracks the number of live document sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActivePolls tracks the number of running status pollers. Should never
	// exceed ActiveSessions.
	ActivePolls metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// backend round trips: quick status checks up to slow LLM analysis calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.BackendCallDuration, err = m.Float64Histogram("vaidya.backend.call.duration",
		metric.WithDescription("Latency of backend API calls by kind and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.PollTicks, err = m.Int64Counter("vaidya.poll.ticks",
		metric.WithDescription("Total status poll ticks by reported processing state."),
	); err != nil {
		return nil, err
	}
	if met.ChatTurns, err = m.Int64Counter("vaidya.chat.turns",
		metric.WithDescription("Total follow-up chat exchanges by outcome."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("vaidya.backend.errors",
		metric.WithDescription("Total failed backend calls by kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("vaidya.active_sessions",
		metric.WithDescription("Number of live document sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActivePolls, err = m.Int64UpDownCounter("vaidya.active_polls",
		metric.WithDescription("Number of running status pollers."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordBackendCall records one backend call with its latency in seconds.
func (m *Metrics) RecordBackendCall(ctx context.Context, call, status string, seconds float64) {
	m.BackendCallDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("call", call),
			attribute.String("status", status),
		),
	)
	if status != "ok" {
		m.BackendErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("call", call)),
		)
	}
}

// RecordPollTick records one status poll tick for the given processing state.
func (m *Metrics) RecordPollTick(ctx context.Context, state string) {
	m.PollTicks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)),
	)
}

// RecordChatTurn records one completed chat exchange with its outcome.
func (m *Metrics) RecordChatTurn(ctx context.Context, status string) {
	m.ChatTurns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
