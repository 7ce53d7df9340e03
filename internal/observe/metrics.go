// Package observe provides application-wide observability primitives for
// Podium: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Podium metrics.
const meterName = "github.com/MrWong99/podium"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// AlignDuration tracks how long one aligner run over the script window
	// takes.
	AlignDuration metric.Float64Histogram

	// RecognizerOpenDuration tracks how long opening a streaming recognition
	// session takes.
	RecognizerOpenDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// TimerCommands counts control commands. Use with attributes:
	//   attribute.String("command", ...), attribute.String("status", ...)
	TimerCommands metric.Int64Counter

	// CursorAdvances counts teleprompter cursor moves. Use with attribute:
	//   attribute.String("source", ...) ("voice" or "manual")
	CursorAdvances metric.Int64Counter

	// SpokenSeconds accumulates logged speaking time.
	SpokenSeconds metric.Int64Counter

	// RealtimeEvents counts events published to meeting rooms. Use with
	// attribute:
	//   attribute.String("type", ...)
	RealtimeEvents metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// SubscribersDropped counts realtime subscribers disconnected because
	// their send queue overflowed.
	SubscribersDropped metric.Int64Counter

	// --- Gauges ---

	// ActiveMeetings tracks the number of meetings with a loaded controller.
	ActiveMeetings metric.Int64UpDownCounter

	// ActiveSubscribers tracks the number of connected realtime subscribers
	// across all meetings.
	ActiveSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Aligner
// runs are sub-millisecond; recogniser dials take up to a few seconds.
var latencyBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AlignDuration, err = m.Float64Histogram("podium.align.duration",
		metric.WithDescription("Latency of one script alignment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognizerOpenDuration, err = m.Float64Histogram("podium.recognizer.open.duration",
		metric.WithDescription("Latency of opening a streaming recognition session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("podium.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.TimerCommands, err = m.Int64Counter("podium.timer.commands",
		metric.WithDescription("Total timer control commands by command and status."),
	); err != nil {
		return nil, err
	}
	if met.CursorAdvances, err = m.Int64Counter("podium.teleprompter.advances",
		metric.WithDescription("Total teleprompter cursor moves by source."),
	); err != nil {
		return nil, err
	}
	if met.SpokenSeconds, err = m.Int64Counter("podium.speaker.spoken",
		metric.WithDescription("Total logged speaking time."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.RealtimeEvents, err = m.Int64Counter("podium.realtime.events",
		metric.WithDescription("Total realtime events published by type."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("podium.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.SubscribersDropped, err = m.Int64Counter("podium.realtime.dropped",
		metric.WithDescription("Total realtime subscribers dropped for falling behind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveMeetings, err = m.Int64UpDownCounter("podium.active_meetings",
		metric.WithDescription("Number of meetings with a loaded controller."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSubscribers, err = m.Int64UpDownCounter("podium.active_subscribers",
		metric.WithDescription("Number of connected realtime subscribers across all meetings."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("podium.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
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
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
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

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTimerCommand records one control command and its outcome.
func (m *Metrics) RecordTimerCommand(ctx context.Context, command, status string) {
	m.TimerCommands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}

// RecordCursorAdvance records one teleprompter cursor move.
func (m *Metrics) RecordCursorAdvance(ctx context.Context, source string) {
	m.CursorAdvances.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordRealtimeEvent records one published realtime event.
func (m *Metrics) RecordRealtimeEvent(ctx context.Context, eventType string) {
	m.RealtimeEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}
