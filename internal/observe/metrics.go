// Package observe provides application-wide observability primitives for
// aulos: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aulos-audio/aulos/pkg/audio/local"
)

// meterName is the instrumentation scope name used for all aulos metrics.
const meterName = "github.com/aulos-audio/aulos"

// Compile-time check: Metrics satisfies the transport's recorder contract.
var _ local.MetricsRecorder = (*Metrics)(nil)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation. Metrics also implements
// [local.MetricsRecorder], so it can be handed straight to the transport via
// local.WithMetrics.
type Metrics struct {
	// PacerIntervalSeconds tracks the software pacer's inter-write interval.
	// With a healthy 5 ms slice, the distribution should sit tightly around
	// 0.005.
	PacerIntervalSeconds metric.Float64Histogram

	// PacerSlowWrites counts pacer intervals that exceeded the slow-write
	// threshold, i.e. times the pacer fell behind real time.
	PacerSlowWrites metric.Int64Counter

	// EngineUnderflows counts playback underflow increments reported by the
	// engine's debug counters.
	EngineUnderflows metric.Int64Counter

	// CaptureFramesTotal counts frames emitted by the capture side.
	CaptureFramesTotal metric.Int64Counter

	// PlaybackBytesTotal counts bytes written into the engine's playback
	// path, across both pacing strategies.
	PlaybackBytesTotal metric.Int64Counter

	// InterruptionsTotal counts barge-in interruptions handled by the
	// playback side.
	InterruptionsTotal metric.Int64Counter

	// CaptureRingLevel and PlaybackRingLevel track the engine's ring fill
	// levels as sampled by the debug reporter.
	CaptureRingLevel  metric.Int64Gauge
	PlaybackRingLevel metric.Int64Gauge

	// HTTPRequestDuration tracks diagnostics endpoint request processing
	// time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// pacerBuckets defines histogram bucket boundaries (in seconds) around the
// 5 ms pacing slice, with headroom for stalls.
var pacerBuckets = []float64{
	0.001, 0.0025, 0.005, 0.0075, 0.012, 0.02, 0.05, 0.1, 0.25,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.PacerIntervalSeconds, err = m.Float64Histogram("aulos.pacer.interval",
		metric.WithDescription("Inter-write interval of the software playback pacer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(pacerBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("aulos.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.PacerSlowWrites, err = m.Int64Counter("aulos.pacer.slow_writes",
		metric.WithDescription("Pacer intervals that exceeded the slow-write threshold."),
	); err != nil {
		return nil, err
	}
	if met.EngineUnderflows, err = m.Int64Counter("aulos.engine.underflows",
		metric.WithDescription("Playback underflows reported by the engine."),
	); err != nil {
		return nil, err
	}
	if met.CaptureFramesTotal, err = m.Int64Counter("aulos.capture.frames",
		metric.WithDescription("Audio frames emitted by the capture side."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackBytesTotal, err = m.Int64Counter("aulos.playback.bytes",
		metric.WithDescription("Bytes written into the engine playback path."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.InterruptionsTotal, err = m.Int64Counter("aulos.interruptions",
		metric.WithDescription("Barge-in interruptions handled by the playback side."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.CaptureRingLevel, err = m.Int64Gauge("aulos.ring.capture_level",
		metric.WithDescription("Fill level of the engine capture ring."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.PlaybackRingLevel, err = m.Int64Gauge("aulos.ring.playback_level",
		metric.WithDescription("Fill level of the engine playback ring."),
		metric.WithUnit("By"),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// ─── local.MetricsRecorder implementation ────────────────────────────────────
//
// The transport's hot paths carry no context, so these record against the
// background context.

// CaptureFrames records n capture frames emitted.
func (m *Metrics) CaptureFrames(n int) {
	m.CaptureFramesTotal.Add(context.Background(), int64(n))
}

// PlaybackBytes records n bytes written to the playback path.
func (m *Metrics) PlaybackBytes(n int) {
	m.PlaybackBytesTotal.Add(context.Background(), int64(n))
}

// PacerInterval records one measured pacer inter-write interval.
func (m *Metrics) PacerInterval(d time.Duration) {
	m.PacerIntervalSeconds.Record(context.Background(), d.Seconds())
}

// PacerReport records one debug-reporter rollup: slow writes in the interval
// and the engine underflow delta.
func (m *Metrics) PacerReport(slowWrites, underflowDelta int) {
	ctx := context.Background()
	if slowWrites > 0 {
		m.PacerSlowWrites.Add(ctx, int64(slowWrites))
	}
	if underflowDelta > 0 {
		m.EngineUnderflows.Add(ctx, int64(underflowDelta))
	}
}

// RingLevels records the sampled engine ring fill levels.
func (m *Metrics) RingLevels(captureRing, playbackRing int) {
	ctx := context.Background()
	m.CaptureRingLevel.Record(ctx, int64(captureRing))
	m.PlaybackRingLevel.Record(ctx, int64(playbackRing))
}

// Interruption records one handled barge-in.
func (m *Metrics) Interruption() {
	m.InterruptionsTotal.Add(context.Background(), 1)
}
