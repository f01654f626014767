// Package metrics records vadseg's OpenTelemetry instruments.
//
// A Prometheus exporter bridge is installed by InitProvider so the standard
// /metrics endpoint can be scraped. Tests should build a Metrics with
// NewMetrics and a ManualReader-backed provider.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/realtime-ai/vadseg"

// Metrics holds all instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// FramesProcessed counts frames scored by a prober.
	FramesProcessed metric.Int64Counter

	// InferenceDuration tracks per-frame prober latency.
	InferenceDuration metric.Float64Histogram

	// Segments counts finalized segments. Use with attribute kept=true|false.
	Segments metric.Int64Counter

	// ProberErrors counts failed prober calls.
	ProberErrors metric.Int64Counter

	// StreamDuration tracks wall time from stream start to result.
	StreamDuration metric.Float64Histogram

	// AudioSeconds counts seconds of audio segmented.
	AudioSeconds metric.Float64Counter

	// ActiveStreams tracks streams currently open.
	ActiveStreams metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP handling time by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

var inferenceBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

var streamBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter("vadseg.frames",
		metric.WithDescription("Frames scored by the prober."),
	); err != nil {
		return nil, err
	}
	if met.InferenceDuration, err = m.Float64Histogram("vadseg.inference.duration",
		metric.WithDescription("Latency of one prober call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(inferenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("vadseg.segments",
		metric.WithDescription("Speech segments closed, by whether they passed the duration filter."),
	); err != nil {
		return nil, err
	}
	if met.ProberErrors, err = m.Int64Counter("vadseg.prober.errors",
		metric.WithDescription("Failed prober calls."),
	); err != nil {
		return nil, err
	}
	if met.StreamDuration, err = m.Float64Histogram("vadseg.stream.duration",
		metric.WithDescription("Wall time to segment one stream."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(streamBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AudioSeconds, err = m.Float64Counter("vadseg.audio",
		metric.WithDescription("Seconds of audio segmented."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("vadseg.active_streams",
		metric.WithDescription("Streams currently being segmented."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("vadseg.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the package-level Metrics built on the global provider.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFrame records one successful prober call.
func (m *Metrics) RecordFrame(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.FramesProcessed.Add(ctx, 1)
	m.InferenceDuration.Record(ctx, d.Seconds())
}

// RecordProberError records one failed prober call.
func (m *Metrics) RecordProberError(ctx context.Context) {
	if m == nil {
		return
	}
	m.ProberErrors.Add(ctx, 1)
}

// RecordSegment records a closed segment.
func (m *Metrics) RecordSegment(ctx context.Context, kept bool) {
	if m == nil {
		return
	}
	m.Segments.Add(ctx, 1, metric.WithAttributes(attribute.Bool("kept", kept)))
}

// StreamStarted marks a stream open and returns the function that closes it.
func (m *Metrics) StreamStarted(ctx context.Context, source string) func(audioSeconds float64) {
	if m == nil {
		return func(float64) {}
	}
	attrs := metric.WithAttributes(attribute.String("source", source))
	start := time.Now()
	m.ActiveStreams.Add(ctx, 1, attrs)
	return func(audioSeconds float64) {
		m.ActiveStreams.Add(ctx, -1, attrs)
		m.StreamDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		if audioSeconds > 0 {
			m.AudioSeconds.Add(ctx, audioSeconds, attrs)
		}
	}
}
