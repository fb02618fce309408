// Package observe holds the OpenTelemetry metric instruments for kashi and
// the Prometheus bridge that exposes them on /metrics.
//
// Tests should build their own [Metrics] with [NewMetrics] and a
// ManualReader-backed provider; [DefaultMetrics] binds to the global
// provider installed by [InitProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/kalambet/kashi"

// Metrics holds all metric instruments for the application.
type Metrics struct {
	// GeneratorRequests counts remote generation calls. Attributes:
	//   generator, purpose, status
	GeneratorRequests metric.Int64Counter

	// GeneratorDuration tracks remote generation latency. Attributes:
	//   generator, purpose
	GeneratorDuration metric.Float64Histogram

	// StrategyAttempts counts retrieval strategy outcomes. Attributes:
	//   strategy, outcome ("found", "remote_error", "rejected", "skipped")
	StrategyAttempts metric.Int64Counter

	// Fetches counts pipeline fetches. Attributes:
	//   tier ("local", "static", "generated", "none"), outcome
	Fetches metric.Int64Counter

	// FetchDuration tracks end-to-end fetch latency.
	FetchDuration metric.Float64Histogram

	// Annotations counts annotation outcomes. Attribute: outcome
	Annotations metric.Int64Counter

	// CacheWritesIgnored counts local cache writes that failed and were dropped.
	CacheWritesIgnored metric.Int64Counter

	// PreloadSongs counts songs processed by preload. Attribute: outcome
	PreloadSongs metric.Int64Counter

	// HTTPRequestDuration tracks HTTP handler latency. Attributes:
	//   method, route, status
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets spans quick cache hits up to slow search-grounded generations.
var latencyBuckets = []float64{
	0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 80,
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.GeneratorRequests, err = m.Int64Counter("kashi.generator.requests",
		metric.WithDescription("Remote generation requests by generator, purpose, and status."),
	); err != nil {
		return nil, err
	}
	if met.GeneratorDuration, err = m.Float64Histogram("kashi.generator.duration",
		metric.WithDescription("Latency of remote generation requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StrategyAttempts, err = m.Int64Counter("kashi.lyrics.strategy_attempts",
		metric.WithDescription("Lyrics retrieval strategy attempts by strategy and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Fetches, err = m.Int64Counter("kashi.pipeline.fetches",
		metric.WithDescription("Lyrics fetches by serving tier and outcome."),
	); err != nil {
		return nil, err
	}
	if met.FetchDuration, err = m.Float64Histogram("kashi.pipeline.fetch.duration",
		metric.WithDescription("End-to-end lyrics fetch latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Annotations, err = m.Int64Counter("kashi.furigana.annotations",
		metric.WithDescription("Furigana annotation outcomes."),
	); err != nil {
		return nil, err
	}
	if met.CacheWritesIgnored, err = m.Int64Counter("kashi.cache.writes_ignored",
		metric.WithDescription("Local cache writes that failed and were ignored."),
	); err != nil {
		return nil, err
	}
	if met.PreloadSongs, err = m.Int64Counter("kashi.preload.songs",
		metric.WithDescription("Songs processed by preload by outcome."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("kashi.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route, and status."),
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

// DefaultMetrics returns the package-level Metrics bound to the global
// provider, creating it on first call.
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

// RecordGeneratorRequest records one remote generation call.
func (m *Metrics) RecordGeneratorRequest(ctx context.Context, generator, purpose, status string, seconds float64) {
	m.GeneratorRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("generator", generator),
		attribute.String("purpose", purpose),
		attribute.String("status", status),
	))
	m.GeneratorDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("generator", generator),
		attribute.String("purpose", purpose),
	))
}

// RecordStrategyAttempt records the outcome of one retrieval strategy.
func (m *Metrics) RecordStrategyAttempt(ctx context.Context, strategy, outcome string) {
	m.StrategyAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	))
}

// RecordFetch records a completed pipeline fetch.
func (m *Metrics) RecordFetch(ctx context.Context, tier, outcome string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("outcome", outcome),
	)
	m.Fetches.Add(ctx, 1, attrs)
	m.FetchDuration.Record(ctx, seconds, attrs)
}

// RecordAnnotation records an annotation outcome.
func (m *Metrics) RecordAnnotation(ctx context.Context, outcome string) {
	m.Annotations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCacheWriteIgnored records a dropped cache write.
func (m *Metrics) RecordCacheWriteIgnored(ctx context.Context, reason string) {
	m.CacheWritesIgnored.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordPreloadSong records one song processed by preload.
func (m *Metrics) RecordPreloadSong(ctx context.Context, outcome string) {
	m.PreloadSongs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
