package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the counter value of the data point carrying key=value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordGeneratorRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordGeneratorRequest(ctx, "gemini", "search", "ok", 1.2)
	m.RecordGeneratorRequest(ctx, "gemini", "search", "ok", 0.8)
	m.RecordGeneratorRequest(ctx, "gemini", "annotate", "error", 0.1)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "kashi.generator.requests", "status", "ok"); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumFor(t, rm, "kashi.generator.requests", "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}

	met := findMetric(rm, "kashi.generator.duration")
	if met == nil {
		t.Fatal("duration histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("duration is not a histogram")
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Errorf("histogram count = %d, want 3", count)
	}
}

func TestPipelineCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFetch(ctx, "local", "ok", 0.01)
	m.RecordStrategyAttempt(ctx, "strict_search", "rejected")
	m.RecordStrategyAttempt(ctx, "broad_search", "found")
	m.RecordAnnotation(ctx, "fallback")
	m.RecordCacheWriteIgnored(ctx, "quota")
	m.RecordPreloadSong(ctx, "cached")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "kashi.pipeline.fetches", "tier", "local"); got != 1 {
		t.Errorf("local fetches = %d, want 1", got)
	}
	if got := sumFor(t, rm, "kashi.lyrics.strategy_attempts", "outcome", "found"); got != 1 {
		t.Errorf("found attempts = %d, want 1", got)
	}
	if got := sumFor(t, rm, "kashi.furigana.annotations", "outcome", "fallback"); got != 1 {
		t.Errorf("fallback annotations = %d, want 1", got)
	}
	if got := sumFor(t, rm, "kashi.cache.writes_ignored", "reason", "quota"); got != 1 {
		t.Errorf("ignored writes = %d, want 1", got)
	}
	if got := sumFor(t, rm, "kashi.preload.songs", "outcome", "cached"); got != 1 {
		t.Errorf("cached preload songs = %d, want 1", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m, reader := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(Middleware(m))
	r.Get("/preload/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preload/abc", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	rm := collect(t, reader)
	met := findMetric(rm, "kashi.http.request.duration")
	if met == nil {
		t.Fatal("http duration histogram not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if v, _ := dp.Attributes.Value(attribute.Key("route")); v.AsString() != "/preload/{id}" {
		t.Errorf("route = %q, want %q", v.AsString(), "/preload/{id}")
	}
	if v, _ := dp.Attributes.Value(attribute.Key("status")); v.AsString() != "404" {
		t.Errorf("status = %q, want %q", v.AsString(), "404")
	}
}
