package generator

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/kashi/internal/observe"
)

// Instrumented records request counts and latency for every call to the
// wrapped generator.
type Instrumented struct {
	next    Generator
	metrics *observe.Metrics
}

// NewInstrumented wraps g. A nil m uses observe.DefaultMetrics.
func NewInstrumented(g Generator, m *observe.Metrics) *Instrumented {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Instrumented{next: g, metrics: m}
}

func (i *Instrumented) Name() string { return i.next.Name() }

func (i *Instrumented) SupportsWebSearch() bool { return i.next.SupportsWebSearch() }

func (i *Instrumented) Generate(ctx context.Context, req Request) (Response, error) {
	purpose := req.Purpose
	if purpose == "" {
		purpose = "unspecified"
	}

	start := time.Now()
	resp, err := i.next.Generate(ctx, req)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	i.metrics.RecordGeneratorRequest(ctx, i.next.Name(), purpose, status, elapsed.Seconds())
	slog.Debug("generator call",
		"generator", i.next.Name(),
		"purpose", purpose,
		"web_search", req.WebSearch,
		"status", status,
		"sources", len(resp.Sources),
		"duration", elapsed,
	)
	return resp, err
}
