// Package lyrics retrieves raw Japanese lyrics through an ordered chain of
// generation strategies and validates what comes back.
package lyrics

import (
	"context"
	"log/slog"

	"github.com/kalambet/kashi/internal/generator"
	"github.com/kalambet/kashi/internal/observe"
	"github.com/kalambet/kashi/internal/songs"
)

// DefaultMaxOutputTokens caps retrieval responses when no cap is configured.
const DefaultMaxOutputTokens = 8192

// Chain tries its strategies in order and returns the first valid result.
type Chain struct {
	gen             generator.Generator
	strategies      []Strategy
	metrics         *observe.Metrics
	maxOutputTokens int
}

// NewChain builds a chain over gen. With no strategies given it uses
// DefaultStrategies.
func NewChain(gen generator.Generator, strategies ...Strategy) *Chain {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Chain{gen: gen, strategies: strategies, maxOutputTokens: DefaultMaxOutputTokens}
}

// WithMaxOutputTokens caps the output of every strategy request. n <= 0
// keeps the default.
func (c *Chain) WithMaxOutputTokens(n int) *Chain {
	if n > 0 {
		c.maxOutputTokens = n
	}
	return c
}

// WithMetrics records strategy outcomes to m.
func (c *Chain) WithMetrics(m *observe.Metrics) *Chain {
	c.metrics = m
	return c
}

// Strategies returns the strategies in attempt order.
func (c *Chain) Strategies() []Strategy {
	return c.strategies
}

// Retrieve runs the strategies until one yields valid lyrics. notify, if
// non-nil, receives each strategy's status line before it runs. Search
// strategies are skipped when the generator cannot search. When every
// strategy fails it returns a LYRICS_NOT_FOUND *Error; a cancelled ctx
// stops the chain with ctx.Err().
func (c *Chain) Retrieve(ctx context.Context, ref songs.Ref, notify func(string)) (Result, error) {
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if s.NeedsWebSearch() && !c.gen.SupportsWebSearch() {
			slog.Debug("skipping search strategy", "strategy", s.Name(), "generator", c.gen.Name())
			c.record(ctx, s.Name(), "skipped")
			continue
		}

		if notify != nil {
			notify(s.Status())
		}

		res, err := s.Attempt(ctx, tokenCap{Generator: c.gen, n: c.maxOutputTokens}, ref)
		if err == nil {
			slog.Info("lyrics found", "song", ref.QueryKey, "strategy", s.Name(), "sources", len(res.Sources))
			c.record(ctx, s.Name(), "found")
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}

		outcome := "remote_error"
		if IsKind(err, KindValidationRejected) {
			outcome = "rejected"
		}
		c.record(ctx, s.Name(), outcome)
		slog.Warn("lyrics strategy failed, trying next",
			"song", ref.QueryKey,
			"strategy", s.Name(),
			"outcome", outcome,
			"error", err,
		)
	}

	return Result{}, NewLyricsNotFound(ref.QueryKey)
}

func (c *Chain) record(ctx context.Context, strategy, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordStrategyAttempt(ctx, strategy, outcome)
	}
}

// tokenCap fills in MaxOutputTokens on requests that leave it unset.
type tokenCap struct {
	generator.Generator
	n int
}

func (t tokenCap) Generate(ctx context.Context, req generator.Request) (generator.Response, error) {
	if req.MaxOutputTokens == 0 {
		req.MaxOutputTokens = t.n
	}
	return t.Generator.Generate(ctx, req)
}
