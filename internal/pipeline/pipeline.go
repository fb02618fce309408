// Package pipeline orchestrates lyrics acquisition: cache tiers, the
// retrieval strategy chain, furigana annotation, attribution and the cache
// write-back.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kalambet/kashi/internal/cache"
	"github.com/kalambet/kashi/internal/furigana"
	"github.com/kalambet/kashi/internal/generator"
	"github.com/kalambet/kashi/internal/lyrics"
	"github.com/kalambet/kashi/internal/observe"
	"github.com/kalambet/kashi/internal/songs"
	"github.com/kalambet/kashi/internal/storage"
)

// Status lines reported outside the strategy chain.
const (
	StatusCheckingCache = "キャッシュ確認中..."
	StatusLoadingCache  = "キャッシュ読み込み中..."
	StatusAnnotating    = "解析・ふりがな付与中..."
)

// DefaultRunTimeout bounds one shared generation run once it no longer
// follows any caller's context.
const DefaultRunTimeout = 5 * time.Minute

// StatusSink receives human-readable progress lines.
type StatusSink func(status string)

// Result is the outcome of a successful fetch.
type Result struct {
	QueryKey   string
	Markup     string
	Tier       cache.Tier
	Sources    []string
	Strategy   string
	Annotation furigana.OutcomeKind
}

// Options tune a Pipeline.
type Options struct {
	// Strategies overrides the retrieval chain order.
	Strategies []lyrics.Strategy
	// MaxOutputTokens caps retrieval and annotation output.
	MaxOutputTokens int
	// RunTimeout bounds a shared generation run. Zero means DefaultRunTimeout.
	RunTimeout time.Duration
	// CredentialsHint is appended to CREDENTIALS_MISSING errors.
	CredentialsHint string
	Metrics         *observe.Metrics
}

// Pipeline turns a song reference into annotated lyrics markup.
type Pipeline struct {
	resolver  *cache.Resolver
	gen       generator.Generator
	chain     *lyrics.Chain
	annotator *furigana.Annotator
	hint      string
	metrics   *observe.Metrics
	timeout   time.Duration
	group     singleflight.Group

	// subs holds the status sinks of every caller waiting on a run, by query key.
	subsMu  sync.Mutex
	subs    map[string]map[int]StatusSink
	nextSub int
}

// New creates a Pipeline. gen may be nil when no credentials are
// configured; cached lyrics are still served and everything else fails
// with CREDENTIALS_MISSING.
func New(resolver *cache.Resolver, gen generator.Generator, opts Options) *Pipeline {
	p := &Pipeline{
		resolver: resolver,
		gen:      gen,
		hint:     opts.CredentialsHint,
		metrics:  opts.Metrics,
		timeout:  opts.RunTimeout,
		subs:     make(map[string]map[int]StatusSink),
	}
	if p.timeout <= 0 {
		p.timeout = DefaultRunTimeout
	}
	if gen != nil {
		p.chain = lyrics.NewChain(gen, opts.Strategies...).
			WithMaxOutputTokens(opts.MaxOutputTokens).
			WithMetrics(opts.Metrics)
		p.annotator = furigana.NewAnnotator(gen).
			WithMaxOutputTokens(opts.MaxOutputTokens).
			WithMetrics(opts.Metrics)
	}
	return p
}

// Resolver returns the cache resolver the pipeline reads through.
func (p *Pipeline) Resolver() *cache.Resolver { return p.resolver }

// Fetch returns annotated lyrics for ref. Cached lyrics are returned without
// any remote call. Only LYRICS_NOT_FOUND and CREDENTIALS_MISSING *lyrics.Error
// values (or ctx errors) are returned. Concurrent fetches of the same song
// share one generation run; every waiting caller receives its status lines,
// and a caller whose ctx ends stops waiting without ending the run for the
// others.
func (p *Pipeline) Fetch(ctx context.Context, ref songs.Ref, sink StatusSink) (Result, error) {
	start := time.Now()

	notify(sink, StatusCheckingCache)
	if markup, tier, ok := p.resolver.Lookup(ctx, ref); ok {
		if tier == cache.TierStatic {
			notify(sink, StatusLoadingCache)
		}
		slog.Debug("lyrics served from cache", "song", ref.QueryKey, "tier", tier)
		p.recordFetch(ctx, tier, "hit", start)
		return Result{QueryKey: ref.QueryKey, Markup: markup, Tier: tier}, nil
	}

	res, err := p.generate(ctx, ref, sink)
	if err != nil {
		p.recordFetch(ctx, cache.TierGenerated, outcome(err), start)
		return Result{}, err
	}
	p.recordFetch(ctx, cache.TierGenerated, "ok", start)
	return res, nil
}

// Regenerate drops the local cache entry for ref and generates it again,
// bypassing both cache tiers.
func (p *Pipeline) Regenerate(ctx context.Context, ref songs.Ref, sink StatusSink) (Result, error) {
	if err := p.resolver.Forget(ctx, ref); err != nil {
		slog.Warn("regenerate: failed to drop cache entry", "song", ref.QueryKey, "error", err)
	}
	start := time.Now()
	res, err := p.generate(ctx, ref, sink)
	if err != nil {
		p.recordFetch(ctx, cache.TierGenerated, outcome(err), start)
		return Result{}, err
	}
	p.recordFetch(ctx, cache.TierGenerated, "ok", start)
	return res, nil
}

func (p *Pipeline) generate(ctx context.Context, ref songs.Ref, sink StatusSink) (Result, error) {
	if p.gen == nil {
		return Result{}, lyrics.NewCredentialsMissing(p.hint)
	}

	key := ref.QueryKey
	unsubscribe := p.subscribe(key, sink)
	defer unsubscribe()

	ch := p.group.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		return p.run(runCtx, ref, func(s string) { p.broadcast(key, s) })
	})

	select {
	case <-ctx.Done():
		slog.Debug("stopped waiting for lyrics fetch", "song", key, "error", ctx.Err())
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Shared {
			slog.Debug("lyrics fetch coalesced", "song", key)
		}
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

func (p *Pipeline) subscribe(key string, sink StatusSink) func() {
	if sink == nil {
		return func() {}
	}
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	id := p.nextSub
	p.nextSub++
	if p.subs[key] == nil {
		p.subs[key] = make(map[int]StatusSink)
	}
	p.subs[key][id] = sink
	return func() {
		p.subsMu.Lock()
		defer p.subsMu.Unlock()
		delete(p.subs[key], id)
		if len(p.subs[key]) == 0 {
			delete(p.subs, key)
		}
	}
}

// broadcast delivers status to every caller currently waiting on key.
func (p *Pipeline) broadcast(key, status string) {
	p.subsMu.Lock()
	sinks := make([]StatusSink, 0, len(p.subs[key]))
	for _, sink := range p.subs[key] {
		sinks = append(sinks, sink)
	}
	p.subsMu.Unlock()
	for _, sink := range sinks {
		notify(sink, status)
	}
}

// run is one uncached pipeline pass: retrieve, annotate, attribute, store.
func (p *Pipeline) run(ctx context.Context, ref songs.Ref, status func(string)) (Result, error) {
	raw, err := p.chain.Retrieve(ctx, ref, status)
	if err != nil {
		return Result{}, err
	}

	status(StatusAnnotating)
	annotated := p.annotator.Annotate(ctx, raw.Text)
	markup := furigana.Attribute(annotated.Markup, raw.Sources)

	if err := p.resolver.Store(ctx, ref, markup); err != nil {
		ignored := lyrics.NewCacheWriteIgnored(err)
		reason := "error"
		if errors.Is(err, storage.ErrQuotaExceeded) {
			reason = "quota"
		}
		slog.Debug("lyrics not cached", "song", ref.QueryKey, "reason", reason, "error", ignored)
		if p.metrics != nil {
			p.metrics.RecordCacheWriteIgnored(ctx, reason)
		}
	}

	return Result{
		QueryKey:   ref.QueryKey,
		Markup:     markup,
		Tier:       cache.TierGenerated,
		Sources:    raw.Sources,
		Strategy:   raw.Strategy,
		Annotation: annotated.Kind,
	}, nil
}

func (p *Pipeline) recordFetch(ctx context.Context, tier cache.Tier, result string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordFetch(ctx, string(tier), result, time.Since(start).Seconds())
	}
}

func outcome(err error) string {
	switch {
	case lyrics.IsKind(err, lyrics.KindLyricsNotFound):
		return "not_found"
	case lyrics.IsKind(err, lyrics.KindCredentialsMissing):
		return "credentials_missing"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}

// notify delivers status to sink. A panicking sink is logged and ignored.
func notify(sink StatusSink, status string) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("status sink panicked", "status", status, "panic", r)
		}
	}()
	sink(status)
}
