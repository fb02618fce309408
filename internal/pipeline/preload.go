package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/kashi/internal/lyrics"
	"github.com/kalambet/kashi/internal/observe"
	"github.com/kalambet/kashi/internal/songs"
)

// DefaultPreloadDelay is the pause after each song that needed generation.
const DefaultPreloadDelay = time.Second

// Preload statuses.
const (
	PreloadCached  = "cached"
	PreloadFetched = "fetched"
	PreloadFailed  = "failed"
)

// Summary aggregates a preload run.
type Summary struct {
	Total     int  `json:"total"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Cached    int  `json:"cached"`
	Aborted   bool `json:"aborted"`
}

// PreloadProgress describes the song a preload run is working on.
type PreloadProgress struct {
	Index  int // 1-based
	Total  int
	Song   songs.Ref
	Status string // pipeline status line or a Preload* result
}

// Preloader fetches a list of songs one at a time to warm the cache.
type Preloader struct {
	p       *Pipeline
	delay   time.Duration
	metrics *observe.Metrics
}

// NewPreloader creates a Preloader pausing delay between fetched songs.
func NewPreloader(p *Pipeline, delay time.Duration) *Preloader {
	return &Preloader{p: p, delay: delay, metrics: p.metrics}
}

// Run preloads list. Cached songs count as successes and incur no delay.
// Failures are counted and the run continues. Without a generator every
// uncached song fails at once, with no delay. A cancelled ctx stops the run
// between songs.
func (pl *Preloader) Run(ctx context.Context, list []songs.Ref, progress func(PreloadProgress)) Summary {
	sum := Summary{Total: len(list)}
	report := func(pp PreloadProgress) {
		if progress == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				slog.Warn("preload progress callback panicked", "panic", r)
			}
		}()
		progress(pp)
	}

	noGenerator := pl.p.gen == nil
	if noGenerator {
		slog.Warn("preload without a generator, only cached songs will succeed",
			"error", lyrics.NewCredentialsMissing(pl.p.hint))
	}

	for i, ref := range list {
		if ctx.Err() != nil {
			sum.Aborted = true
			break
		}
		base := PreloadProgress{Index: i + 1, Total: len(list), Song: ref}

		base.Status = StatusCheckingCache
		report(base)
		if pl.p.resolver.Contains(ctx, ref) {
			sum.Succeeded++
			sum.Cached++
			pl.record(ctx, PreloadCached)
			base.Status = PreloadCached
			report(base)
			continue
		}
		if noGenerator {
			sum.Failed++
			pl.record(ctx, PreloadFailed)
			base.Status = PreloadFailed
			report(base)
			continue
		}

		_, err := pl.p.Fetch(ctx, ref, func(status string) {
			s := base
			s.Status = status
			report(s)
		})
		if err != nil {
			sum.Failed++
			pl.record(ctx, PreloadFailed)
			slog.Warn("preload failed", "song", ref.QueryKey, "error", err)
			base.Status = PreloadFailed
		} else {
			sum.Succeeded++
			pl.record(ctx, PreloadFetched)
			base.Status = PreloadFetched
		}
		report(base)

		if !wait(ctx, pl.delay) {
			sum.Aborted = true
			break
		}
	}

	slog.Info("preload finished",
		"total", sum.Total,
		"succeeded", sum.Succeeded,
		"cached", sum.Cached,
		"failed", sum.Failed,
		"aborted", sum.Aborted,
	)
	return sum
}

func (pl *Preloader) record(ctx context.Context, outcome string) {
	if pl.metrics != nil {
		pl.metrics.RecordPreloadSong(ctx, outcome)
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
