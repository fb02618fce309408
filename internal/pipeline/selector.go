package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/kalambet/kashi/internal/songs"
)

// ErrSuperseded is returned by Selector.Select when a newer selection
// started before this one finished.
var ErrSuperseded = errors.New("pipeline: selection superseded")

// Selector tracks the latest song selection of one viewer. Only the most
// recent selection delivers status lines and a result. Older selections run
// to completion, so their cache writes still happen.
type Selector struct {
	p      *Pipeline
	latest atomic.Uint64
}

// NewSelector creates a Selector over p.
func NewSelector(p *Pipeline) *Selector {
	return &Selector{p: p}
}

// Select fetches ref as the current selection.
func (s *Selector) Select(ctx context.Context, ref songs.Ref, sink StatusSink) (Result, error) {
	id := s.latest.Add(1)
	current := func() bool { return s.latest.Load() == id }

	res, err := s.p.Fetch(ctx, ref, func(status string) {
		if current() {
			notify(sink, status)
		}
	})
	if !current() {
		return Result{}, ErrSuperseded
	}
	return res, err
}
