package generator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// Retrying retries rate-limited calls with exponential backoff. Any other
// error is returned immediately.
type Retrying struct {
	next           Generator
	maxRetries     int
	initialBackoff time.Duration
}

// NewRetrying wraps g.
func NewRetrying(g Generator) *Retrying {
	return &Retrying{next: g, maxRetries: maxRetries, initialBackoff: initialBackoff}
}

func (r *Retrying) Name() string { return r.next.Name() }

func (r *Retrying) SupportsWebSearch() bool { return r.next.SupportsWebSearch() }

// Unwrap returns the wrapped generator.
func (r *Retrying) Unwrap() Generator { return r.next }

func (r *Retrying) Generate(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for attempt := range r.maxRetries {
		resp, err := r.next.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !IsRateLimit(err) {
			return Response{}, err
		}

		lastErr = err
		if attempt < r.maxRetries-1 {
			backoff := time.Duration(float64(r.initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return Response{}, fmt.Errorf("rate limited after %d retries: %w", r.maxRetries, lastErr)
}

// IsRateLimit reports whether err looks like a quota or rate-limit rejection
// from the remote service.
func IsRateLimit(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "rate limit")
}
