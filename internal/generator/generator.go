// Package generator talks to remote generative text services. A Generator
// turns one prompt into text, optionally grounded in web search results
// whose source URLs are reported alongside the text.
package generator

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNoCredentials is returned by New when the selected provider needs
	// an API key and none is configured.
	ErrNoCredentials = errors.New("generator: no API key configured")

	// ErrSearchUnsupported is returned for WebSearch requests sent to a
	// generator that cannot ground on web search.
	ErrSearchUnsupported = errors.New("generator: web search not supported by this provider")

	// ErrEmptyResponse is returned when the service answers with no text.
	ErrEmptyResponse = errors.New("generator: empty response")
)

// Request is a single generation call.
type Request struct {
	Prompt string
	// WebSearch enables search grounding. Generators that cannot search
	// reject such requests with ErrSearchUnsupported.
	WebSearch       bool
	Temperature     float32
	MaxOutputTokens int
	// ThinkingBudget caps reasoning tokens on models that support it. Zero
	// leaves the model default.
	ThinkingBudget int
	// Purpose labels the call in logs and metrics ("search", "recall", "annotate", ...).
	Purpose string
}

// Response is the text of a generation and the web sources it was grounded on.
type Response struct {
	Text    string
	Sources []string
}

// Generator abstracts a remote text generation backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
	SupportsWebSearch() bool
}

var fenceLanguages = []string{"html", "json", "text"}

// StripFences removes a leading markdown code fence (optionally tagged html,
// json or text) and a trailing fence, then trims surrounding whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		for _, lang := range fenceLanguages {
			if r, ok := strings.CutPrefix(rest, lang); ok {
				rest = r
				break
			}
		}
		s = rest
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// dedupe returns xs without empty strings or repeats, preserving first occurrence order.
func dedupe(xs []string) []string {
	if len(xs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(xs))
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if x == "" {
			continue
		}
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}
