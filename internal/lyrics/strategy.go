package lyrics

import (
	"context"

	"github.com/kalambet/kashi/internal/generator"
	"github.com/kalambet/kashi/internal/songs"
)

// Status strings reported while each strategy runs.
const (
	StatusStrictSearch = "Web検索中..."
	StatusBroadSearch  = "Web検索中 (広域)..."
	StatusModelRecall  = "検索失敗...知識ベースから復元中..."
)

// Strategy names.
const (
	NameStrictSearch = "strict_search"
	NameBroadSearch  = "broad_search"
	NameModelRecall  = "model_recall"
)

const retrievalTemperature = 0.1

// Result is validated raw lyrics and where they came from.
type Result struct {
	Text     string
	Sources  []string
	Strategy string
}

// Strategy is one way of obtaining raw lyrics for a song.
type Strategy interface {
	Name() string
	// Status is the progress line shown while the strategy runs.
	Status() string
	// NeedsWebSearch reports whether the strategy requires a search-capable generator.
	NeedsWebSearch() bool
	// Attempt returns validated lyrics, or a REMOTE_CALL_FAILED or
	// VALIDATION_REJECTED *Error.
	Attempt(ctx context.Context, gen generator.Generator, ref songs.Ref) (Result, error)
}

// promptStrategy asks the generator once with a fixed prompt template.
type promptStrategy struct {
	name      string
	status    string
	webSearch bool
	prompt    func(songs.Ref) string
}

func (s promptStrategy) Name() string         { return s.name }
func (s promptStrategy) Status() string       { return s.status }
func (s promptStrategy) NeedsWebSearch() bool { return s.webSearch }

func (s promptStrategy) Attempt(ctx context.Context, gen generator.Generator, ref songs.Ref) (Result, error) {
	resp, err := gen.Generate(ctx, generator.Request{
		Prompt:      s.prompt(ref),
		WebSearch:   s.webSearch,
		Temperature: retrievalTemperature,
		Purpose:     s.name,
	})
	if err != nil {
		return Result{}, NewRemoteCallFailed(s.name, err)
	}
	text := generator.StripFences(resp.Text)
	if err := Validate(text); err != nil {
		return Result{}, err
	}
	res := Result{Text: text, Strategy: s.name}
	if s.webSearch {
		res.Sources = uniqueSources(resp.Sources)
	}
	return res, nil
}

// StrictSearch searches the web restricted to well-known lyrics sites.
func StrictSearch() Strategy {
	return promptStrategy{name: NameStrictSearch, status: StatusStrictSearch, webSearch: true, prompt: strictSearchPrompt}
}

// BroadSearch searches the web for official lyrics without a site restriction.
func BroadSearch() Strategy {
	return promptStrategy{name: NameBroadSearch, status: StatusBroadSearch, webSearch: true, prompt: broadSearchPrompt}
}

// ModelRecall asks the model to recall the lyrics from training data. Its
// results never carry sources.
func ModelRecall() Strategy {
	return promptStrategy{name: NameModelRecall, status: StatusModelRecall, prompt: recallPrompt}
}

// DefaultStrategies returns strict search, broad search and model recall, in that order.
func DefaultStrategies() []Strategy {
	return []Strategy{StrictSearch(), BroadSearch(), ModelRecall()}
}

func uniqueSources(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
