package furigana

import (
	"context"
	"log/slog"

	"github.com/kalambet/kashi/internal/generator"
	"github.com/kalambet/kashi/internal/observe"
)

const (
	annotateTemperature     = 0.1
	defaultMaxOutputTokens  = 8192
	noticeMissingReadings   = `<div style="margin-top:20px;font-size:0.75rem;color:#f87171;">※AIがふりがなを生成できませんでした。</div>`
	noticeAnnotationFailure = `<div style="margin-top:20px;font-size:0.75rem;color:#888;">※ふりがな解析に失敗しました（原文表示）</div>`
)

// OutcomeKind says how annotation went.
type OutcomeKind string

const (
	// OutcomeAnnotated means the generator returned markup with readings.
	OutcomeAnnotated OutcomeKind = "annotated"
	// OutcomeIncomplete means the text has kanji but the generator produced
	// no ruby at all. The markup is kept with a notice appended.
	OutcomeIncomplete OutcomeKind = "incomplete"
	// OutcomeFallback means the request failed and the raw text was
	// formatted mechanically.
	OutcomeFallback OutcomeKind = "fallback"
)

// Outcome is the annotated markup and how it was produced.
type Outcome struct {
	Markup string
	Kind   OutcomeKind
}

// Annotator asks a generator to add ruby readings to raw lyrics.
type Annotator struct {
	gen             generator.Generator
	maxOutputTokens int
	metrics         *observe.Metrics
}

// NewAnnotator creates an Annotator over gen.
func NewAnnotator(gen generator.Generator) *Annotator {
	return &Annotator{gen: gen, maxOutputTokens: defaultMaxOutputTokens}
}

// WithMaxOutputTokens overrides the output token cap of annotation requests.
func (a *Annotator) WithMaxOutputTokens(n int) *Annotator {
	if n > 0 {
		a.maxOutputTokens = n
	}
	return a
}

// WithMetrics records annotation outcomes to m.
func (a *Annotator) WithMetrics(m *observe.Metrics) *Annotator {
	a.metrics = m
	return a
}

// Annotate converts raw lyrics to ruby markup. It never fails: when the
// generator errors or answers with nothing, the raw text is formatted with
// SimpleFormat and a notice is appended.
func (a *Annotator) Annotate(ctx context.Context, raw string) Outcome {
	out := a.annotate(ctx, raw)
	if a.metrics != nil {
		a.metrics.RecordAnnotation(ctx, string(out.Kind))
	}
	return out
}

func (a *Annotator) annotate(ctx context.Context, raw string) Outcome {
	resp, err := a.gen.Generate(ctx, generator.Request{
		Prompt:          annotatePrompt(raw),
		Temperature:     annotateTemperature,
		MaxOutputTokens: a.maxOutputTokens,
		Purpose:         "annotate",
	})
	if err != nil {
		slog.Warn("furigana: annotation request failed, showing plain text", "error", err)
		return fallback(raw)
	}

	markup := generator.StripFences(resp.Text)
	if markup == "" {
		slog.Warn("furigana: empty annotation, showing plain text")
		return fallback(raw)
	}

	if HasKanji(raw) && CountRuby(markup) == 0 {
		slog.Warn("furigana: generator returned no readings")
		return Outcome{Markup: markup + noticeMissingReadings, Kind: OutcomeIncomplete}
	}
	return Outcome{Markup: markup, Kind: OutcomeAnnotated}
}

func fallback(raw string) Outcome {
	return Outcome{Markup: SimpleFormat(raw) + noticeAnnotationFailure, Kind: OutcomeFallback}
}
