package staticdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/kashi/internal/generator"
	"github.com/kalambet/kashi/internal/songs"
)

const (
	// DefaultDelay is the pause between generation requests.
	DefaultDelay = 4 * time.Second

	// existingMinLength is the length above which an existing entry is kept.
	existingMinLength = 50

	sentinel = "NOT_FOUND"
)

// Progress statuses reported by Builder.Run.
const (
	StatusSkipped    = "skipped"
	StatusGenerating = "generating"
	StatusGenerated  = "generated"
	StatusFailed     = "failed"
)

// Progress describes one song of a build.
type Progress struct {
	Index  int // 1-based
	Total  int
	Song   songs.Ref
	Status string
	Err    error
}

// Report summarises a build.
type Report struct {
	Total     int  `json:"total"`
	Generated int  `json:"generated"`
	Skipped   int  `json:"skipped"`
	Failed    int  `json:"failed"`
	Aborted   bool `json:"aborted"`
}

// Builder generates the static database offline, one song at a time.
type Builder struct {
	gen      generator.Generator
	path     string
	delay    time.Duration
	progress func(Progress)
}

// NewBuilder creates a Builder writing to path.
func NewBuilder(gen generator.Generator, path string) *Builder {
	return &Builder{gen: gen, path: path, delay: DefaultDelay}
}

// WithDelay sets the pause between requests.
func (b *Builder) WithDelay(d time.Duration) *Builder {
	b.delay = d
	return b
}

// OnProgress registers a callback invoked for each song.
func (b *Builder) OnProgress(fn func(Progress)) *Builder {
	b.progress = fn
	return b
}

// Run generates markup for every song that the existing file lacks. The file
// is rewritten after each success so an interrupted run can resume. A
// cancelled ctx stops the run between songs and is returned as the error.
func (b *Builder) Run(ctx context.Context, list []songs.Ref) (Report, error) {
	report := Report{Total: len(list)}

	db, err := ReadFile(b.path)
	if err != nil {
		return report, fmt.Errorf("reading existing db %s: %w", b.path, err)
	}
	slog.Info("generating static lyrics db", "songs", len(list), "existing", len(db), "output", b.path)

	for i, ref := range list {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			return report, err
		}
		p := Progress{Index: i + 1, Total: len(list), Song: ref}

		if utf8.RuneCountInString(db[ref.QueryKey]) > existingMinLength {
			report.Skipped++
			p.Status = StatusSkipped
			b.report(p)
			continue
		}

		p.Status = StatusGenerating
		b.report(p)

		markup, err := b.generate(ctx, ref)
		if err != nil {
			report.Failed++
			p.Status, p.Err = StatusFailed, err
			slog.Warn("static db generation failed", "song", ref.QueryKey, "error", err)
		} else {
			db[ref.QueryKey] = markup
			if err := WriteFile(b.path, db); err != nil {
				return report, fmt.Errorf("saving db: %w", err)
			}
			report.Generated++
			p.Status = StatusGenerated
		}
		b.report(p)

		if i < len(list)-1 && !sleep(ctx, b.delay) {
			report.Aborted = true
			return report, ctx.Err()
		}
	}
	return report, nil
}

func (b *Builder) generate(ctx context.Context, ref songs.Ref) (string, error) {
	resp, err := b.gen.Generate(ctx, generator.Request{
		Prompt:          recallMarkupPrompt(ref),
		Temperature:     0.2,
		MaxOutputTokens: 8192,
		ThinkingBudget:  2048,
		Purpose:         "generate_db",
	})
	if err != nil {
		return "", err
	}
	markup := generator.StripFences(resp.Text)
	switch {
	case markup == "":
		return "", generator.ErrEmptyResponse
	case strings.Contains(markup, sentinel):
		return "", fmt.Errorf("model does not know %q", ref.QueryKey)
	}
	return markup, nil
}

func (b *Builder) report(p Progress) {
	if b.progress != nil {
		b.progress(p)
	}
}

// WriteFile saves db as indented JSON, replacing path atomically.
func WriteFile(path string, db map[string]string) error {
	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".lyrics-db-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
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

func recallMarkupPrompt(ref songs.Ref) string {
	return fmt.Sprintf(`You are a strict and professional Japanese lyrics editor.
Your task is to recall the OFFICIAL, FULL VERSION lyrics for the song:

Song: "%s"
Artist: "%s"

CRITICAL INSTRUCTIONS:
1. ACCURACY IS PARAMOUNT: Use your internal knowledge to retrieve the exact official lyrics. Do not summarize, do not use "TV Size" versions, and do not make up lines.
2. FORMAT: Output the lyrics in HTML.
3. FURIGANA (RUBY): Add Furigana to EVERY Kanji using <ruby> tags.
   - SPECIAL READINGS (Ateji): use the reading the artist actually sings
     (e.g. if 本気 is sung as マジ, output <ruby>本気<rt>マジ</rt></ruby>).
4. LAYOUT: Use <br/> tags for line breaks. Separate stanzas clearly.
5. CLEAN OUTPUT: Output raw HTML string only. No markdown.

If unsure, return "%s".`, ref.Title, ref.Artist, sentinel)
}
