package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kalambet/kashi/internal/cache"
	"github.com/kalambet/kashi/internal/config"
	"github.com/kalambet/kashi/internal/generator"
	"github.com/kalambet/kashi/internal/lyrics"
	"github.com/kalambet/kashi/internal/observe"
	"github.com/kalambet/kashi/internal/pipeline"
	"github.com/kalambet/kashi/internal/songs"
	"github.com/kalambet/kashi/internal/staticdb"
	"github.com/kalambet/kashi/internal/storage"
)

const defaultGeneratorTimeout = 90 * time.Second

// app holds the components shared by the server and the in-process commands.
type app struct {
	cfg      config.Config
	store    *storage.Store
	static   *staticdb.DB
	gen      generator.Generator
	pipeline *pipeline.Pipeline
	playlist []songs.Ref
	metrics  *observe.Metrics
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// loadConfig loads configuration and installs the logger it selects.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg.Log.Level)
	return cfg, nil
}

// newApp opens storage and builds the pipeline. The static database is
// created but not loaded; callers decide whether to load it in the
// background or wait for it.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	playlist, err := songs.Load(cfg.Playlist.Path)
	if err != nil {
		return nil, fmt.Errorf("loading playlist: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	store.SetMaxCacheBytes(cfg.Storage.MaxCacheBytes)

	metrics := observe.DefaultMetrics()
	gen, err := newGenerator(ctx, cfg, metrics)
	if err != nil {
		store.Close()
		return nil, err
	}

	static := staticdb.New(cfg.Static.DBPath)
	p := pipeline.New(cache.NewResolver(store, static), gen, pipeline.Options{
		MaxOutputTokens: cfg.Generator.MaxOutputTokens,
		CredentialsHint: config.APIKeyHint(),
		Metrics:         metrics,
	})

	return &app{
		cfg:      cfg,
		store:    store,
		static:   static,
		gen:      gen,
		pipeline: p,
		playlist: playlist,
		metrics:  metrics,
	}, nil
}

// newGenerator returns nil without error when no API key is configured so
// cached lyrics can still be served.
func newGenerator(ctx context.Context, cfg config.Config, metrics *observe.Metrics) (generator.Generator, error) {
	gen, err := generator.New(ctx, generator.Config{
		Provider: cfg.Generator.Provider,
		Model:    cfg.Generator.Model,
		APIKey:   cfg.Generator.APIKey,
		BaseURL:  cfg.Generator.BaseURL,
		Timeout:  cmp.Or(cfg.Generator.Timeout, defaultGeneratorTimeout),
	})
	if errors.Is(err, generator.ErrNoCredentials) {
		slog.Warn("no generator API key configured, only cached lyrics are available", "hint", config.APIKeyHint())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating generator: %w", err)
	}
	slog.Debug("generator ready", "name", gen.Name(), "web_search", gen.SupportsWebSearch())
	return generator.NewInstrumented(gen, metrics), nil
}

// requireGenerator fails with CREDENTIALS_MISSING when no generator is set.
func (a *app) requireGenerator() error {
	if a.gen == nil {
		return lyrics.NewCredentialsMissing(config.APIKeyHint())
	}
	return nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}

// resolveSong turns CLI input into a song reference: a single argument is a
// query key, otherwise title and artist flags are used.
func resolveSong(playlist []songs.Ref, args []string, title, artist string) (songs.Ref, error) {
	if len(args) > 0 {
		key := strings.Join(args, " ")
		ref, ok := songs.FromQuery(playlist, key)
		if !ok {
			return songs.Ref{}, errors.New("song query must not be blank")
		}
		return ref, nil
	}
	if title == "" {
		return songs.Ref{}, errors.New("a song query or --title is required")
	}
	return songs.NewRef(title, artist)
}
