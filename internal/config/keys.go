package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration // Go duration, stored as its canonical string
	kBytes    // byte size such as "5MB" or "512KiB", stored as an integer
	kPath     // file path, a leading ~ expands to the home directory
)

type keySpec struct {
	key string
	typ keyType
	env string
	// account marks a secret kept in the platform secret store.
	account string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

func (s keySpec) secret() bool { return s.account != "" }

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "KASHI_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "KASHI_SERVER_TOKEN",
		account: AccountServerToken,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "generator.provider", typ: kString, env: "KASHI_GENERATOR_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Generator.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.Provider },
	},
	{
		key: "generator.model", typ: kString, env: "KASHI_GENERATOR_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Generator.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.Model },
	},
	{
		key: "generator.base_url", typ: kString, env: "KASHI_GENERATOR_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Generator.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.BaseURL },
	},
	{
		key: "generator.api_key", typ: kString, env: "KASHI_API_KEY",
		account: AccountAPIKey,
		apply:   func(cfg *Config, v any) { cfg.Generator.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.APIKey },
	},
	{
		key: "generator.timeout", typ: kDuration, env: "KASHI_GENERATOR_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Generator.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Generator.Timeout },
	},
	{
		key: "generator.max_output_tokens", typ: kInt, env: "KASHI_GENERATOR_MAX_OUTPUT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Generator.MaxOutputTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Generator.MaxOutputTokens },
	},
	{
		key: "storage.data_dir", typ: kPath, env: "KASHI_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.max_cache_bytes", typ: kBytes, env: "KASHI_STORAGE_MAX_CACHE_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Storage.MaxCacheBytes = v.(int64) },
		extract: func(cfg Config) any { return cfg.Storage.MaxCacheBytes },
	},
	{
		key: "static.db_path", typ: kPath, env: "KASHI_STATIC_DB_PATH",
		apply:   func(cfg *Config, v any) { cfg.Static.DBPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Static.DBPath },
	},
	{
		key: "playlist.path", typ: kPath, env: "KASHI_PLAYLIST_PATH",
		apply:   func(cfg *Config, v any) { cfg.Playlist.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Playlist.Path },
	},
	{
		key: "preload.delay", typ: kDuration, env: "KASHI_PRELOAD_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Preload.Delay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Preload.Delay },
	},
	{
		key: "generate.delay", typ: kDuration, env: "KASHI_GENERATE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Generate.Delay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Generate.Delay },
	},
	{
		key: "log.level", typ: kString, env: "KASHI_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "metrics.enabled", typ: kBool, env: "KASHI_METRICS_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Metrics.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Metrics.Enabled },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parse converts raw into the Go value apply expects for s.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(strings.TrimSpace(raw))
	case kBool:
		return strconv.ParseBool(strings.TrimSpace(raw))
	case kDuration:
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		if d < 0 {
			return nil, errors.New("duration must not be negative")
		}
		return d, nil
	case kBytes:
		n, err := humanize.ParseBytes(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("%s is too large", raw)
		}
		return int64(n), nil
	case kPath:
		return expandHome(raw), nil
	}
	return raw, nil
}

// format renders the value of s in cfg the way a user would type it.
func (s keySpec) format(cfg Config) string {
	v := s.extract(cfg)
	if n, ok := v.(int64); ok && s.typ == kBytes && n >= 0 {
		return humanize.IBytes(uint64(n))
	}
	return fmt.Sprintf("%v", v)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// applyBackend copies stored settings into cfg. A value that does not parse
// is logged and the default kept; a backend read failure is an error.
func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret() {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			slog.Warn("ignoring invalid config value, using default", "key", s.key, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			slog.Warn("ignoring invalid environment value, using default", "env", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}

// applySecrets fills secret keys still empty from the platform secret store.
func applySecrets(cfg *Config, b Backend) {
	for _, s := range specs {
		if !s.secret() || s.extract(*cfg) != "" {
			continue
		}
		v, ok, err := b.Secret(s.account)
		if err != nil {
			slog.Warn("could not read secret store", "key", s.key, "error", err)
			continue
		}
		if ok && strings.TrimSpace(v) != "" {
			s.apply(cfg, strings.TrimSpace(v))
		}
	}
}
