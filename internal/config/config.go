package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Generator GeneratorConfig
	Storage   StorageConfig
	Static    StaticConfig
	Playlist  PlaylistConfig
	Preload   PreloadConfig
	Generate  GenerateConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Port int
	// Token, when set, is required as a bearer token on mutating endpoints.
	Token string
}

type GeneratorConfig struct {
	Provider        string
	Model           string
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	MaxOutputTokens int
}

type StorageConfig struct {
	DataDir string
	// MaxCacheBytes bounds the local lyrics cache. Zero disables the bound.
	MaxCacheBytes int64
}

type StaticConfig struct {
	// DBPath is a file path or http(s) URL of the precomputed lyrics database.
	DBPath string
}

type PlaylistConfig struct {
	// Path overrides the embedded playlist when non-empty.
	Path string
}

type PreloadConfig struct {
	// Delay is the pause after each song that needed generation.
	Delay time.Duration
}

type GenerateConfig struct {
	// Delay is the pause between static database generation requests.
	Delay time.Duration
}

type LogConfig struct {
	Level string
}

type MetricsConfig struct {
	Enabled bool
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Generator: GeneratorConfig{
			Provider:        "gemini",
			Model:           "gemini-2.5-flash",
			Timeout:         90 * time.Second,
			MaxOutputTokens: 8192,
		},
		Storage: StorageConfig{
			DataDir:       defaultDataDir(),
			MaxCacheBytes: 5 << 20,
		},
		Preload: PreloadConfig{
			Delay: time.Second,
		},
		Generate: GenerateConfig{
			Delay: 4 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// apiKeyEnvFallbacks are consulted, in order, when KASHI_API_KEY is unset.
var apiKeyEnvFallbacks = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY"}

// Load reads configuration from the platform-native backend, environment
// variables, and the platform secret store.
//
// On macOS settings live in UserDefaults (domain: com.kashi.app) and
// secrets in the Keychain (service: kashi).
// Elsewhere settings live in $XDG_CONFIG_HOME/kashi/config.json, one object
// per section, and secrets in $XDG_DATA_HOME/kashi/secrets.json.
//
// Environment variables (KASHI_*) override backend values on all platforms.
// Secrets not set through the environment come from the secret store. A
// missing API key is not an error: commands that need the remote generator
// report it when they run.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

// Location describes where the platform backend keeps settings and secrets.
func Location() string {
	return newPlatformBackend().Location()
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Generator.APIKey == "" {
		for _, name := range apiKeyEnvFallbacks {
			if v := strings.TrimSpace(os.Getenv(name)); v != "" {
				cfg.Generator.APIKey = v
				break
			}
		}
	}

	applySecrets(&cfg, b)

	if cfg.Static.DBPath == "" {
		cfg.Static.DBPath = filepath.Join(cfg.Storage.DataDir, "lyrics-db.json")
	}

	return cfg, nil
}

// APIKeyHint tells the user where the API key can be provided.
func APIKeyHint() string {
	return "set KASHI_API_KEY (or GEMINI_API_KEY)" + apiKeyHint()
}
