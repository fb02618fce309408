package config

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

// mapBackend is an in-memory Backend.
type mapBackend struct {
	data      map[string]string
	secrets   map[string]string
	secretErr error
}

func newMapBackend() *mapBackend {
	return &mapBackend{data: map[string]string{}, secrets: map[string]string{}}
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(v)
	return i, true, err
}

func (m *mapBackend) SetString(key, val string) error {
	m.data[key] = val
	return nil
}

func (m *mapBackend) SetInt(key string, val int) error {
	m.data[key] = strconv.Itoa(val)
	return nil
}

func (m *mapBackend) Delete(key string) error {
	delete(m.data, key)
	return nil
}

func (m *mapBackend) Secret(account string) (string, bool, error) {
	if m.secretErr != nil {
		return "", false, m.secretErr
	}
	v, ok := m.secrets[account]
	return v, ok, nil
}

func (m *mapBackend) SetSecret(account, val string) error {
	m.secrets[account] = val
	return nil
}

func (m *mapBackend) Location() string { return "memory" }

// clearAPIKeyEnv isolates tests from API keys present in the developer's shell.
func clearAPIKeyEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KASHI_API_KEY", "")
	for _, name := range apiKeyEnvFallbacks {
		t.Setenv(name, "")
	}
}


func TestDefaults(t *testing.T) {
	clearAPIKeyEnv(t)

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Generator.Provider != "gemini" {
		t.Errorf("Generator.Provider = %q, want %q", cfg.Generator.Provider, "gemini")
	}
	if cfg.Generator.Model != "gemini-2.5-flash" {
		t.Errorf("Generator.Model = %q, want %q", cfg.Generator.Model, "gemini-2.5-flash")
	}
	if cfg.Generator.MaxOutputTokens != 8192 {
		t.Errorf("Generator.MaxOutputTokens = %d, want 8192", cfg.Generator.MaxOutputTokens)
	}
	if cfg.Generator.Timeout != 90*time.Second {
		t.Errorf("Generator.Timeout = %v, want 90s", cfg.Generator.Timeout)
	}
	if cfg.Preload.Delay != time.Second {
		t.Errorf("Preload.Delay = %v, want 1s", cfg.Preload.Delay)
	}
	if cfg.Generate.Delay != 4*time.Second {
		t.Errorf("Generate.Delay = %v, want 4s", cfg.Generate.Delay)
	}
	if cfg.Storage.MaxCacheBytes != 5<<20 {
		t.Errorf("Storage.MaxCacheBytes = %d, want %d", cfg.Storage.MaxCacheBytes, 5<<20)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
	if !strings.HasSuffix(cfg.Static.DBPath, "lyrics-db.json") {
		t.Errorf("Static.DBPath = %q, want default under data dir", cfg.Static.DBPath)
	}
}

// TestMissingAPIKeyIsNotFatal verifies config loads without credentials.
func TestMissingAPIKeyIsNotFatal(t *testing.T) {
	clearAPIKeyEnv(t)

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Generator.APIKey != "" {
		t.Errorf("APIKey = %q, want empty", cfg.Generator.APIKey)
	}
}

func TestBackendValues(t *testing.T) {
	clearAPIKeyEnv(t)

	b := newMapBackend()
	b.data["server.port"] = "5000"
	b.data["storage.max_cache_bytes"] = "1024"
	b.data["preload.delay"] = "2500ms"
	b.data["generator.provider"] = "openai"
	b.data["generator.model"] = "gpt-4o-mini"
	b.data["storage.data_dir"] = "/tmp/kashi-test"
	b.data["metrics.enabled"] = "false"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Storage.MaxCacheBytes != 1024 {
		t.Errorf("Storage.MaxCacheBytes = %d, want 1024", cfg.Storage.MaxCacheBytes)
	}
	if cfg.Preload.Delay != 2500*time.Millisecond {
		t.Errorf("Preload.Delay = %v, want 2.5s", cfg.Preload.Delay)
	}
	if cfg.Generator.Provider != "openai" {
		t.Errorf("Generator.Provider = %q", cfg.Generator.Provider)
	}
	if cfg.Generator.Model != "gpt-4o-mini" {
		t.Errorf("Generator.Model = %q", cfg.Generator.Model)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false")
	}
	if cfg.Static.DBPath != "/tmp/kashi-test/lyrics-db.json" {
		t.Errorf("Static.DBPath = %q, want it derived from data dir", cfg.Static.DBPath)
	}
}

// TestBackendSkipsSecrets verifies secrets are never read from the plain backend.
func TestBackendSkipsSecrets(t *testing.T) {
	clearAPIKeyEnv(t)

	b := newMapBackend()
	b.data["generator.api_key"] = "leaked"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Generator.APIKey != "" {
		t.Errorf("APIKey = %q, want empty", cfg.Generator.APIKey)
	}
}

func TestEnvOverride(t *testing.T) {
	clearAPIKeyEnv(t)
	t.Setenv("KASHI_API_KEY", "env-key")
	t.Setenv("KASHI_SERVER_PORT", "6000")
	t.Setenv("KASHI_METRICS_ENABLED", "false")

	b := newMapBackend()
	b.data["server.port"] = "5000"
	b.secrets[AccountAPIKey] = "keychain-key"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Generator.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want %q", cfg.Generator.APIKey, "env-key")
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false")
	}
}

func TestEnvOverride_InvalidIntKeepsValue(t *testing.T) {
	clearAPIKeyEnv(t)
	t.Setenv("KASHI_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default 4100", cfg.Server.Port)
	}
}

func TestAPIKeyEnvFallbacks(t *testing.T) {
	clearAPIKeyEnv(t)
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("API_KEY", "plain-key")

	b := newMapBackend()
	b.secrets[AccountAPIKey] = "keychain-key"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Generator.APIKey != "google-key" {
		t.Errorf("APIKey = %q, want %q", cfg.Generator.APIKey, "google-key")
	}
}

func TestSecretStoreFallback(t *testing.T) {
	clearAPIKeyEnv(t)
	t.Setenv("KASHI_SERVER_TOKEN", "")

	b := newMapBackend()
	b.secrets[AccountAPIKey] = " keychain-secret\n"
	b.secrets[AccountServerToken] = "stored-token"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Generator.APIKey != "keychain-secret" {
		t.Errorf("APIKey = %q, want %q", cfg.Generator.APIKey, "keychain-secret")
	}
	if cfg.Server.Token != "stored-token" {
		t.Errorf("Server.Token = %q, want %q", cfg.Server.Token, "stored-token")
	}
}

func TestSecretStoreErrorIsNotFatal(t *testing.T) {
	clearAPIKeyEnv(t)

	b := newMapBackend()
	b.secretErr = errors.New("keychain locked")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Generator.APIKey != "" {
		t.Errorf("APIKey = %q, want empty", cfg.Generator.APIKey)
	}
}

func TestInvalidTypedValuesKeepDefaults(t *testing.T) {
	clearAPIKeyEnv(t)
	t.Setenv("KASHI_GENERATE_DELAY", "-3s")

	b := newMapBackend()
	b.data["preload.delay"] = "soon"
	b.data["storage.max_cache_bytes"] = "lots"
	b.data["metrics.enabled"] = "maybe"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Preload.Delay != time.Second {
		t.Errorf("Preload.Delay = %v, want default 1s", cfg.Preload.Delay)
	}
	if cfg.Generate.Delay != 4*time.Second {
		t.Errorf("Generate.Delay = %v, want default 4s", cfg.Generate.Delay)
	}
	if cfg.Storage.MaxCacheBytes != 5<<20 {
		t.Errorf("Storage.MaxCacheBytes = %d, want default", cfg.Storage.MaxCacheBytes)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want default true")
	}
}

func TestByteSizesAndPaths(t *testing.T) {
	clearAPIKeyEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("KASHI_STORAGE_MAX_CACHE_BYTES", "2MiB")

	b := newMapBackend()
	b.data["playlist.path"] = "~/music/playlist.yaml"
	b.data["storage.data_dir"] = "/srv/kashi"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.MaxCacheBytes != 2<<20 {
		t.Errorf("Storage.MaxCacheBytes = %d, want %d", cfg.Storage.MaxCacheBytes, 2<<20)
	}
	if want := filepath.Join(home, "music", "playlist.yaml"); cfg.Playlist.Path != want {
		t.Errorf("Playlist.Path = %q, want %q", cfg.Playlist.Path, want)
	}
	if cfg.Storage.DataDir != "/srv/kashi" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
}

func TestSetKey(t *testing.T) {
	b := newMapBackend()

	if err := setKeyWith(b, "server.port", "4200"); err != nil {
		t.Fatalf("setKeyWith int: %v", err)
	}
	if b.data["server.port"] != "4200" {
		t.Errorf("server.port = %q, want 4200", b.data["server.port"])
	}
	if err := setKeyWith(b, "metrics.enabled", "0"); err != nil {
		t.Fatalf("setKeyWith bool: %v", err)
	}
	if b.data["metrics.enabled"] != "false" {
		t.Errorf("metrics.enabled = %q, want %q", b.data["metrics.enabled"], "false")
	}
	if err := setKeyWith(b, "preload.delay", "1500ms"); err != nil {
		t.Fatalf("setKeyWith duration: %v", err)
	}
	if b.data["preload.delay"] != "1.5s" {
		t.Errorf("preload.delay = %q, want %q", b.data["preload.delay"], "1.5s")
	}
	if err := setKeyWith(b, "storage.max_cache_bytes", "10MB"); err != nil {
		t.Fatalf("setKeyWith bytes: %v", err)
	}
	if b.data["storage.max_cache_bytes"] != "10000000" {
		t.Errorf("storage.max_cache_bytes = %q, want 10000000", b.data["storage.max_cache_bytes"])
	}
	if err := setKeyWith(b, "server.port", "abc"); err == nil {
		t.Error("expected error for invalid integer")
	}
	if err := setKeyWith(b, "generate.delay", "-1s"); err == nil {
		t.Error("expected error for negative duration")
	}
	if _, ok := b.data["generate.delay"]; ok {
		t.Error("rejected value was written")
	}
	if err := setKeyWith(b, "generator.api_key", "x"); err == nil {
		t.Error("expected error when setting a secret")
	}
	if err := setKeyWith(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAllOmitsSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Generator.APIKey = "secret"
	cfg.Server.Token = "token"

	for _, info := range ShowAll(cfg) {
		if info.Key == "generator.api_key" || info.Key == "server.token" {
			t.Errorf("ShowAll exposed secret key %q", info.Key)
		}
		if info.Value == "secret" || info.Value == "token" {
			t.Errorf("ShowAll exposed secret value under %q", info.Key)
		}
	}
	if len(ShowAll(cfg)) != len(ValidKeys()) {
		t.Errorf("ShowAll and ValidKeys disagree: %d vs %d", len(ShowAll(cfg)), len(ValidKeys()))
	}
}

func TestSetSecret(t *testing.T) {
	b := newMapBackend()

	if err := setSecretWith(b, "generator.api_key", "k-123"); err != nil {
		t.Fatalf("setSecretWith api key: %v", err)
	}
	if err := setSecretWith(b, "server.token", "t-456"); err != nil {
		t.Fatalf("setSecretWith token: %v", err)
	}
	if b.secrets[AccountAPIKey] != "k-123" || b.secrets[AccountServerToken] != "t-456" {
		t.Errorf("secrets = %v", b.secrets)
	}
	if err := setSecretWith(b, "server.port", "1"); err == nil {
		t.Error("expected error for a non-secret key")
	}
	if err := setSecretWith(b, "generator.api_key", ""); err == nil {
		t.Error("expected error for an empty secret")
	}
}

func TestShowAllFormatsTypedValues(t *testing.T) {
	cfg := defaults()
	cfg.Preload.Delay = 1500 * time.Millisecond

	got := map[string]string{}
	for _, info := range ShowAll(cfg) {
		got[info.Key] = info.Value
	}
	if got["preload.delay"] != "1.5s" {
		t.Errorf("preload.delay = %q, want 1.5s", got["preload.delay"])
	}
	if got["storage.max_cache_bytes"] != "5.0 MiB" {
		t.Errorf("storage.max_cache_bytes = %q, want 5.0 MiB", got["storage.max_cache_bytes"])
	}
}
