//go:build !darwin

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "kashi")
}

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "kashi", "config.json")
}

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

// xdgDir returns $env, or $HOME joined with fallback when env is unset.
func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

func apiKeyHint() string {
	return " or run `kashi config set-secret` to store it in " + secretsFilePath()
}

// fileBackend keeps settings in one JSON object per section:
//
//	{"server": {"port": 4100}, "preload": {"delay": "2s"}}
//
// Secrets live in a separate file, mode 0600, keyed by account.
type fileBackend struct {
	path        string
	secretsPath string
	sections    map[string]map[string]any
}

func newPlatformBackend() Backend {
	return openFileBackend(configFilePath(), secretsFilePath())
}

// openFileBackend reads path. An unreadable file is logged and treated as
// empty so defaults apply.
func openFileBackend(path, secretsPath string) *fileBackend {
	b := &fileBackend{path: path, secretsPath: secretsPath}
	if err := readJSON(path, &b.sections); err != nil {
		slog.Warn("ignoring config file, using defaults", "path", path, "error", err)
		b.sections = nil
	}
	if b.sections == nil {
		b.sections = make(map[string]map[string]any)
	}
	return b
}

func (b *fileBackend) Location() string {
	return fmt.Sprintf("%s (secrets: %s)", b.path, b.secretsPath)
}

func splitKey(key string) (section, field string) {
	section, field, _ = strings.Cut(key, ".")
	return section, field
}

func (b *fileBackend) value(key string) (any, bool) {
	section, field := splitKey(key)
	v, ok := b.sections[section][field]
	return v, ok
}

func (b *fileBackend) set(key string, v any) error {
	section, field := splitKey(key)
	if b.sections[section] == nil {
		b.sections[section] = make(map[string]any)
	}
	b.sections[section][field] = v
	return writeJSON(b.path, b.sections, 0o644)
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.value(key)
	if !ok {
		return "", false, nil
	}
	switch val := v.(type) {
	case string:
		return val, true, nil
	case json.Number:
		return val.String(), true, nil
	case bool:
		return strconv.FormatBool(val), true, nil
	case int:
		return strconv.Itoa(val), true, nil
	}
	return "", true, fmt.Errorf("%s: expected a scalar, got %T", key, v)
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.value(key)
	if !ok {
		return 0, false, nil
	}
	var raw string
	switch val := v.(type) {
	case int:
		return val, true, nil
	case json.Number:
		raw = val.String()
	case string:
		raw = val
	default:
		return 0, true, fmt.Errorf("%s: expected an integer, got %T", key, v)
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return i, true, nil
}

func (b *fileBackend) SetString(key, val string) error { return b.set(key, val) }

func (b *fileBackend) SetInt(key string, val int) error { return b.set(key, val) }

func (b *fileBackend) Delete(key string) error {
	section, field := splitKey(key)
	if _, ok := b.sections[section][field]; !ok {
		return nil
	}
	delete(b.sections[section], field)
	if len(b.sections[section]) == 0 {
		delete(b.sections, section)
	}
	return writeJSON(b.path, b.sections, 0o644)
}

func (b *fileBackend) Secret(account string) (string, bool, error) {
	var secrets map[string]string
	if err := readJSON(b.secretsPath, &secrets); err != nil {
		return "", false, fmt.Errorf("reading secrets: %w", err)
	}
	v, ok := secrets[account]
	return v, ok, nil
}

// SetSecret refuses to overwrite a secrets file it cannot parse.
func (b *fileBackend) SetSecret(account, val string) error {
	var secrets map[string]string
	if err := readJSON(b.secretsPath, &secrets); err != nil {
		return fmt.Errorf("reading secrets: %w", err)
	}
	if secrets == nil {
		secrets = make(map[string]string)
	}
	secrets[account] = val
	return writeJSON(b.secretsPath, secrets, 0o600)
}

// readJSON decodes path into v, keeping numbers as json.Number. A missing
// file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// writeJSON replaces path atomically.
func writeJSON(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
