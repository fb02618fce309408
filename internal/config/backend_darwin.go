//go:build darwin

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.kashi.app"

// Exit codes meaning "no such entry".
const (
	defaultsNotFound = 1
	securityNotFound = 44
)

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "kashi")
	}
	return "kashi-data"
}

func apiKeyHint() string {
	return " or run `kashi config set-secret` to store it in the macOS Keychain (service " + SecretService + ")"
}

// toolRunner runs a command and returns its trimmed stdout, or its trimmed
// stderr when it exits non-zero. err is set only when the command could not
// run at all.
type toolRunner func(name string, args ...string) (out string, code int, err error)

// darwinBackend keeps settings in a UserDefaults domain through defaults(1)
// and secrets in the login Keychain through security(1).
type darwinBackend struct {
	domain string
	run    toolRunner
}

func newPlatformBackend() Backend {
	return &darwinBackend{domain: defaultsDomain, run: runTool}
}

func runTool(name string, args ...string) (string, int, error) {
	var stderr bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return strings.TrimSpace(stderr.String()), exitErr.ExitCode(), nil
	}
	if err != nil {
		return "", -1, err
	}
	return strings.TrimSpace(string(out)), 0, nil
}

// call runs a tool and treats notFound as success.
func (b *darwinBackend) call(notFound int, name string, args ...string) (string, bool, error) {
	out, code, err := b.run(name, args...)
	switch {
	case err != nil:
		return "", false, fmt.Errorf("running %s: %w", name, err)
	case code == 0:
		return out, true, nil
	case code == notFound:
		return "", false, nil
	}
	return "", false, fmt.Errorf("%s %s exited %d: %s", name, args[0], code, out)
}

func (b *darwinBackend) Location() string {
	return fmt.Sprintf("UserDefaults domain %s (secrets: Keychain service %s)", b.domain, SecretService)
}

func (b *darwinBackend) GetString(key string) (string, bool, error) {
	return b.call(defaultsNotFound, "defaults", "read", b.domain, key)
}

func (b *darwinBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s: invalid integer %q", key, s)
	}
	return i, true, nil
}

func (b *darwinBackend) SetString(key, val string) error {
	_, _, err := b.call(0, "defaults", "write", b.domain, key, "-string", val)
	return err
}

func (b *darwinBackend) SetInt(key string, val int) error {
	_, _, err := b.call(0, "defaults", "write", b.domain, key, "-int", strconv.Itoa(val))
	return err
}

func (b *darwinBackend) Delete(key string) error {
	_, _, err := b.call(defaultsNotFound, "defaults", "delete", b.domain, key)
	return err
}

func (b *darwinBackend) Secret(account string) (string, bool, error) {
	return b.call(securityNotFound, "security", "find-generic-password", "-s", SecretService, "-a", account, "-w")
}

func (b *darwinBackend) SetSecret(account, val string) error {
	_, _, err := b.call(0, "security", "add-generic-password", "-U", "-s", SecretService, "-a", account, "-w", val)
	return err
}
