package config

import (
	"fmt"
	"strconv"
	"time"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from cfg.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret() {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  s.format(cfg),
		})
	}
	return result
}

// SetKey validates value for key and writes it to the platform backend.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), key, value)
}

func setKeyWith(b Backend, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret() {
		return fmt.Errorf("cannot set secret %q via config; use environment variable %s or `kashi config set-secret --key %s`", key, s.env, key)
	}

	v, err := s.parse(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	switch s.typ {
	case kInt:
		return b.SetInt(key, v.(int))
	case kBytes:
		return b.SetInt(key, int(v.(int64)))
	case kBool:
		return b.SetString(key, strconv.FormatBool(v.(bool)))
	case kDuration:
		return b.SetString(key, v.(time.Duration).String())
	}
	return b.SetString(key, value)
}

// SetSecret stores value for the secret key (generator.api_key or
// server.token) in the platform secret store.
func SetSecret(key, value string) error {
	return setSecretWith(newPlatformBackend(), key, value)
}

func setSecretWith(b Backend, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok || !s.secret() {
		return fmt.Errorf("%q is not a secret; valid secrets: generator.api_key, server.token", key)
	}
	if value == "" {
		return fmt.Errorf("%s must not be empty", key)
	}
	return b.SetSecret(s.account, value)
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret() {
			keys = append(keys, s.key)
		}
	}
	return keys
}
