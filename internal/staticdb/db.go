// Package staticdb holds the precomputed lyrics database: a JSON object
// mapping song query keys to annotated markup. DB serves it read-only and
// Builder generates it offline.
package staticdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const loadTimeout = 30 * time.Second

// DB is the static lyrics tier. It is loaded at most once per process.
type DB struct {
	source string
	client *http.Client

	once    sync.Once
	loaded  atomic.Bool
	mu      sync.RWMutex
	entries map[string]string
}

// New returns an unloaded DB reading from source, a file path or an
// http(s) URL. An empty source loads as an empty database.
func New(source string) *DB {
	return &DB{source: source, client: &http.Client{Timeout: loadTimeout}}
}

// Source returns the path or URL the DB loads from.
func (d *DB) Source() string { return d.source }

// EnsureLoaded loads the database on first call. A missing or unreadable
// source leaves the DB empty; the failure is logged, not returned. Later
// calls are no-ops.
func (d *DB) EnsureLoaded(ctx context.Context) {
	d.once.Do(func() {
		entries, err := d.read(ctx)
		if err != nil {
			slog.Warn("static lyrics db unavailable, continuing without it", "source", d.source, "error", err)
			entries = map[string]string{}
		} else {
			slog.Info("static lyrics db loaded", "source", d.source, "songs", len(entries))
		}
		d.mu.Lock()
		d.entries = entries
		d.mu.Unlock()
		d.loaded.Store(true)
	})
}

// Loaded reports whether the first load attempt has finished.
func (d *DB) Loaded() bool { return d.loaded.Load() }

// Lookup returns the markup stored under key. It misses while the DB is
// still loading.
func (d *DB) Lookup(key string) (string, bool) {
	if !d.Loaded() {
		return "", false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.entries[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// Len returns the number of loaded entries.
func (d *DB) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

func (d *DB) read(ctx context.Context) (map[string]string, error) {
	if d.source == "" {
		return map[string]string{}, nil
	}
	if strings.HasPrefix(d.source, "http://") || strings.HasPrefix(d.source, "https://") {
		return d.fetch(ctx)
	}
	return ReadFile(d.source)
}

func (d *DB) fetch(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.source, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", d.source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", d.source, resp.StatusCode)
	}
	return decode(resp.Body)
}

// ReadFile reads a database file. A missing file is an empty database.
func ReadFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(f)
}

func decode(r io.Reader) (map[string]string, error) {
	entries := map[string]string{}
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding lyrics db: %w", err)
	}
	return entries, nil
}
