package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrQuotaExceeded is returned when a cache write would grow the lyrics cache
// past its configured byte limit.
var ErrQuotaExceeded = errors.New("cache quota exceeded")

// CacheEntry is one row of the local lyrics cache.
type CacheEntry struct {
	Key       string
	Value     string
	SizeBytes int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
	ResultJSON  string
}

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)
