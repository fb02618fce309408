package storage

import (
	"errors"
	"testing"
	"time"
)

func TestJobsTableDefaults(t *testing.T) {
	s := openTestStore(t)

	_, err := s.db.Exec(`INSERT INTO jobs (id, type, run_after, created_at, updated_at)
		VALUES ('j1', 'preload', '2025-01-01T00:00:00Z', '2025-01-01T00:00:00Z', '2025-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("INSERT into jobs: %v", err)
	}

	var payload, status string
	var attempts, maxAttempts int
	err = s.db.QueryRow(`SELECT payload_json, status, attempts, max_attempts FROM jobs WHERE id = 'j1'`).
		Scan(&payload, &status, &attempts, &maxAttempts)
	if err != nil {
		t.Fatalf("SELECT from jobs: %v", err)
	}
	if payload != "{}" {
		t.Errorf("payload_json = %q, want %q", payload, "{}")
	}
	if status != JobPending {
		t.Errorf("status = %q, want %q", status, JobPending)
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0", attempts)
	}
	if maxAttempts != 3 {
		t.Errorf("max_attempts = %d, want 3", maxAttempts)
	}
}

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)

	job := Job{ID: "j-claim-1", Type: "preload", PayloadJSON: `{"songs":["Lemon - 米津玄師"]}`}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"preload"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-claim-1" {
		t.Errorf("ID = %q, want %q", got.ID, "j-claim-1")
	}
	if got.PayloadJSON != job.PayloadJSON {
		t.Errorf("PayloadJSON = %q, want %q", got.PayloadJSON, job.PayloadJSON)
	}
	if got.Status != JobRunning {
		t.Errorf("Status = %q, want %q", got.Status, JobRunning)
	}
	if got.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got.MaxAttempts)
	}
}

func TestEnqueueJob_EmptyPayload(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-empty", Type: "preload"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	got, err := s.GetJob("j-empty")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.PayloadJSON != "{}" {
		t.Errorf("PayloadJSON = %q, want %q", got.PayloadJSON, "{}")
	}
}

func TestClaimNextJob_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ClaimNextJob([]string{"preload"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestClaimNextJob_NoTypes(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ClaimNextJob(nil)
	if err != nil || got != nil {
		t.Errorf("ClaimNextJob(nil) = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	s := openTestStore(t)

	job := Job{ID: "j-future", Type: "preload", RunAfter: time.Now().UTC().Add(time.Hour)}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"preload"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for future run_after, got %+v", got)
	}
}

func TestClaimNextJob_TypeFilter(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-a", Type: "a"}); err != nil {
		t.Fatalf("EnqueueJob a: %v", err)
	}
	if err := s.EnqueueJob(Job{ID: "j-b", Type: "b"}); err != nil {
		t.Fatalf("EnqueueJob b: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"b"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.Type != "b" {
		t.Errorf("Type = %q, want %q", got.Type, "b")
	}
}

func TestClaimNextJob_SkipsRunning(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-first", Type: "x"}); err != nil {
		t.Fatalf("EnqueueJob first: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob first: %v", err)
	}
	if err := s.EnqueueJob(Job{ID: "j-second", Type: "x"}); err != nil {
		t.Fatalf("EnqueueJob second: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"x"})
	if err != nil {
		t.Fatalf("ClaimNextJob second: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-second" {
		t.Errorf("ID = %q, want %q", got.ID, "j-second")
	}
}

func TestCompleteJob_StoresResult(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-complete", Type: "x"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.CompleteJob("j-complete", `{"succeeded":3}`); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	got, err := s.GetJob("j-complete")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != JobCompleted {
		t.Errorf("Status = %q, want %q", got.Status, JobCompleted)
	}
	if got.ResultJSON != `{"succeeded":3}` {
		t.Errorf("ResultJSON = %q", got.ResultJSON)
	}
}

func TestCompleteJob_NotFound(t *testing.T) {
	s := openTestStore(t)

	if err := s.CompleteJob("missing", "{}"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetJob("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFailJob_IncrementsAttempts(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail-inc", Type: "x"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob("j-fail-inc", "something broke"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	got, err := s.GetJob("j-fail-inc")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", got.Attempts)
	}
	if got.Status != JobPending {
		t.Errorf("Status = %q, want %q", got.Status, JobPending)
	}
	if got.LastError != "something broke" {
		t.Errorf("LastError = %q, want %q", got.LastError, "something broke")
	}
}

func TestFailJob_MaxAttemptsReached(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail-max", Type: "x", MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob("j-fail-max", "fatal"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	got, err := s.GetJob("j-fail-max")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != JobFailed {
		t.Errorf("Status = %q, want %q", got.Status, JobFailed)
	}
}

func TestFailJob_SetsBackoff(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-backoff", Type: "x"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	before := time.Now().UTC()
	if err := s.FailJob("j-backoff", "retry"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	got, err := s.GetJob("j-backoff")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if !got.RunAfter.After(before) {
		t.Errorf("RunAfter %v should be after %v", got.RunAfter, before)
	}
}

func TestFailJob_NotFound(t *testing.T) {
	s := openTestStore(t)

	if err := s.FailJob("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailJob(missing) error = %v, want ErrNotFound", err)
	}
}
