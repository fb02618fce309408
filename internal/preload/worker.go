// Package preload runs queued playlist preload jobs in the background.
package preload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/kashi/internal/pipeline"
	"github.com/kalambet/kashi/internal/songs"
	"github.com/kalambet/kashi/internal/storage"
)

// JobType is the queue type of preload jobs.
const JobType = "preload"

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id, resultJSON string) error
	FailJob(id string, errMsg string) error
}

// Runner preloads a list of songs.
type Runner interface {
	Run(ctx context.Context, list []songs.Ref, progress func(pipeline.PreloadProgress)) pipeline.Summary
}

// Payload selects the songs of a preload job. An empty list means the
// whole playlist.
type Payload struct {
	Songs []string `json:"songs,omitempty"`
}

// Enqueue queues a preload job for the given query keys and returns its ID.
func Enqueue(store JobStore, keys []string) (string, error) {
	payload, err := json.Marshal(Payload{Songs: keys})
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	if err := store.EnqueueJob(storage.Job{ID: id, Type: JobType, PayloadJSON: string(payload)}); err != nil {
		return "", fmt.Errorf("enqueueing preload job: %w", err)
	}
	return id, nil
}

// Worker processes preload jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	runner   Runner
	playlist []songs.Ref
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker preloading songs from playlist.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, runner Runner, playlist []songs.Ref, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		runner:   runner,
		playlist: playlist,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("preload worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single preload job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	result, err := w.processJob(ctx, job)
	if err != nil {
		w.logger.Warn("preload job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID, result); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) (string, error) {
	var payload Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return "", fmt.Errorf("parsing payload: %w", err)
	}

	list, err := w.resolve(payload.Songs)
	if err != nil {
		return "", err
	}

	w.logger.Info("preload job started", "job_id", job.ID, "songs", len(list))
	sum := w.runner.Run(ctx, list, func(p pipeline.PreloadProgress) {
		w.logger.Debug("preload progress", "job_id", job.ID, "index", p.Index, "total", p.Total, "song", p.Song.QueryKey, "status", p.Status)
	})
	if sum.Aborted {
		return "", errors.New("preload aborted before finishing")
	}

	out, err := json.Marshal(sum)
	if err != nil {
		return "", fmt.Errorf("encoding summary: %w", err)
	}
	return string(out), nil
}

func (w *Worker) resolve(keys []string) ([]songs.Ref, error) {
	if len(keys) == 0 {
		return w.playlist, nil
	}
	list := make([]songs.Ref, 0, len(keys))
	for _, k := range keys {
		ref, ok := songs.Find(w.playlist, k)
		if !ok {
			w.logger.Warn("preload: song not in playlist, skipping", "song", k)
			continue
		}
		list = append(list, ref)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("none of %d requested songs are in the playlist", len(keys))
	}
	return list, nil
}
