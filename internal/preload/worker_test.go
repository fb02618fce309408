package preload

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/kashi/internal/pipeline"
	"github.com/kalambet/kashi/internal/songs"
	"github.com/kalambet/kashi/internal/storage"
)

type mockRunner struct {
	mu    sync.Mutex
	lists [][]songs.Ref
	runFn func(list []songs.Ref) pipeline.Summary
}

func (m *mockRunner) Run(ctx context.Context, list []songs.Ref, progress func(pipeline.PreloadProgress)) pipeline.Summary {
	m.mu.Lock()
	m.lists = append(m.lists, list)
	m.mu.Unlock()
	for i, r := range list {
		progress(pipeline.PreloadProgress{Index: i + 1, Total: len(list), Song: r, Status: pipeline.PreloadFetched})
	}
	if m.runFn != nil {
		return m.runFn(list)
	}
	return pipeline.Summary{Total: len(list), Succeeded: len(list)}
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPlaylist() []songs.Ref {
	var list []songs.Ref
	for _, l := range []string{"Lemon - 米津玄師", "Jupiter - 平原綾香", "REASON - ゆず"} {
		r, _ := songs.Parse(l)
		list = append(list, r)
	}
	return list
}

func TestRunOnce_WholePlaylist(t *testing.T) {
	store := openTestStore(t)
	runner := &mockRunner{}
	w := NewWorker(store, runner, testPlaylist(), 0)

	id, err := Enqueue(store, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	processed, err := w.RunOnce(context.Background())
	if err != nil || !processed {
		t.Fatalf("RunOnce = %v, %v", processed, err)
	}

	if len(runner.lists) != 1 || len(runner.lists[0]) != 3 {
		t.Fatalf("runner lists = %v, want one run over 3 songs", runner.lists)
	}

	job, err := store.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != storage.JobCompleted {
		t.Errorf("status = %q, want completed", job.Status)
	}
	var sum pipeline.Summary
	if err := json.Unmarshal([]byte(job.ResultJSON), &sum); err != nil {
		t.Fatalf("result not a summary: %v", err)
	}
	if sum.Total != 3 || sum.Succeeded != 3 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunOnce_SelectedSongs(t *testing.T) {
	store := openTestStore(t)
	runner := &mockRunner{}
	w := NewWorker(store, runner, testPlaylist(), 0)

	if _, err := Enqueue(store, []string{"REASON - ゆず", "Not - Listed"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(runner.lists) != 1 || len(runner.lists[0]) != 1 || runner.lists[0][0].Title != "REASON" {
		t.Errorf("runner lists = %v, want only REASON", runner.lists)
	}
}

func TestRunOnce_UnknownSongsFail(t *testing.T) {
	store := openTestStore(t)
	runner := &mockRunner{}
	w := NewWorker(store, runner, testPlaylist(), 0)

	id, _ := Enqueue(store, []string{"Not - Listed"})
	processed, err := w.RunOnce(context.Background())
	if err != nil || !processed {
		t.Fatalf("RunOnce = %v, %v", processed, err)
	}
	if len(runner.lists) != 0 {
		t.Error("runner must not run")
	}

	job, _ := store.GetJob(id)
	if job.Attempts != 1 || job.LastError == "" {
		t.Errorf("job = %+v, want one failed attempt", job)
	}
}

func TestRunOnce_AbortedRunFails(t *testing.T) {
	store := openTestStore(t)
	runner := &mockRunner{runFn: func(list []songs.Ref) pipeline.Summary {
		return pipeline.Summary{Total: len(list), Succeeded: 1, Aborted: true}
	}}
	w := NewWorker(store, runner, testPlaylist(), 0)

	id, _ := Enqueue(store, nil)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	job, _ := store.GetJob(id)
	if job.Status != storage.JobPending || job.Attempts != 1 {
		t.Errorf("job = %+v, want pending retry", job)
	}
}

func TestRunOnce_NoJobs(t *testing.T) {
	w := NewWorker(openTestStore(t), &mockRunner{}, testPlaylist(), 0)
	processed, err := w.RunOnce(context.Background())
	if err != nil || processed {
		t.Errorf("RunOnce = %v, %v, want false, nil", processed, err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	runner := &mockRunner{}
	w := NewWorker(store, runner, testPlaylist(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	id, _ := Enqueue(store, nil)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if job, err := store.GetJob(id); err == nil && job.Status == storage.JobCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	job, _ := store.GetJob(id)
	if job.Status != storage.JobCompleted {
		t.Errorf("status = %q, want completed", job.Status)
	}
}
