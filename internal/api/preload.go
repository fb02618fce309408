package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/kashi/internal/preload"
	"github.com/kalambet/kashi/internal/storage"
)

type preloadJobResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	Summary   json.RawMessage `json:"summary,omitempty"`
}

func handlePostPreload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var payload preload.Payload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		id, err := preload.Enqueue(deps.Store, payload.Songs)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "queued"})
	}
}

func handleGetPreload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := deps.Store.GetJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "preload job %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		if job.Type != preload.JobType {
			httpError(w, http.StatusNotFound, "not_found_error", "preload job %s not found", id)
			return
		}

		resp := preloadJobResponse{
			ID:        job.ID,
			Status:    job.Status,
			Attempts:  job.Attempts,
			LastError: job.LastError,
		}
		if job.ResultJSON != "" {
			resp.Summary = json.RawMessage(job.ResultJSON)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
