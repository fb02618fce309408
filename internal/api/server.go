// Package api exposes the playlist and the lyrics pipeline over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/kashi/internal/lyrics"
	"github.com/kalambet/kashi/internal/observe"
	"github.com/kalambet/kashi/internal/pipeline"
	"github.com/kalambet/kashi/internal/songs"
	"github.com/kalambet/kashi/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// SessionHeader identifies a viewer whose newer requests supersede older ones.
const SessionHeader = "X-Kashi-Session"

// Deps holds dependencies for the HTTP handler.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Store    *storage.Store
	Playlist []songs.Ref
	// Token guards mutating routes. Empty disables auth.
	Token   string
	Metrics *observe.Metrics
	// MetricsHandler serves /metrics when non-nil.
	MetricsHandler http.Handler
}

// NewHandler returns the kashi HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	if deps.Metrics != nil {
		r.Use(observe.Middleware(deps.Metrics))
	}

	sessions := newSessions(deps.Pipeline)

	r.Get("/health", handleHealth)
	r.Get("/songs", handleSongs(deps))
	r.Get("/lyrics", handleGetLyrics(deps, sessions))
	r.Get("/preload/{id}", handleGetPreload(deps))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Delete("/lyrics", handleRegenerate(deps))
		r.Post("/preload", handlePostPreload(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

// pipelineError maps a pipeline failure to a status code and error type.
func pipelineError(err error) (int, string) {
	switch {
	case lyrics.IsKind(err, lyrics.KindLyricsNotFound):
		return http.StatusNotFound, "lyrics_not_found"
	case lyrics.IsKind(err, lyrics.KindCredentialsMissing):
		return http.StatusServiceUnavailable, "credentials_missing"
	case errors.Is(err, pipeline.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "api_error"
}
