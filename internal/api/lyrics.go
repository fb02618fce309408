package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/kalambet/kashi/internal/pipeline"
	"github.com/kalambet/kashi/internal/songs"
)

// maxSessions bounds the selector table. When it is full the table is reset;
// an evicted session only loses supersession tracking.
const maxSessions = 1024

type songResponse struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	QueryKey string `json:"query_key"`
	Cached   bool   `json:"cached"`
}

type lyricsResponse struct {
	QueryKey   string   `json:"query_key"`
	Markup     string   `json:"markup"`
	Tier       string   `json:"tier"`
	Sources    []string `json:"sources"`
	Strategy   string   `json:"strategy,omitempty"`
	Annotation string   `json:"annotation,omitempty"`
}

func toLyricsResponse(res pipeline.Result) lyricsResponse {
	sources := res.Sources
	if sources == nil {
		sources = []string{}
	}
	return lyricsResponse{
		QueryKey:   res.QueryKey,
		Markup:     res.Markup,
		Tier:       string(res.Tier),
		Sources:    sources,
		Strategy:   res.Strategy,
		Annotation: string(res.Annotation),
	}
}

type sessions struct {
	mu sync.Mutex
	p  *pipeline.Pipeline
	m  map[string]*pipeline.Selector
}

func newSessions(p *pipeline.Pipeline) *sessions {
	return &sessions{p: p, m: make(map[string]*pipeline.Selector)}
}

func (s *sessions) selector(id string) *pipeline.Selector {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := s.m[id]
	if !ok {
		if len(s.m) >= maxSessions {
			s.m = make(map[string]*pipeline.Selector)
		}
		sel = pipeline.NewSelector(s.p)
		s.m[id] = sel
	}
	return sel
}

// resolveRef reads the song from ?q=<query key> or ?title=&artist=.
func resolveRef(r *http.Request, playlist []songs.Ref) (songs.Ref, error) {
	q := r.URL.Query()
	if key := q.Get("q"); key != "" {
		ref, ok := songs.FromQuery(playlist, key)
		if !ok {
			return songs.Ref{}, fmt.Errorf("invalid song query %q", key)
		}
		return ref, nil
	}
	if q.Get("title") == "" {
		return songs.Ref{}, errors.New("q or title is required")
	}
	return songs.NewRef(q.Get("title"), q.Get("artist"))
}

func handleSongs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resolver := deps.Pipeline.Resolver()
		out := make([]songResponse, len(deps.Playlist))
		for i, ref := range deps.Playlist {
			out[i] = songResponse{
				Title:    ref.Title,
				Artist:   ref.Artist,
				QueryKey: ref.QueryKey,
				Cached:   resolver.Contains(r.Context(), ref),
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type fetchFunc func(ctx context.Context, sink pipeline.StatusSink) (pipeline.Result, error)

func handleGetLyrics(deps Deps, sess *sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := resolveRef(r, deps.Playlist)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		fetch := func(ctx context.Context, sink pipeline.StatusSink) (pipeline.Result, error) {
			if id := r.Header.Get(SessionHeader); id != "" {
				return sess.selector(id).Select(ctx, ref, sink)
			}
			return deps.Pipeline.Fetch(ctx, ref, sink)
		}

		if wantsStream(r) {
			streamLyrics(w, r, fetch)
			return
		}

		res, err := fetch(r.Context(), nil)
		if err != nil {
			code, typ := pipelineError(err)
			httpError(w, code, typ, "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, toLyricsResponse(res))
	}
}

func handleRegenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := resolveRef(r, deps.Playlist)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		res, err := deps.Pipeline.Regenerate(r.Context(), ref, nil)
		if err != nil {
			code, typ := pipelineError(err)
			httpError(w, code, typ, "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, toLyricsResponse(res))
	}
}

func wantsStream(r *http.Request) bool {
	return r.URL.Query().Get("stream") == "1" ||
		strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// streamLyrics sends status lines as server-sent events followed by a
// result or error event.
func streamLyrics(w http.ResponseWriter, r *http.Request, fetch fetchFunc) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var mu sync.Mutex
	send := func(event string, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	res, err := fetch(r.Context(), func(status string) {
		send("status", []byte(status))
	})
	if err != nil {
		_, typ := pipelineError(err)
		payload, _ := json.Marshal(map[string]any{
			"error": map[string]any{"message": err.Error(), "type": typ},
		})
		send("error", payload)
		return
	}

	payload, err := json.Marshal(toLyricsResponse(res))
	if err != nil {
		send("error", []byte(`{"error":{"message":"encoding result failed","type":"api_error"}}`))
		return
	}
	send("result", payload)
}
