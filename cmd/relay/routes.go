package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/realtime-relay/internal/relay"
	"github.com/hubenschmidt/realtime-relay/internal/trace"
)

const (
	// defaultTraceSessionLimit is how many trace sessions are returned
	// when the caller omits the ?limit= query parameter.
	defaultTraceSessionLimit = 20

	maxTraceSessionLimit = 200
)

type deps struct {
	wsHandler  http.Handler
	traceStore *trace.Store
	staticDir  string
	sessions   *relay.Registry
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("GET /ws", d.wsHandler)
	mux.HandleFunc("GET /health", d.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	registerTraceRoutes(mux, d.traceStore)
	if d.staticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(d.staticDir)))
	}
}

func (d deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	active := 0
	if d.sessions != nil {
		active = d.sessions.Len()
	}
	writeJSON(w, map[string]any{"status": "ok", "active_sessions": active})
}

func registerTraceRoutes(mux *http.ServeMux, store *trace.Store) {
	mux.HandleFunc("GET /api/traces/sessions", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		limit := min(queryInt(r, "limit", defaultTraceSessionLimit), maxTraceSessionLimit)
		offset := queryInt(r, "offset", 0)
		sessions, total, err := store.ListSessions(r.Context(), limit, offset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"sessions": sessions, "total": total})
	})

	mux.HandleFunc("GET /api/traces/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		sess, runs, spans, err := store.GetSession(r.Context(), r.PathValue("id"))
		if err != nil {
			traceError(w, err)
			return
		}
		writeJSON(w, map[string]any{"session": sess, "runs": runs, "spans": spans})
	})

	mux.HandleFunc("GET /api/traces/sessions/{id}/runs/{runId}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		run, spans, err := store.GetRun(r.Context(), r.PathValue("id"), r.PathValue("runId"))
		if err != nil {
			traceError(w, err)
			return
		}
		writeJSON(w, map[string]any{"run": run, "spans": spans})
	})
}

func traceError(w http.ResponseWriter, err error) {
	if errors.Is(err, trace.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
