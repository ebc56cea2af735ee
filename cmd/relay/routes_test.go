package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hubenschmidt/realtime-relay/internal/relay"
)

func newTestMux(t *testing.T, staticDir string) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		wsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		staticDir: staticDir,
		sessions:  relay.NewRegistry(),
	})
	return mux
}

func get(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(newTestMux(t, ""), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["status"] != "ok" || body["active_sessions"] != float64(0) {
		t.Fatalf("body = %v", body)
	}
}

func TestMetricsExposed(t *testing.T) {
	rec := get(newTestMux(t, ""), "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "relay_sessions_active") {
		t.Fatalf("metrics status=%d", rec.Code)
	}
}

func TestTraceRoutesDisabled(t *testing.T) {
	mux := newTestMux(t, "")
	for _, path := range []string{"/api/traces/sessions", "/api/traces/sessions/x", "/api/traces/sessions/x/runs/y"} {
		if rec := get(mux, path); rec.Code != http.StatusNotFound {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}
}

func TestWebSocketAndStaticRoutes(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>relay</html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	mux := newTestMux(t, dir)

	if rec := get(mux, "/ws"); rec.Code != http.StatusTeapot {
		t.Fatalf("/ws routed to %d", rec.Code)
	}
	rec := get(mux, "/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "relay") {
		t.Fatalf("static index status=%d body=%q", rec.Code, rec.Body.String())
	}
}
