package trace

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

type recordingWriter struct {
	mu    sync.Mutex
	calls []string
	runs  []Run
	spans []Span
	ended string
}

func (w *recordingWriter) add(kind string) {
	w.calls = append(w.calls, kind)
}

func (w *recordingWriter) CreateSession(_ context.Context, sess Session) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.add("session_create:" + sess.ClientID)
	return nil
}

func (w *recordingWriter) EndSession(_ context.Context, id, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.add("session_end")
	w.ended = reason
	return nil
}

func (w *recordingWriter) CreateRun(_ context.Context, r Run) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.add("run_create")
	w.runs = append(w.runs, r)
	return nil
}

func (w *recordingWriter) UpdateRun(_ context.Context, r Run) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.add("run_update")
	w.runs = append(w.runs, r)
	return nil
}

func (w *recordingWriter) CreateSpan(_ context.Context, sp Span) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.add("span")
	w.spans = append(w.spans, sp)
	return nil
}

func TestTracerWritesInOrder(t *testing.T) {
	w := &recordingWriter{}
	tr := newTracer(w, "sess-1", "client-1", `{"codec":"pcm"}`)

	tr.RecordSpan("", "connect", time.Now().Add(-10*time.Millisecond), "ok", "")
	runID := tr.StartRun("resp_1")
	tr.EndRun(runID, 120, strings.Repeat("a", maxTextLen+10), 4096, "completed")
	tr.Close("end_of_input")

	want := []string{"session_create:client-1", "span", "run_create", "run_update", "session_end"}
	if strings.Join(w.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", w.calls, want)
	}
	if w.ended != "end_of_input" {
		t.Fatalf("end reason = %q", w.ended)
	}
	if w.runs[0].ResponseID != "resp_1" || w.runs[0].SessionID != "sess-1" {
		t.Fatalf("run create = %+v", w.runs[0])
	}
	if len(w.runs[1].Text) != maxTextLen {
		t.Fatalf("text not truncated: %d", len(w.runs[1].Text))
	}
	if w.spans[0].DurationMs < 10 {
		t.Fatalf("span duration = %v", w.spans[0].DurationMs)
	}
}

func TestNilTracerIsNoop(t *testing.T) {
	tr := NewTracer(nil, "sess", "client", "{}")
	if tr != nil {
		t.Fatalf("expected nil tracer for nil store")
	}
	if id := tr.StartRun("resp"); id != "" {
		t.Fatalf("nil StartRun returned %q", id)
	}
	tr.EndRun("x", 1, "", 0, "completed")
	tr.RecordSpan("", "connect", time.Now(), "ok", "")
	tr.Close("done")
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 3); got != "hel" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("hi", 3); got != "hi" {
		t.Fatalf("got %q", got)
	}
	// "é" is two bytes; a cut at byte 2 must back off to the rune boundary.
	if got := truncate("aé", 2); got != "a" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("日本語", 7); got != "日本" || !utf8.ValidString(got) {
		t.Fatalf("got %q", got)
	}
}
