package trace

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxTextLen   = 2000
	writeTimeout = 5 * time.Second
)

type writer interface {
	CreateSession(ctx context.Context, sess Session) error
	EndSession(ctx context.Context, id, reason string) error
	CreateRun(ctx context.Context, r Run) error
	UpdateRun(ctx context.Context, r Run) error
	CreateSpan(ctx context.Context, sp Span) error
}

type traceMsg struct {
	kind   string // "session_end", "run_create", "run_update", "span"
	run    Run
	span   Span
	reason string
}

// Tracer writes one session's trace asynchronously via a buffered channel.
// Writes are dropped rather than blocking the relay when the buffer is full.
// All methods are nil-safe (no-op on nil receiver).
type Tracer struct {
	w         writer
	sessionID string
	ch        chan traceMsg
	done      chan struct{}
}

// NewTracer records the session start and returns its tracer. A nil store
// yields a nil Tracer. Must call Close when done.
func NewTracer(store *Store, sessionID, clientID, metadata string) *Tracer {
	if store == nil {
		return nil
	}
	return newTracer(store, sessionID, clientID, metadata)
}

func newTracer(w writer, sessionID, clientID, metadata string) *Tracer {
	t := &Tracer{
		w:         w,
		sessionID: sessionID,
		ch:        make(chan traceMsg, 64),
		done:      make(chan struct{}),
	}
	sess := Session{ID: sessionID, ClientID: clientID, Metadata: metadata, StartedAt: time.Now()}
	go t.drain(sess)
	return t
}

func (t *Tracer) drain(sess Session) {
	defer close(t.done)
	// runs and spans reference the session row
	t.write("session_create", func(ctx context.Context) error { return t.w.CreateSession(ctx, sess) })
	for msg := range t.ch {
		t.handle(msg)
	}
}

func (t *Tracer) handle(m traceMsg) {
	handlers := map[string]func(context.Context) error{
		"session_end": func(ctx context.Context) error { return t.w.EndSession(ctx, t.sessionID, m.reason) },
		"run_create":  func(ctx context.Context) error { return t.w.CreateRun(ctx, m.run) },
		"run_update":  func(ctx context.Context) error { return t.w.UpdateRun(ctx, m.run) },
		"span":        func(ctx context.Context) error { return t.w.CreateSpan(ctx, m.span) },
	}
	fn, ok := handlers[m.kind]
	if !ok {
		return
	}
	t.write(m.kind, fn)
}

func (t *Tracer) write(kind string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		slog.Warn("trace write failed", "kind", kind, "session_id", t.sessionID, "error", err)
	}
}

func (t *Tracer) enqueue(m traceMsg) {
	select {
	case t.ch <- m:
	default:
		slog.Warn("trace buffer full, dropping", "kind", m.kind, "session_id", t.sessionID)
	}
}

// StartRun begins a response turn and returns its ID.
func (t *Tracer) StartRun(responseID string) string {
	if t == nil {
		return ""
	}
	id := uuid.NewString()
	t.enqueue(traceMsg{kind: "run_create", run: Run{
		ID:         id,
		SessionID:  t.sessionID,
		ResponseID: responseID,
		StartedAt:  time.Now(),
	}})
	return id
}

// EndRun finalizes a response turn.
func (t *Tracer) EndRun(runID string, durationMs float64, text string, audioBytes int64, status string) {
	if t == nil || runID == "" {
		return
	}
	t.enqueue(traceMsg{kind: "run_update", run: Run{
		ID:         runID,
		DurationMs: durationMs,
		Text:       truncate(text, maxTextLen),
		AudioBytes: audioBytes,
		Status:     status,
	}})
}

// RecordSpan records a completed phase. runID may be empty.
func (t *Tracer) RecordSpan(runID, name string, startedAt time.Time, status, errMsg string) {
	if t == nil {
		return
	}
	t.enqueue(traceMsg{kind: "span", span: Span{
		ID:         uuid.NewString(),
		SessionID:  t.sessionID,
		RunID:      runID,
		Name:       name,
		StartedAt:  startedAt,
		DurationMs: float64(time.Since(startedAt).Microseconds()) / 1000,
		Status:     status,
		Error:      errMsg,
	}})
}

// Close records the end reason, drains pending writes and stops the writer goroutine.
func (t *Tracer) Close(reason string) {
	if t == nil {
		return
	}
	t.enqueue(traceMsg{kind: "session_end", reason: reason})
	close(t.ch)
	<-t.done
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
