package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hubenschmidt/realtime-relay/internal/upstream"
)

// fakeUpstream scripts server events and records what the session sends.
type fakeUpstream struct {
	mu       sync.Mutex
	appended []string
	commits  int
	updates  []upstream.SessionConfig

	appendErr error

	events    chan *upstream.ServerEvent
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
	dead      atomic.Bool
}

func newFakeUpstream() *fakeUpstream {
	f := &fakeUpstream{
		events: make(chan *upstream.ServerEvent, 32),
		errs:   make(chan error, 4),
		closed: make(chan struct{}),
	}
	f.events <- &upstream.ServerEvent{
		Type:    upstream.EventTypeSessionCreated,
		Session: &upstream.SessionResource{ID: "sess_fake"},
	}
	return f
}

func (f *fakeUpstream) push(events ...*upstream.ServerEvent) {
	for _, ev := range events {
		f.events <- ev
	}
}

func (f *fakeUpstream) UpdateSession(_ context.Context, cfg upstream.SessionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, cfg)
	return nil
}

func (f *fakeUpstream) AppendAudio(_ context.Context, b64 string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, b64)
	return nil
}

func (f *fakeUpstream) CommitInput(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return nil
}

func (f *fakeUpstream) Recv(ctx context.Context) (*upstream.ServerEvent, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.closed:
		return nil, upstream.ErrClosed
	case err := <-f.errs:
		return nil, err
	case ev := <-f.events:
		return ev, nil
	}
}

func (f *fakeUpstream) Alive() bool {
	select {
	case <-f.closed:
		return false
	default:
		return !f.dead.Load()
	}
}

func (f *fakeUpstream) SessionID() string { return "sess_fake" }

func (f *fakeUpstream) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeUpstream) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeUpstream) snapshot() ([]string, int, []upstream.SessionConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.appended...), f.commits, append([]upstream.SessionConfig(nil), f.updates...)
}

func dialerFor(conn Upstream) Dialer {
	return DialerFunc(func(context.Context) (Upstream, error) { return conn, nil })
}

type emitted struct {
	event string
	data  any
}

// recordingEmitter captures downstream events.
type recordingEmitter struct {
	mu           sync.Mutex
	events       []emitted
	disconnected atomic.Bool
}

func (e *recordingEmitter) Emit(event string, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{event: event, data: data})
	return nil
}

func (e *recordingEmitter) Connected() bool {
	return !e.disconnected.Load()
}

func (e *recordingEmitter) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.event
	}
	return out
}

func (e *recordingEmitter) count(event string) int {
	n := 0
	for _, name := range e.names() {
		if name == event {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, sess *Session) {
	t.Helper()
	select {
	case <-sess.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("session %s did not close (state %s)", sess.ID, sess.State())
	}
}

func testConfig() Config {
	return Config{
		ConnectTimeout:   time.Second,
		ConfigureTimeout: time.Second,
		SendTimeout:      time.Second,
		QueueWait:        50 * time.Millisecond,
		RecvTimeout:      time.Second,
	}
}

func intPtr(n int) *int { return &n }
