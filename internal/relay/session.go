package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hubenschmidt/realtime-relay/internal/audio"
	"github.com/hubenschmidt/realtime-relay/internal/trace"
)

// State is a session's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConfiguring
	StateActive
	StateDraining
	StateClosed
)

var stateNames = [...]string{"idle", "connecting", "configuring", "active", "draining", "closed"}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Session is one client's recording: its queue, resampler and upstream
// connection. It is fully built before it is registered.
type Session struct {
	ID        string
	ClientID  string
	Format    audio.Format
	VAD       VADConfig
	StartedAt time.Time

	queue     *Queue
	converter audio.Converter
	emitter   Emitter
	log       *slog.Logger
	tracer    *trace.Tracer

	state atomic.Int32

	emitMu    sync.Mutex
	lastEvent string
	errOnce   sync.Once
	endOnce   sync.Once

	connMu sync.Mutex
	conn   Upstream

	cleanupOnce sync.Once
	done        chan struct{}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.log.Debug("session state", "from", prev.String(), "to", st.String())
	}
}

// Done is closed once cleanup has finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Queue exposes the session's audio queue.
func (s *Session) Queue() *Queue {
	return s.queue
}

func (s *Session) setUpstream(conn Upstream) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conn = conn
}

func (s *Session) upstream() Upstream {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

// emit sends an event downstream if the client is still connected.
func (s *Session) emit(event string, data any) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.emitLocked(event, data)
}

func (s *Session) emitLocked(event string, data any) {
	if !s.emitter.Connected() {
		return
	}
	if err := s.emitter.Emit(event, data); err != nil {
		s.log.Warn("downstream emit failed", "event", event, "error", err)
		return
	}
	s.lastEvent = event
}

// fail reports a session-fatal error to the client. Only the first call emits.
func (s *Session) fail(msg string) {
	s.errOnce.Do(func() {
		s.log.Error("session failed", "error", msg)
		s.emit(EventProcessingError, errorPayload{Error: msg})
	})
}

// finish emits the terminal audio_stream_end once, unless the client just got one.
func (s *Session) finish() {
	s.endOnce.Do(func() {
		s.emitMu.Lock()
		defer s.emitMu.Unlock()
		if s.lastEvent == EventAudioStreamEnd {
			return
		}
		s.emitLocked(EventAudioStreamEnd, empty{})
	})
}
