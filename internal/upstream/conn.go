package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// closeGrace bounds the close handshake on Close.
const closeGrace = time.Second

// Conn is one Realtime API connection. Writes are serialized internally;
// Recv must only be called from a single goroutine.
type Conn struct {
	ws        *websocket.Conn
	events    chan eventOrError
	closeCh   chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	dead      atomic.Bool

	mu        sync.Mutex
	sessionID string
}

type eventOrError struct {
	event *ServerEvent
	err   error
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:      ws,
		events:  make(chan eventOrError, 100),
		closeCh: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func generateEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

// UpdateSession sends session.update.
func (c *Conn) UpdateSession(ctx context.Context, cfg SessionConfig) error {
	return c.send(ctx, map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeSessionUpdate,
		"session":  cfg,
	})
}

// AppendAudio sends input_audio_buffer.append with already base64-encoded PCM.
func (c *Conn) AppendAudio(ctx context.Context, audioBase64 string) error {
	return c.send(ctx, map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeInputAudioBufferAppend,
		"audio":    audioBase64,
	})
}

// CommitInput sends input_audio_buffer.commit, marking the end of user input.
func (c *Conn) CommitInput(ctx context.Context) error {
	return c.send(ctx, map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeInputAudioBufferCommit,
	})
}

// Recv returns the next server event. Errors wrapping ErrMalformedEvent are
// per-message; ErrClosed and read errors are terminal.
func (c *Conn) Recv(ctx context.Context) (*ServerEvent, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, ErrClosed
	case item, ok := <-c.events:
		if !ok {
			return nil, ErrClosed
		}
		return item.event, item.err
	}
}

// Alive reports whether the connection can still carry traffic.
func (c *Conn) Alive() bool {
	if c.dead.Load() {
		return false
	}
	select {
	case <-c.closeCh:
		return false
	default:
		return true
	}
}

// SessionID returns the id from session.created, or "" before it arrives.
func (c *Conn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Close sends a normal close frame and releases the socket. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		if !c.dead.Load() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		}
		c.dead.Store(true)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) send(ctx context.Context, event map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.Alive() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("upstream: set write deadline: %w", err)
	}
	if err := c.ws.WriteJSON(event); err != nil {
		// gorilla connections are unusable after a failed write
		c.dead.Store(true)
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrClosed
		}
		return fmt.Errorf("upstream: write %s: %w", event["type"], err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.events)

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.dead.Store(true)
			c.deliver(eventOrError{err: classifyReadError(err)})
			return
		}

		event, err := parseEvent(message)
		if err != nil {
			if !c.deliver(eventOrError{err: err}) {
				return
			}
			continue
		}

		if event.Type == EventTypeSessionCreated && event.Session != nil {
			c.mu.Lock()
			c.sessionID = event.Session.ID
			c.mu.Unlock()
		}

		if !c.deliver(eventOrError{event: event}) {
			return
		}
	}
}

func (c *Conn) deliver(item eventOrError) bool {
	select {
	case <-c.closeCh:
		return false
	case c.events <- item:
		return true
	}
}

func classifyReadError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return fmt.Errorf("upstream: read: %w", err)
}

func parseEvent(message []byte) (*ServerEvent, error) {
	var event ServerEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	event.Raw = message
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) && event.Type != EventTypeResponseAudioDelta {
		slog.Debug("upstream event", "type", event.Type, "len", len(message))
	}
	return &event, nil
}
