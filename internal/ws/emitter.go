package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var errDisconnected = errors.New("client disconnected")

// emitter serializes named events onto one client connection.
type emitter struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
}

func newEmitter(conn *websocket.Conn) *emitter {
	e := &emitter{conn: conn}
	e.connected.Store(true)
	return e
}

func (e *emitter) Emit(event string, data any) error {
	if !e.connected.Load() {
		return errDisconnected
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b, err := json.Marshal(message{Event: event, Data: payload})
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err = e.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err = e.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		e.connected.Store(false)
		return err
	}
	return nil
}

func (e *emitter) Connected() bool {
	return e.connected.Load()
}

func (e *emitter) disconnect() {
	e.connected.Store(false)
}
