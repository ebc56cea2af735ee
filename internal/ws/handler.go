package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/realtime-relay/internal/metrics"
	"github.com/hubenschmidt/realtime-relay/internal/relay"
)

const maxMessageSize = 1 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler serves browser clients with admission control.
type Handler struct {
	svc *relay.Service
	sem chan struct{}
}

// NewHandler creates a WebSocket handler admitting at most maxConcurrent clients.
func NewHandler(svc *relay.Service, maxConcurrent int) *Handler {
	if maxConcurrent <= 0 {
		maxConcurrent = 100
	}
	return &Handler{
		svc: svc,
		sem: make(chan struct{}, maxConcurrent),
	}
}

// message is one downstream or upstream-bound text frame.
type message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type audioInput struct {
	Audio string `json:"audio"`
}

// ServeHTTP upgrades the connection and serves the client until it goes away.
// Returns 503 if at max concurrent client capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	metrics.ClientsConnected.Inc()
	defer metrics.ClientsConnected.Dec()

	clientID := uuid.NewString()
	em := newEmitter(conn)
	log := slog.With("client_id", clientID)
	log.Info("client connected", "remote", r.RemoteAddr)

	h.processMessages(conn, clientID, em, log)

	em.disconnect()
	h.svc.Disconnect(clientID)
	log.Info("client disconnected")
}

// processMessages dispatches inbound events until the socket closes.
func (h *Handler) processMessages(conn *websocket.Conn, clientID string, em *emitter, log *slog.Logger) {
	handlers := map[string]func(json.RawMessage) error{
		"start_recording": func(data json.RawMessage) error {
			var req relay.StartRequest
			if err := decode(data, &req); err != nil {
				return err
			}
			_, err := h.svc.StartRecording(clientID, req, em)
			return err
		},
		"audio_input_chunk": func(data json.RawMessage) error {
			var in audioInput
			if err := decode(data, &in); err != nil {
				return err
			}
			if in.Audio == "" {
				log.Warn("audio_input_chunk without audio")
				return nil
			}
			return h.svc.AudioChunk(clientID, in.Audio)
		},
		"stop_recording": func(json.RawMessage) error {
			h.svc.StopRecording(clientID)
			return nil
		},
		"interrupt_response": func(json.RawMessage) error {
			h.svc.InterruptResponse(clientID)
			return nil
		},
		"update_vad_config": func(data json.RawMessage) error {
			var cfg relay.VADConfig
			if err := decode(data, &cfg); err != nil {
				if emitErr := em.Emit(relay.EventVADConfigUpdateError, map[string]string{"error": err.Error()}); emitErr != nil {
					return emitErr
				}
				return err
			}
			return h.svc.UpdateVAD(clientID, cfg, em)
		},
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("connection closed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			log.Warn("ignoring non-text frame", "type", msgType)
			continue
		}

		var msg message
		if err = json.Unmarshal(data, &msg); err != nil {
			log.Warn("malformed client message", "error", err)
			continue
		}
		fn, ok := handlers[msg.Event]
		if !ok {
			log.Debug("unknown client event", "event", msg.Event)
			continue
		}
		if err = fn(msg.Data); err != nil {
			log.Debug("client event rejected", "event", msg.Event, "error", err)
		}
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}
