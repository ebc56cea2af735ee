package upstream

import "encoding/json"

// Client event types (sent from relay to server).
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeInputAudioBufferAppend = "input_audio_buffer.append"
	EventTypeInputAudioBufferCommit = "input_audio_buffer.commit"
)

// Server event types (sent from server to relay).
const (
	EventTypeError          = "error"
	EventTypeSessionCreated = "session.created"
	EventTypeSessionUpdated = "session.updated"

	EventTypeSpeechStarted = "input_audio_buffer.speech_started"
	EventTypeSpeechStopped = "input_audio_buffer.speech_stopped"

	EventTypeResponseCreated = "response.created"
	EventTypeResponseDone    = "response.done"

	EventTypeResponseAudioDelta       = "response.audio.delta"
	EventTypeResponseOutputAudioDelta = "response.output_audio.delta"
	EventTypeResponseTextDelta        = "response.text.delta"
	EventTypeResponseOutputTextDelta  = "response.output_text.delta"
)

// Response statuses reported in response.done.
const (
	ResponseStatusCompleted  = "completed"
	ResponseStatusCancelled  = "cancelled"
	ResponseStatusIncomplete = "incomplete"
	ResponseStatusFailed     = "failed"
)

// ServerEvent is one tagged message received from the Realtime API.
// Only the fields the relay reads are decoded; Raw keeps the full body.
type ServerEvent struct {
	Type     string            `json:"type"`
	EventID  string            `json:"event_id,omitempty"`
	Session  *SessionResource  `json:"session,omitempty"`
	Response *ResponseResource `json:"response,omitempty"`
	Delta    string            `json:"delta,omitempty"`
	Error    *EventError       `json:"error,omitempty"`
	Message  string            `json:"message,omitempty"`

	Raw []byte `json:"-"`
}

// SessionResource is the session object in session.created / session.updated.
type SessionResource struct {
	ID    string `json:"id"`
	Model string `json:"model,omitempty"`
}

// ResponseResource is the response object in response.created / response.done.
type ResponseResource struct {
	ID            string          `json:"id"`
	Status        string          `json:"status,omitempty"`
	StatusDetails json.RawMessage `json:"status_details,omitempty"`
}

// ErrorMessage returns the human readable message carried by an error event.
func (e *ServerEvent) ErrorMessage() string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Raw)
}

// AudioFormat declares the PCM layout of appended input audio.
type AudioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// TurnDetection configures upstream voice activity detection.
type TurnDetection struct {
	// Type is "server_vad" or "semantic_vad".
	Type string `json:"type"`

	// Eagerness applies to semantic_vad: low, medium, high or auto.
	Eagerness string `json:"eagerness,omitempty"`

	// Threshold, PrefixPaddingMs and SilenceDurationMs apply to server_vad.
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`

	CreateResponse    *bool `json:"create_response,omitempty"`
	InterruptResponse *bool `json:"interrupt_response,omitempty"`
}

// SessionConfig is the body of a session.update event.
type SessionConfig struct {
	Modalities        []string     `json:"modalities,omitempty"`
	Instructions      string       `json:"instructions,omitempty"`
	Voice             string       `json:"voice,omitempty"`
	InputAudioFormat  *AudioFormat `json:"input_audio_format,omitempty"`
	OutputAudioFormat string       `json:"output_audio_format,omitempty"`

	// TurnDetection nil with TurnDetectionDisabled false leaves the server default.
	TurnDetection *TurnDetection `json:"-"`

	// TurnDetectionDisabled sends "turn_detection": null (manual commit mode).
	TurnDetectionDisabled bool `json:"-"`
}

// MarshalJSON emits turn_detection as an object, an explicit null, or not at all.
func (s SessionConfig) MarshalJSON() ([]byte, error) {
	type alias SessionConfig
	if s.TurnDetectionDisabled {
		return json.Marshal(struct {
			alias
			TurnDetection *TurnDetection `json:"turn_detection"`
		}{alias: alias(s)})
	}
	return json.Marshal(struct {
		alias
		TurnDetection *TurnDetection `json:"turn_detection,omitempty"`
	}{alias: alias(s), TurnDetection: s.TurnDetection})
}
