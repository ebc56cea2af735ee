package relay

// Downstream event names sent to the browser client.
const (
	EventAudioChunk                 = "audio_chunk"
	EventTextChunk                  = "text_chunk"
	EventSpeechStarted              = "speech_started"
	EventSpeechStopped              = "speech_stopped"
	EventProcessingStarted          = "processing_started"
	EventResponseStarting           = "response_starting"
	EventAudioStreamEnd             = "audio_stream_end"
	EventResponseCanceled           = "response_canceled"
	EventResponseInterruptRequested = "response_interrupt_requested"
	EventProcessingError            = "processing_error"
	EventVADConfigUpdated           = "vad_config_updated"
	EventVADConfigUpdateError       = "vad_config_update_error"
)

// Emitter delivers named events to one downstream client.
// Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(event string, data any) error
	Connected() bool
}

type audioPayload struct {
	Audio string `json:"audio"`
}

type textPayload struct {
	Text string `json:"text"`
}

type errorPayload struct {
	Error string `json:"error"`
}

type empty struct{}
