package trace

import "time"

// Session is one relay session, from start_recording to cleanup.
type Session struct {
	ID        string     `json:"id"`
	ClientID  string     `json:"client_id"`
	Metadata  string     `json:"metadata"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
	RunCount  int        `json:"run_count,omitempty"`
}

// Run is one upstream response turn (response.created to response.done).
type Run struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	ResponseID string    `json:"response_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms,omitempty"`
	Text       string    `json:"text,omitempty"`
	AudioBytes int64     `json:"audio_bytes,omitempty"`
	Status     string    `json:"status"`
}

// Span is a timed lifecycle phase (connect, configure, sender, receiver).
// RunID is empty for session-level phases.
type Span struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	RunID      string    `json:"run_id,omitempty"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}
