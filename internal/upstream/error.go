package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned once the connection has been closed locally or by the peer.
	ErrClosed = errors.New("upstream connection closed")

	// ErrMalformedEvent wraps a server message that could not be decoded. It is not fatal.
	ErrMalformedEvent = errors.New("malformed upstream event")
)

// Error is an API error from the Realtime endpoint.
type Error struct {
	Type       string `json:"type,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Param      string `json:"param,omitempty"`
	EventID    string `json:"event_id,omitempty"`
	HTTPStatus int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream: %s: %s", e.Code, e.Message)
	}
	if e.Type != "" {
		return fmt.Sprintf("upstream: %s: %s", e.Type, e.Message)
	}
	return "upstream: " + e.Message
}

// EventError is the error object carried by an "error" server event.
type EventError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

// ToError converts EventError to Error.
func (e *EventError) ToError() *Error {
	return &Error{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Param:   e.Param,
		EventID: e.EventID,
	}
}
