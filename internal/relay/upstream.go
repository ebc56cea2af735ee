package relay

import (
	"context"

	"github.com/hubenschmidt/realtime-relay/internal/upstream"
)

// Upstream is the part of an upstream.Conn a session drives.
type Upstream interface {
	UpdateSession(ctx context.Context, cfg upstream.SessionConfig) error
	AppendAudio(ctx context.Context, audioBase64 string) error
	CommitInput(ctx context.Context) error
	Recv(ctx context.Context) (*upstream.ServerEvent, error)
	Alive() bool
	SessionID() string
	Close() error
}

// Dialer opens one upstream connection per session.
type Dialer interface {
	Dial(ctx context.Context) (Upstream, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Upstream, error)

func (f DialerFunc) Dial(ctx context.Context) (Upstream, error) {
	return f(ctx)
}

// ClientDialer dials through a Realtime API client.
func ClientDialer(c *upstream.Client) Dialer {
	return DialerFunc(func(ctx context.Context) (Upstream, error) {
		conn, err := c.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}
