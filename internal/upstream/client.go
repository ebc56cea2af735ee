package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultWebSocketURL is the Realtime API WebSocket endpoint.
	DefaultWebSocketURL = "wss://api.openai.com/v1/realtime"

	// DefaultModel is the speech-to-speech model used when none is configured.
	DefaultModel = "gpt-4o-mini-realtime-preview"
)

// Client dials Realtime API connections. It is safe for concurrent use.
type Client struct {
	config clientConfig
}

type clientConfig struct {
	apiKey           string
	wsURL            string
	model            string
	organization     string
	handshakeTimeout time.Duration
}

// Option configures the Client.
type Option func(*clientConfig)

// NewClient creates a Realtime client. apiKey must be non-empty.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("upstream: API key is required")
	}
	cfg := clientConfig{
		apiKey:           apiKey,
		wsURL:            DefaultWebSocketURL,
		model:            DefaultModel,
		handshakeTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{config: cfg}, nil
}

// WithWebSocketURL overrides the endpoint (tests, proxies, Azure deployments).
func WithWebSocketURL(u string) Option {
	return func(c *clientConfig) {
		if u != "" {
			c.wsURL = u
		}
	}
}

// WithModel sets the model query parameter.
func WithModel(model string) Option {
	return func(c *clientConfig) {
		if model != "" {
			c.model = model
		}
	}
}

// WithOrganization sets the OpenAI-Organization header.
func WithOrganization(orgID string) Option {
	return func(c *clientConfig) {
		c.organization = orgID
	}
}

// WithHandshakeTimeout bounds the WebSocket upgrade. The dial context still applies.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.handshakeTimeout = d
	}
}

// Model returns the configured model id.
func (c *Client) Model() string {
	return c.config.model
}

// Dial opens a new Realtime connection. The context bounds the handshake only.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	u, err := url.Parse(c.config.wsURL)
	if err != nil {
		return nil, fmt.Errorf("upstream: invalid endpoint %q: %w", c.config.wsURL, err)
	}
	q := u.Query()
	q.Set("model", c.config.model)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.config.apiKey)
	headers.Set("OpenAI-Beta", "realtime=v1")
	if c.config.organization != "" {
		headers.Set("OpenAI-Organization", c.config.organization)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.config.handshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, &Error{
				Code:       "connection_failed",
				Message:    fmt.Sprintf("failed to connect: %v", err),
				HTTPStatus: resp.StatusCode,
			}
		}
		return nil, fmt.Errorf("upstream: failed to connect: %w", err)
	}
	return newConn(ws), nil
}
