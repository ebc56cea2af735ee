package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// NewRESTClient returns an HTTP client for the upstream REST endpoints.
func NewRESTClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConnsPerHost:   1,
			IdleConnTimeout:       30 * time.Second,
			ResponseHeaderTimeout: timeout,
			ForceAttemptHTTP2:     true,
		},
	}
}

// Preflight checks that apiKey is accepted and model is visible to it, using
// the REST models endpoint. baseURL may be empty for the public API.
func Preflight(ctx context.Context, apiKey, baseURL, model string, httpClient *http.Client) error {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := openai.NewClient(opts...)

	m, err := client.Models.Get(ctx, model)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return &Error{
				Type:       "preflight_failed",
				Code:       apiErr.Code,
				Message:    fmt.Sprintf("model %q: %s", model, apiErr.Message),
				HTTPStatus: apiErr.StatusCode,
			}
		}
		return fmt.Errorf("upstream: preflight: %w", err)
	}
	if m.ID != model {
		return fmt.Errorf("upstream: preflight: asked for model %q, got %q", model, m.ID)
	}
	return nil
}
