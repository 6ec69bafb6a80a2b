package viva

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the interview backend base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger for the client.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithTracer sets the OpenTelemetry tracer for the client. When set, upload
// and answer round-trips are wrapped in spans.
func WithTracer(t trace.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithProviderKey sets a default API key for an upstream provider (for
// example "gemini" or "elevenlabs"). Per-call Settings take precedence.
func WithProviderKey(provider, key string) ClientOption {
	return func(c *Client) {
		c.providerKeys[provider] = key
	}
}
