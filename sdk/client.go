// Package viva implements the voice turn-taking and score-extraction engine
// for automated spoken authorship interviews: streaming microphone capture to
// a transcription channel, synthesized-speech playback, a live conversational
// agent bridge, and the orchestrator that sequences question/answer turns.
package viva

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const defaultHTTPTimeout = 60 * time.Second

// Client is the entry point for talking to the interview backend.
type Client struct {
	Sessions *SessionsService

	baseURL      string
	httpClient   *http.Client
	logger       *slog.Logger
	tracer       trace.Tracer
	providerKeys map[string]string
}

// NewClient creates a new backend client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		logger:       slog.Default(),
		providerKeys: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Sessions = &SessionsService{client: c}
	return c
}

// providerKey returns the configured key for a provider, or "".
func (c *Client) providerKey(provider string) string {
	return c.providerKeys[provider]
}
