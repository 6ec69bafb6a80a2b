package viva

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/probitylabs/viva/internal/metrics"
	"github.com/probitylabs/viva/pkg/core"
	"github.com/probitylabs/viva/pkg/protocol"
)

const captureHandshakeTimeout = 10 * time.Second

// MicSource produces microphone audio as float32 sample frames. Hardware
// implementations live in internal/hardware; tests use fakes.
type MicSource interface {
	// Start acquires the device and returns a frame channel. The channel is
	// closed when the source stops. A denied device permission must surface
	// as a core permission error.
	Start(ctx context.Context) (<-chan []float32, error)

	// Stop releases the device. Safe to call when not started.
	Stop() error
}

// CaptureConfig configures a CaptureStream.
type CaptureConfig struct {
	// URL is the websocket transcription endpoint.
	URL string

	// SampleRate of the forwarded PCM frames.
	SampleRate int

	Source  MicSource
	Dialer  *websocket.Dialer
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// CaptureStream streams microphone audio to the transcription channel and
// exposes the cumulative live transcript. One capture attempt at a time;
// Start/Stop cycles are supported across question turns.
type CaptureStream struct {
	cfg CaptureConfig

	mu         sync.Mutex
	transcript string
	listening  bool
	conn       *websocket.Conn
	cancel     context.CancelFunc
	done       chan struct{}

	writeMu sync.Mutex

	errMu sync.Mutex
	err   error
}

// NewCaptureStream creates a capture stream. Source and URL are required.
func NewCaptureStream(cfg CaptureConfig) *CaptureStream {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = protocol.CaptureSampleRateHz
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: captureHandshakeTimeout}
	}
	return &CaptureStream{cfg: cfg}
}

// Start acquires the microphone, opens the streaming channel, and begins
// forwarding PCM frames. A permission denial surfaces as a permission error;
// any other acquisition failure surfaces as a failed-to-start error with the
// underlying message. Channel errors after a successful start are terminal
// for this attempt and surface via Err; they are never retried automatically.
func (s *CaptureStream) Start(ctx context.Context) error {
	if s.cfg.Source == nil {
		return core.NewInvalidRequestError("capture source is not configured")
	}

	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return core.NewInvalidRequestError("capture is already active")
	}
	s.mu.Unlock()

	frames, err := s.cfg.Source.Start(ctx)
	if err != nil {
		if core.IsPermission(err) {
			s.cfg.Metrics.CaptureError("permission")
			return err
		}
		s.cfg.Metrics.CaptureError("start")
		return core.NewConnectivityError(fmt.Sprintf("failed to start capture: %v", err), err)
	}

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		_ = s.cfg.Source.Stop()
		s.cfg.Metrics.CaptureError("connect")
		if resp != nil {
			return core.NewConnectivityError(fmt.Sprintf("transcription channel connect failed (status %d)", resp.StatusCode), err)
		}
		return core.NewConnectivityError("transcription channel connect failed", err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.done = done
	s.listening = true
	s.transcript = ""
	s.mu.Unlock()
	s.setErr(nil)

	go s.forwardLoop(sessionCtx, conn, frames)
	go s.readLoop(sessionCtx, conn, done)

	s.cfg.Metrics.CaptureStarted()
	s.cfg.Logger.Debug("capture started", "url", s.cfg.URL, "sample_rate", s.cfg.SampleRate)
	return nil
}

// forwardLoop converts float32 frames to PCM16 and sends them as binary
// websocket messages until the source closes or a write fails.
func (s *CaptureStream) forwardLoop(ctx context.Context, conn *websocket.Conn, frames <-chan []float32) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if len(frame) == 0 {
				continue
			}
			pcm := pcm16FromFloat32(frame)
			s.writeMu.Lock()
			err := conn.WriteMessage(websocket.BinaryMessage, pcm)
			s.writeMu.Unlock()
			if err != nil {
				if ctx.Err() == nil {
					s.setErr(core.NewConnectivityError("transcription channel write failed", err))
					s.cfg.Metrics.CaptureError("write")
				}
				return
			}
			s.cfg.Metrics.FrameSent()
		}
	}
}

// readLoop consumes transcript messages. A non-empty full_transcript replaces
// the live transcript: the service returns the cumulative transcript each
// time, so last write wins.
func (s *CaptureStream) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.setErr(core.NewConnectivityError("transcription channel closed", err))
				s.cfg.Metrics.CaptureError("read")
			}
			s.mu.Lock()
			s.listening = false
			s.mu.Unlock()
			return
		}
		var msg protocol.TranscriptMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.cfg.Logger.Debug("dropping malformed transcript message", "error", err)
			continue
		}
		if msg.FullTranscript != "" {
			s.mu.Lock()
			s.transcript = msg.FullTranscript
			s.mu.Unlock()
		}
	}
}

// Stop tears the capture attempt down in strict order: close the channel,
// stop the forwarding goroutine, then release the source. Every step runs
// even when an earlier one fails; the first failure never leaks the
// resources after it. Safe to call repeatedly and when never started.
func (s *CaptureStream) Stop() error {
	s.mu.Lock()
	conn := s.conn
	cancel := s.cancel
	s.conn = nil
	s.cancel = nil
	s.done = nil
	s.listening = false
	s.mu.Unlock()

	var errs []error

	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if cancel != nil {
		cancel()
	}

	if s.cfg.Source != nil {
		if err := s.cfg.Source.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop source: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Reset clears only the transcript text, not the connection.
func (s *CaptureStream) Reset() {
	s.mu.Lock()
	s.transcript = ""
	s.mu.Unlock()
}

// Transcript returns the current live transcript.
func (s *CaptureStream) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// Listening reports whether a capture attempt is active.
func (s *CaptureStream) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Done returns a channel closed when the current attempt's read loop exits,
// or nil when no attempt is active.
func (s *CaptureStream) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the terminal error of the current or last capture attempt.
func (s *CaptureStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *CaptureStream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if err == nil {
		s.err = nil
		return
	}
	if s.err == nil {
		s.err = err
	}
}
