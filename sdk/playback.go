package viva

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/probitylabs/viva/internal/metrics"
	"github.com/probitylabs/viva/pkg/core"
)

// SpeakerSink renders PCM audio. Hardware implementations live in
// internal/hardware; tests use fakes.
type SpeakerSink interface {
	// Play renders a whole clip and returns when rendering completes or
	// fails. Implementations must return promptly after Flush is called.
	Play(pcm []byte) error

	// Flush discards any queued audio, interrupting an in-flight Play.
	// Safe to call when nothing is playing.
	Flush() error
}

// Player plays synthesized-speech payloads to completion. Play settles
// exactly once per call: on end of stream, on sink error, on context
// cancellation, or when pre-empted by Stop — a pre-empted caller is never
// left waiting forever.
type Player struct {
	sink    SpeakerSink
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	speaking bool
	stop     chan struct{}
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithPlayerLogger sets the player's logger.
func WithPlayerLogger(l *slog.Logger) PlayerOption {
	return func(p *Player) { p.logger = l }
}

// WithPlayerMetrics sets the player's metrics.
func WithPlayerMetrics(m *metrics.Metrics) PlayerOption {
	return func(p *Player) { p.metrics = m }
}

// NewPlayer creates a player over the given sink.
func NewPlayer(sink SpeakerSink, opts ...PlayerOption) *Player {
	p := &Player{sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play renders pcm and returns when playback ends, fails, is cancelled, or
// is stopped. An empty payload resolves immediately. While active, Speaking
// reports true.
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	if p.sink == nil {
		return core.NewInvalidRequestError("speaker sink is not configured")
	}

	p.mu.Lock()
	if p.speaking {
		p.mu.Unlock()
		return core.NewInvalidRequestError("playback is already active")
	}
	stop := make(chan struct{})
	p.stop = stop
	p.speaking = true
	p.mu.Unlock()

	started := time.Now()
	done := make(chan error, 1)
	go func() { done <- p.sink.Play(pcm) }()

	var err error
	select {
	case err = <-done:
	case <-stop:
		_ = p.sink.Flush()
		<-done
	case <-ctx.Done():
		_ = p.sink.Flush()
		<-done
		err = ctx.Err()
	}

	p.mu.Lock()
	p.speaking = false
	if p.stop == stop {
		p.stop = nil
	}
	p.mu.Unlock()

	p.metrics.PlaybackFinished(time.Since(started).Seconds())
	if err != nil {
		p.logger.Debug("playback ended with error", "error", err)
	}
	return err
}

// Stop pre-empts any in-flight Play. It is idempotent and always safe to
// call, including when nothing is playing; the pre-empted Play still settles.
func (p *Player) Stop() {
	p.mu.Lock()
	stop := p.stop
	p.stop = nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if p.sink != nil {
		_ = p.sink.Flush()
	}
}

// Speaking reports whether a payload is currently being played.
func (p *Player) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}
