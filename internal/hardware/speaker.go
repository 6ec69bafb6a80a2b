package hardware

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Speaker renders 16-bit signed little-endian PCM through the default output
// device. It satisfies the engine's SpeakerSink interface: Play blocks until
// the clip finishes and returns promptly after Flush.
type Speaker struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	current *oto.Player
}

// NewSpeaker opens the output device at the given shape. One speaker per
// process; oto allows a single context.
func NewSpeaker(sampleRate, channels int) (*Speaker, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		// ~100ms buffer keeps start latency low without glitching.
		BufferSize: sampleRate * channels * 2 / 10,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready
	return &Speaker{otoCtx: otoCtx}, nil
}

// Play renders the whole clip and returns when it finishes or is flushed.
func (s *Speaker) Play(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	player := s.otoCtx.NewPlayer(bytes.NewReader(pcm))

	s.mu.Lock()
	s.current = player
	s.mu.Unlock()

	player.Play()
	for player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}

	s.mu.Lock()
	if s.current == player {
		s.current = nil
	}
	s.mu.Unlock()

	return player.Close()
}

// Flush interrupts an in-flight Play by discarding its queued audio. Safe to
// call when nothing is playing.
func (s *Speaker) Flush() error {
	s.mu.Lock()
	player := s.current
	s.current = nil
	s.mu.Unlock()

	if player != nil {
		player.Pause()
		player.Reset()
	}
	return nil
}
