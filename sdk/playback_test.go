package viva

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/probitylabs/viva/pkg/core"
)

func TestPlayer_PlayResolvesOnCompletion(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	player := NewPlayer(sink)

	if err := player.Play(context.Background(), []byte{1, 2, 3}); err != nil {
		t.Fatalf("Play error: %v", err)
	}
	if sink.playCount() != 1 {
		t.Fatalf("playCount=%d, want 1", sink.playCount())
	}
	if player.Speaking() {
		t.Fatal("Speaking() = true after playback finished")
	}
}

func TestPlayer_EmptyPayloadResolvesImmediately(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	player := NewPlayer(sink)

	if err := player.Play(context.Background(), nil); err != nil {
		t.Fatalf("Play(nil) error: %v", err)
	}
	if sink.playCount() != 0 {
		t.Fatalf("playCount=%d, want 0", sink.playCount())
	}
}

func TestPlayer_StopPreemptsInFlightPlay(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	sink.gate = make(chan struct{})
	player := NewPlayer(sink)

	result := make(chan error, 1)
	go func() { result <- player.Play(context.Background(), []byte{1}) }()

	waitFor(t, 2*time.Second, player.Speaking, "playback to start")
	player.Stop()

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("pre-empted Play returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pre-empted Play never settled")
	}
	if sink.flushCount() == 0 {
		t.Fatal("expected Stop to flush the sink")
	}
	if player.Speaking() {
		t.Fatal("Speaking() = true after Stop")
	}
}

func TestPlayer_ContextCancellationSettlesPlay(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	sink.gate = make(chan struct{})
	player := NewPlayer(sink)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- player.Play(ctx, []byte{1}) }()

	waitFor(t, 2*time.Second, player.Speaking, "playback to start")
	cancel()

	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Play error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled Play never settled")
	}
}

func TestPlayer_RejectsConcurrentPlay(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	sink.gate = make(chan struct{})
	player := NewPlayer(sink)

	result := make(chan error, 1)
	go func() { result <- player.Play(context.Background(), []byte{1}) }()
	waitFor(t, 2*time.Second, player.Speaking, "playback to start")

	err := player.Play(context.Background(), []byte{2})
	if !core.IsInvalidRequest(err) {
		t.Fatalf("second Play error = %v, want invalid request", err)
	}

	player.Stop()
	<-result
}

func TestPlayer_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	player := NewPlayer(newFakeSink())
	player.Stop()
	player.Stop()
}
