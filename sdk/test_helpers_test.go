package viva

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newWebsocketTestServer(t *testing.T, handler func(conn *websocket.Conn)) (string, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return wsURL, server.Close
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// fakeMic is an in-memory MicSource.
type fakeMic struct {
	mu       sync.Mutex
	frames   chan []float32
	startErr error
	stopErr  error
	starts   int
	stops    int
}

func (m *fakeMic) Start(ctx context.Context) (<-chan []float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.frames = make(chan []float32, 16)
	return m.frames, nil
}

func (m *fakeMic) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	if m.frames != nil {
		close(m.frames)
		m.frames = nil
	}
	return m.stopErr
}

func (m *fakeMic) emit(frame []float32) {
	m.mu.Lock()
	frames := m.frames
	m.mu.Unlock()
	if frames != nil {
		frames <- frame
	}
}

func (m *fakeMic) startCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *fakeMic) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// fakeSink is an in-memory SpeakerSink. With a gate set, Play blocks until
// the gate closes or Flush fires, mimicking real rendering time.
type fakeSink struct {
	mu      sync.Mutex
	played  [][]byte
	flushes int
	playErr error
	gate    chan struct{}
	flushCh chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{flushCh: make(chan struct{}, 2)}
}

func (s *fakeSink) Play(pcm []byte) error {
	s.mu.Lock()
	s.played = append(s.played, append([]byte(nil), pcm...))
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-s.flushCh:
		}
	}
	return s.playErr
}

func (s *fakeSink) Flush() error {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
	select {
	case s.flushCh <- struct{}{}:
	default:
	}
	return nil
}

func (s *fakeSink) playCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.played)
}

func (s *fakeSink) flushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}
