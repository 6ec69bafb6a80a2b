// Package hardware provides the real microphone and speaker devices behind
// the engine's capture and playback interfaces.
package hardware

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/probitylabs/viva/pkg/core"
)

// Mic captures microphone audio as float32 sample frames. It satisfies the
// engine's MicSource interface.
type Mic struct {
	sampleRate int
	channels   int
	logger     *slog.Logger

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	frames   chan []float32
	started  bool
}

// NewMic creates a microphone source. The device is not acquired until
// Start.
func NewMic(sampleRate, channels int, logger *slog.Logger) *Mic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mic{sampleRate: sampleRate, channels: channels, logger: logger}
}

// Start acquires the microphone and begins delivering frames. A denied
// device permission surfaces as a permission error. The returned channel is
// closed by Stop.
func (m *Mic) Start(ctx context.Context) (<-chan []float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil, core.NewInvalidRequestError("microphone is already started")
	}

	malgoConfig := malgo.ContextConfig{}
	malgoConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, malgoConfig, nil)
	if err != nil {
		return nil, deviceError("init audio context", err)
	}

	frames := make(chan []float32, 32)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(m.channels)
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			frame := float32FromBytes(pInputSamples)
			if len(frame) == 0 {
				return
			}
			select {
			case frames <- frame:
			default:
				// Consumer is behind; dropping a frame beats blocking the
				// device callback.
			}
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, deviceError("init microphone", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, deviceError("start microphone", err)
	}

	m.malgoCtx = malgoCtx
	m.device = device
	m.frames = frames
	m.started = true

	m.logger.Debug("microphone started",
		"sample_rate", m.sampleRate,
		"channels", m.channels)
	return frames, nil
}

// Stop releases the microphone and closes the frame channel. Safe to call
// when not started.
func (m *Mic) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	m.started = false

	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
		m.device = nil
	}
	if m.malgoCtx != nil {
		_ = m.malgoCtx.Uninit()
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	if m.frames != nil {
		close(m.frames)
		m.frames = nil
	}

	m.logger.Debug("microphone stopped")
	return nil
}

// deviceError maps a device failure onto the engine's error taxonomy. An
// access denial is a permission error; everything else is connectivity.
func deviceError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return core.NewPermissionError(fmt.Sprintf("%s: microphone access denied", op), err)
	}
	return core.NewConnectivityError(fmt.Sprintf("%s: %v", op, err), err)
}

// float32FromBytes reinterprets little-endian float32 device samples.
func float32FromBytes(data []byte) []float32 {
	n := len(data) / 4
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
