// ABOUTME: Malgo-based microphone using miniaudio capture devices
// ABOUTME: The device callback fills a ring buffer drained by Read
package capture

import (
	"encoding/binary"
	"sync"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/cockroachdb/errors"
	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

// ringSeconds is how much unread audio the device keeps
const ringSeconds = 2

// MalgoMicrophone captures from the default input device
type MalgoMicrophone struct {
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	ring     *RingBuffer
}

// NewMalgoMicrophone creates an unopened device microphone
func NewMalgoMicrophone() *MalgoMicrophone {
	return &MalgoMicrophone{}
}

// Open initializes and starts the capture device
func (m *MalgoMicrophone) Open(format audio.Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return errors.Wrap(err, "failed to initialize malgo context")
	}

	m.ring = NewRingBuffer(format.SampleRate * format.Channels * ringSeconds)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	ring := m.ring
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			samples := make([]int32, len(input)/2)
			for i := range samples {
				samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(input[i*2:])))
			}
			ring.Write(samples)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return errors.Wrap(err, "failed to initialize capture device")
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return errors.Wrap(err, "failed to start capture device")
	}

	m.malgoCtx = ctx
	m.device = device

	log.Info().Str("module", "capture").
		Int("sample_rate", format.SampleRate).
		Int("channels", format.Channels).
		Msg("microphone opened")
	return nil
}

// Read drains captured samples
func (m *MalgoMicrophone) Read(dst []int32) int {
	m.mu.Lock()
	ring := m.ring
	m.mu.Unlock()

	if ring == nil {
		return 0
	}
	return ring.Read(dst)
}

// Flush drops buffered samples
func (m *MalgoMicrophone) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ring != nil {
		m.ring.Reset()
	}
}

// Close stops the device and releases the context
func (m *MalgoMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.Warn().Str("module", "capture").Err(err).Msg("device stop error")
		}
		m.device.Uninit()
		m.device = nil
	}
	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Warn().Str("module", "capture").Err(err).Msg("malgo context uninit error")
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}
