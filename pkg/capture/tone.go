// ABOUTME: Tone generator microphone
// ABOUTME: Produces a sine wave for headless testing of the voice path
package capture

import (
	"math"
	"sync"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
)

// ToneMicrophone generates a continuous sine tone
type ToneMicrophone struct {
	mu        sync.Mutex
	frequency float64
	format    audio.Format
	frame     uint64
}

// NewToneMicrophone creates a tone source at the given frequency
func NewToneMicrophone(frequency float64) *ToneMicrophone {
	return &ToneMicrophone{frequency: frequency}
}

// Open records the output format
func (t *ToneMicrophone) Open(format audio.Format) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.format = format
	return nil
}

// Read fills dst with the next stretch of the tone
func (t *ToneMicrophone) Read(dst []int32) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := t.format.Channels
	if ch <= 0 || t.format.SampleRate <= 0 {
		return 0
	}

	frames := len(dst) / ch
	for i := 0; i < frames; i++ {
		phase := float64(t.frame+uint64(i)) / float64(t.format.SampleRate)
		sample := int32(math.Sin(2*math.Pi*t.frequency*phase) * audio.Max24Bit * 0.5)
		for c := 0; c < ch; c++ {
			dst[i*ch+c] = sample
		}
	}
	t.frame += uint64(frames)
	return frames * ch
}

// Flush is a no-op for a generated source
func (t *ToneMicrophone) Flush() {}

// Close releases nothing
func (t *ToneMicrophone) Close() error { return nil }
