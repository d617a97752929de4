// ABOUTME: Tests for the oto renderer's timing and volume logic
// ABOUTME: Exercises silence padding against a mock clock without a device
package output

import (
	"testing"
	"time"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOtoImplementsOutput(t *testing.T) {
	var _ Output = (*Oto)(nil)
}

func newTestOto(clk clock.Clock) *Oto {
	o := NewOto(clk)
	o.format = audio.DefaultFormat
	return o
}

func buffer(d time.Duration, value int32) audio.Buffer {
	samples := make([]int32, audio.DefaultFormat.SamplesFor(d))
	for i := range samples {
		samples[i] = value
	}
	return audio.Buffer{Samples: samples, Format: audio.DefaultFormat}
}

func TestEncodePadsLeadAfterDrain(t *testing.T) {
	clk := clock.NewMock()
	o := newTestOto(clk)

	out := o.encode(buffer(10*time.Millisecond, audio.SampleFromInt16(100)), clk.Now().Add(50*time.Millisecond))

	pad := audio.DefaultFormat.SamplesFor(50 * time.Millisecond)
	require.Len(t, out, (pad+480)*2)
	assert.Equal(t, make([]byte, pad*2), out[:pad*2])
	assert.Equal(t, byte(100), out[pad*2])
	assert.Equal(t, clk.Now().Add(60*time.Millisecond), o.head)
}

func TestEncodeContiguousBuffersHaveNoGap(t *testing.T) {
	clk := clock.NewMock()
	o := newTestOto(clk)
	start := clk.Now().Add(50 * time.Millisecond)

	o.encode(buffer(200*time.Millisecond, 1), start)
	out := o.encode(buffer(200*time.Millisecond, 1), start.Add(200*time.Millisecond))

	assert.Len(t, out, audio.DefaultFormat.SamplesFor(200*time.Millisecond)*2)
}

func TestEncodeLateBufferPlaysImmediately(t *testing.T) {
	clk := clock.NewMock()
	o := newTestOto(clk)

	clk.Add(time.Second)
	out := o.encode(buffer(20*time.Millisecond, 1), clk.Now().Add(-100*time.Millisecond))

	assert.Len(t, out, 960*2)
	assert.Equal(t, clk.Now().Add(20*time.Millisecond), o.head)
}

func TestRenderBeforeOpen(t *testing.T) {
	o := NewOto(clock.NewMock())
	assert.ErrorIs(t, o.Render(buffer(time.Millisecond, 0), time.Time{}), ErrNotOpen)
	assert.NoError(t, o.Close())
}

func TestVolumeClamped(t *testing.T) {
	o := NewOto(clock.NewMock())
	o.SetVolume(150)
	assert.Equal(t, 100, o.Volume())
	o.SetVolume(-5)
	assert.Equal(t, 0, o.Volume())

	o.SetMuted(true)
	assert.True(t, o.Muted())
}

func TestApplyVolume(t *testing.T) {
	tests := []struct {
		name     string
		volume   int
		muted    bool
		input    int32
		expected int32
	}{
		{"full", 100, false, 1000, 1000},
		{"half", 50, false, 1000, 500},
		{"muted", 100, true, 1000, 0},
		{"zero", 0, false, 1000, 0},
		{"negative", 50, false, -1000, -500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := applyVolume([]int32{tt.input}, tt.volume, tt.muted)
			assert.Equal(t, tt.expected, out[0])
		})
	}
}
