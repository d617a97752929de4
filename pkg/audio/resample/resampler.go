// ABOUTME: Linear resampler for converting audio sample rates
// ABOUTME: Carries the last input frame across calls so chunks join smoothly
package resample

import "github.com/Resonate-Protocol/walkie/pkg/audio"

// Resampler performs linear interpolation between two sample rates
type Resampler struct {
	channels int
	step     float64 // input frames advanced per output frame
	pos      float64 // read position relative to prev
	prev     []int32 // last frame of the previous call
	primed   bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		channels: channels,
		step:     float64(inputRate) / float64(outputRate),
		prev:     make([]int32, channels),
	}
}

// Resample converts interleaved input and appends the result to dst
func (r *Resampler) Resample(dst, input []int32) []int32 {
	frames := len(input) / r.channels
	if frames == 0 {
		return dst
	}

	// frame i of the virtual stream: i == 0 is prev, i >= 1 is input[i-1]
	at := func(i, ch int) int32 {
		if i == 0 {
			return r.prev[ch]
		}
		return input[(i-1)*r.channels+ch]
	}

	if !r.primed {
		copy(r.prev, input[:r.channels])
		r.primed = true
		r.pos = 1
	}

	for r.pos < float64(frames) {
		i := int(r.pos)
		frac := r.pos - float64(i)
		for ch := 0; ch < r.channels; ch++ {
			a, b := at(i, ch), at(i+1, ch)
			dst = append(dst, int32(float64(a)+(float64(b)-float64(a))*frac))
		}
		r.pos += r.step
	}

	r.pos -= float64(frames)
	copy(r.prev, input[(frames-1)*r.channels:])
	return dst
}

// Reset forgets stream history
func (r *Resampler) Reset() {
	r.pos = 0
	r.primed = false
	clear(r.prev)
}

// Downmix averages interleaved channels down to mono
func Downmix(samples []int32, channels int) []int32 {
	if channels <= 1 {
		return samples
	}
	out := make([]int32, len(samples)/channels)
	for i := range out {
		var sum int64
		for ch := 0; ch < channels; ch++ {
			sum += int64(samples[i*channels+ch])
		}
		out[i] = int32(sum / int64(channels))
	}
	return out
}

// Convert brings a decoded buffer to the target rate and channel count.
// Only downmixing to mono and same-layout conversion are supported.
func Convert(buf audio.Buffer, target audio.Format) audio.Buffer {
	samples := buf.Samples
	channels := buf.Format.Channels
	if target.Channels == 1 && channels > 1 {
		samples = Downmix(samples, channels)
		channels = 1
	}

	if buf.Format.SampleRate != target.SampleRate {
		r := New(buf.Format.SampleRate, target.SampleRate, channels)
		samples = r.Resample(nil, samples)
	}

	format := target
	format.Channels = channels
	return audio.Buffer{Samples: samples, Format: format}
}
