// ABOUTME: Audio type definitions
// ABOUTME: Defines audio formats, decoded buffers and sample conversions
package audio

import "time"

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Codec names shared by capture and playback
const (
	CodecOpus = "opus"
	CodecPCM  = "pcm"
	CodecMP3  = "mp3"
)

// Format describes an audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat is the voice format used on the channel
var DefaultFormat = Format{
	Codec:      CodecOpus,
	SampleRate: 48000,
	Channels:   1,
	BitDepth:   16,
}

// SamplesFor returns the number of interleaved samples covering d
func (f Format) SamplesFor(d time.Duration) int {
	frames := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return frames * f.Channels
}

// DurationOf returns the play time of n interleaved samples
func (f Format) DurationOf(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := int64(n / f.Channels)
	return time.Duration(frames * int64(time.Second) / int64(f.SampleRate))
}

// Buffer represents decoded PCM audio
type Buffer struct {
	Samples []int32 // PCM samples, 24-bit range
	Format  Format
}

// Duration returns how long the buffer plays
func (b Buffer) Duration() time.Duration {
	return b.Format.DurationOf(len(b.Samples))
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SamplesFromInt16 widens a block of 16-bit samples
func SamplesFromInt16(in []int16) []int32 {
	out := make([]int32, len(in))
	for i, s := range in {
		out[i] = SampleFromInt16(s)
	}
	return out
}

// SamplesToInt16 narrows a block of samples to 16-bit
func SamplesToInt16(in []int32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		out[i] = SampleToInt16(s)
	}
	return out
}
