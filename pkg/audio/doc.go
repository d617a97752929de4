// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Buffer types and sample conversion functions
// Package audio provides the audio types shared by capture and playback.
//
//   - Format: codec, sample rate, channels, bit depth of the voice channel
//   - Buffer: decoded PCM audio, with its play duration
//
// Samples are carried as int32 in 24-bit range so that every codec and
// output backend agrees on one representation.
//
// Example:
//
//	buf := audio.Buffer{Samples: pcm, Format: audio.DefaultFormat}
//	log.Printf("chunk plays for %v", buf.Duration())
package audio
