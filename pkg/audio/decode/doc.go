// ABOUTME: Audio decoder package for voice frames and announcement files
// ABOUTME: Provides Decoder interface and implementations for PCM, Opus, MP3
// Package decode provides audio decoders.
//
// Supports: PCM (16-bit), Opus (length-prefixed packet container), and
// whole-stream MP3 decoding for file sources.
//
// All decoders output int32 samples in 24-bit range.
//
// Example:
//
//	decoder, err := decode.New(audio.DefaultFormat)
//	samples, err := decoder.Decode(frame.Data)
package decode
