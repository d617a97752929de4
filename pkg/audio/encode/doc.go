// ABOUTME: Audio encoder package for encoding captured PCM into voice frames
// ABOUTME: Provides Encoder interface and implementations for PCM, Opus
// Package encode turns captured PCM chunks into voice frame payloads.
//
// Supports: PCM (16-bit), Opus (20ms packets in a length-prefixed container)
//
// All encoders accept int32 samples in 24-bit range.
//
// Example:
//
//	encoder, err := encode.New(audio.DefaultFormat)
//	payload, err := encoder.Encode(samples)
package encode
