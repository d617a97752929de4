// ABOUTME: Audio output package for placing decoded buffers on the device timeline
// ABOUTME: Provides the Renderer interface and an oto implementation
// Package output provides audio playback.
//
// A Renderer accepts a buffer together with the absolute time its first
// sample should be heard. The oto renderer keeps a write head and pads
// silence so that buffers land where they were scheduled.
//
// Example:
//
//	out := output.NewOto(clock.New())
//	err := out.Open(audio.DefaultFormat)
//	err = out.Render(buf, start)
package output
