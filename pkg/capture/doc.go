// ABOUTME: Microphone capture for push-to-talk transmission
// ABOUTME: Pulls PCM on a fixed cadence, encodes it and hands frames to a sink
// Package capture turns microphone input into outbound audio frames.
//
// The microphone is opened on the first Begin and kept open afterwards. A
// failure to open it is sticky: it is logged once and every later Begin
// returns ErrMicrophoneUnavailable. While active, chunks are pulled from the
// microphone every interval, encoded and emitted immediately.
//
// Example:
//
//	c, err := capture.New(capture.NewMalgoMicrophone(), conn, capture.Config{})
//	err = c.Begin()
//	c.End()
package capture
