// ABOUTME: Level meter for the voice channel
// ABOUTME: Reports RMS of the live microphone or of the audio playing now
// Package meter samples the loudness of whatever the user is hearing or
// saying and reports it on a fixed cadence. It is display only: a failing
// source or callback never affects capture or playback.
//
// Example:
//
//	live, played := meter.NewLive(clk), meter.NewPlayback()
//	m := meter.New(live, played, transmitting, onLevel, meter.Config{})
//	go m.Run(ctx)
package meter
