// ABOUTME: Gapless playback scheduling for received voice frames
// ABOUTME: Decodes ahead of the consumer, schedules strictly in arrival order
// Package playback turns a stream of received audio frames into gapless
// audio on the local output.
//
// Frames are decoded one at a time in arrival order, since codec state runs
// from one packet to the next, while earlier frames are still being
// scheduled. A single consumer takes frames in arrival order, waits for
// that frame's decode and places the result on a cursor:
//
//	start  = max(cursor, now + lead)
//	cursor = start + duration
//
// Contiguous frames therefore play back to back, and after a stall the
// cursor restarts a small lead ahead of the present instead of in the past.
//
// Example:
//
//	s := playback.New(dec, out, playback.Config{})
//	conn.OnFrame(protocol.PlayAudio, func(f protocol.AudioFrame) { s.Push(f) })
//	defer s.Close()
package playback
