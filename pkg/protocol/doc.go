// ABOUTME: Walkie wire protocol package
// ABOUTME: Defines control events, payloads and the binary audio framing
// Package protocol implements the walkie wire protocol.
//
// Control events travel as JSON text messages of the form
// {"type": "...", "payload": {...}}. Audio travels as binary messages whose
// first byte names the event (audio_chunk or play_audio) and whose remainder
// is the opaque frame payload.
//
// Example:
//
//	data, err := protocol.EncodeMessage(protocol.LockPTT, protocol.Lock{Speaker: id})
//	event, frame, err := protocol.DecodeBinary(raw)
package protocol
