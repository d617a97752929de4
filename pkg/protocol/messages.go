// ABOUTME: Walkie control event vocabulary and payload types
// ABOUTME: JSON envelope encoding shared by server and client
package protocol

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Event names a control or audio event
type Event string

// Control events
const (
	StartSpeaking Event = "start_speaking"
	StopSpeaking  Event = "stop_speaking"
	StartAccepted Event = "start_accepted"
	StartDenied   Event = "start_denied"
	LockPTT       Event = "lock_ptt"
	UnlockPTT     Event = "unlock_ptt"
	YourID        Event = "your_id"
)

// Audio events, carried as binary messages
const (
	AudioChunk Event = "audio_chunk"
	PlayAudio  Event = "play_audio"
)

// Message is the top-level wrapper for all text messages
type Message struct {
	Type    Event           `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Lock is the lock_ptt payload
type Lock struct {
	Speaker string `json:"speaker"`
}

// Identity is the your_id payload
type Identity struct {
	ID string `json:"id"`
}

// EncodeMessage builds a text message. A nil payload is omitted.
func EncodeMessage(event Event, payload any) ([]byte, error) {
	msg := Message{Type: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal %s payload", event)
		}
		msg.Payload = raw
	}
	data, err := json.Marshal(msg)
	return data, errors.Wrap(err, "failed to marshal message")
}

// DecodeMessage parses a text message envelope
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, errors.Wrap(err, "failed to parse message")
	}
	if msg.Type == "" {
		return Message{}, errors.New("message has no type")
	}
	return msg, nil
}

// Decode unmarshals the payload into v
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return errors.Newf("%s has no payload", m.Type)
	}
	return errors.Wrapf(json.Unmarshal(m.Payload, v), "failed to parse %s", m.Type)
}
