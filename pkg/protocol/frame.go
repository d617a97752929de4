// ABOUTME: Audio frame type and binary message framing
// ABOUTME: Normalizes every inbound audio representation to one AudioFrame
package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Binary message type bytes
const (
	AudioChunkMessageType byte = 1
	PlayAudioMessageType  byte = 2
)

// AudioFrame is one opaque compressed slice of speech.
// Frames have no sequence number; order is transport order.
type AudioFrame struct {
	Data []byte
}

// ErrEmptyFrame is returned for frames without payload
var ErrEmptyFrame = errors.New("empty audio frame")

var binaryTypes = map[Event]byte{
	AudioChunk: AudioChunkMessageType,
	PlayAudio:  PlayAudioMessageType,
}

// EncodeBinary builds a binary audio message
func EncodeBinary(event Event, frame AudioFrame) ([]byte, error) {
	t, ok := binaryTypes[event]
	if !ok {
		return nil, errors.Newf("%s is not a binary event", event)
	}
	out := make([]byte, 0, 1+len(frame.Data))
	out = append(out, t)
	return append(out, frame.Data...), nil
}

// DecodeBinary splits a binary audio message
func DecodeBinary(data []byte) (Event, AudioFrame, error) {
	if len(data) < 1 {
		return "", AudioFrame{}, errors.New("invalid binary message: too short")
	}
	var event Event
	switch data[0] {
	case AudioChunkMessageType:
		event = AudioChunk
	case PlayAudioMessageType:
		event = PlayAudio
	default:
		return "", AudioFrame{}, errors.Newf("unknown binary message type: %d", data[0])
	}
	frame := AudioFrame{Data: data[1:]}
	if len(frame.Data) == 0 {
		return event, frame, ErrEmptyFrame
	}
	return event, frame, nil
}

// FrameFromPayload normalizes a JSON audio payload. Accepted shapes are a
// base64 string, an array of byte values, or an object with a "data" field
// holding either of those.
func FrameFromPayload(raw json.RawMessage) (AudioFrame, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return AudioFrame{}, ErrEmptyFrame
	}

	var data []byte
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return AudioFrame{}, errors.Wrap(err, "bad audio string")
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return AudioFrame{}, errors.Wrap(err, "bad base64 audio")
		}
		data = decoded
	case '[':
		var values []int
		if err := json.Unmarshal(raw, &values); err != nil {
			return AudioFrame{}, errors.Wrap(err, "bad audio byte array")
		}
		data = make([]byte, len(values))
		for i, v := range values {
			if v < 0 || v > 255 {
				return AudioFrame{}, errors.Newf("byte value out of range at %d: %d", i, v)
			}
			data[i] = byte(v)
		}
	case '{':
		var wrapped struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return AudioFrame{}, errors.Wrap(err, "bad audio object")
		}
		if len(wrapped.Data) > 0 && wrapped.Data[0] == '{' {
			return AudioFrame{}, errors.New("nested audio object")
		}
		return FrameFromPayload(wrapped.Data)
	default:
		return AudioFrame{}, errors.Newf("unsupported audio payload: %q", raw[0])
	}

	if len(data) == 0 {
		return AudioFrame{}, ErrEmptyFrame
	}
	return AudioFrame{Data: data}, nil
}
