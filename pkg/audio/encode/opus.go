// ABOUTME: Opus audio encoder
// ABOUTME: Encodes a capture chunk into length-prefixed 20ms Opus packets
package encode

import (
	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/cockroachdb/errors"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusPacket is the recommended upper bound for one Opus packet
const maxOpusPacket = 4000

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder   *opus.Encoder
	channels  int
	frameSize int // samples per channel in one packet
	packet    []byte
}

// NewOpus creates a new Opus encoder tuned for speech
func NewOpus(format audio.Format) (Encoder, error) {
	if format.Codec != audio.CodecOpus {
		return nil, errors.Newf("invalid codec for Opus encoder: %s", format.Codec)
	}

	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppVoIP)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create opus encoder")
	}

	return &OpusEncoder{
		encoder:   encoder,
		channels:  format.Channels,
		frameSize: format.SampleRate / 50, // 20ms
		packet:    make([]byte, maxOpusPacket),
	}, nil
}

// Encode converts int32 samples to a container of Opus packets.
// A trailing partial packet is padded with silence.
func (e *OpusEncoder) Encode(samples []int32) ([]byte, error) {
	step := e.frameSize * e.channels
	pcm := make([]int16, step)

	var out []byte
	for off := 0; off < len(samples); off += step {
		end := min(off+step, len(samples))
		n := copy(pcm, audio.SamplesToInt16(samples[off:end]))
		clear(pcm[n:])

		size, err := e.encoder.Encode(pcm, e.packet)
		if err != nil {
			return nil, errors.Wrap(err, "opus encode error")
		}
		if out, err = audio.AppendPacket(out, e.packet[:size]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Close releases resources
func (e *OpusEncoder) Close() error {
	return nil
}
