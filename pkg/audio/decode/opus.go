// ABOUTME: Opus audio decoder
// ABOUTME: Decodes a container of Opus packets to int32 samples
package decode

import (
	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/cockroachdb/errors"
	"gopkg.in/hraban/opus.v2"
)

// OpusDecoder decodes Opus audio
type OpusDecoder struct {
	decoder *opus.Decoder
	format  audio.Format
	pcm     []int16
}

// NewOpus creates a new Opus decoder
func NewOpus(format audio.Format) (Decoder, error) {
	if format.Codec != audio.CodecOpus {
		return nil, errors.Newf("invalid codec for Opus decoder: %s", format.Codec)
	}

	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create opus decoder")
	}

	return &OpusDecoder{
		decoder: dec,
		format:  format,
		pcm:     make([]int16, 5760*format.Channels), // 120ms, the largest Opus frame
	}, nil
}

// Decode converts a packet container to int32 samples
func (d *OpusDecoder) Decode(data []byte) ([]int32, error) {
	packets, err := audio.SplitPackets(data)
	if err != nil {
		return nil, err
	}

	var out []int32
	for _, packet := range packets {
		n, err := d.decoder.Decode(packet, d.pcm)
		if err != nil {
			return nil, errors.Wrap(err, "opus decode failed")
		}
		out = append(out, audio.SamplesFromInt16(d.pcm[:n*d.format.Channels])...)
	}
	return out, nil
}

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	return nil
}
