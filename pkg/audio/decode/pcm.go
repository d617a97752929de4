// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 16-bit PCM audio to int32 samples
package decode

import (
	"encoding/binary"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/cockroachdb/errors"
)

// PCMDecoder decodes 16-bit PCM audio
type PCMDecoder struct{}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != audio.CodecPCM {
		return nil, errors.Newf("invalid codec for PCM decoder: %s", format.Codec)
	}
	if format.BitDepth != 16 {
		return nil, errors.Newf("unsupported bit depth: %d (supported: 16)", format.BitDepth)
	}
	return &PCMDecoder{}, nil
}

// Decode converts PCM bytes to int32 samples
func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	if len(data)%2 != 0 {
		return nil, errors.Newf("odd PCM payload length: %d", len(data))
	}
	samples := make([]int32, len(data)/2)
	for i := range samples {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return samples, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
