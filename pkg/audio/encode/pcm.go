// ABOUTME: PCM audio encoder
// ABOUTME: Encodes int32 samples to 16-bit little-endian PCM bytes
package encode

import (
	"encoding/binary"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/cockroachdb/errors"
)

// PCMEncoder encodes 16-bit PCM audio
type PCMEncoder struct{}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != audio.CodecPCM {
		return nil, errors.Newf("invalid codec for PCM encoder: %s", format.Codec)
	}
	if format.BitDepth != 16 {
		return nil, errors.Newf("unsupported bit depth: %d (supported: 16)", format.BitDepth)
	}
	return &PCMEncoder{}, nil
}

// Encode converts int32 samples to PCM bytes
func (e *PCMEncoder) Encode(samples []int32) ([]byte, error) {
	output := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(audio.SampleToInt16(sample)))
	}
	return output, nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
