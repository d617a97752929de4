// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for all audio encoders
package encode

import (
	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/cockroachdb/errors"
)

// Encoder encodes PCM int32 samples to a frame payload
type Encoder interface {
	// Encode converts PCM samples to encoded audio data
	Encode(samples []int32) ([]byte, error)

	// Close releases encoder resources
	Close() error
}

// New creates an encoder for the format's codec
func New(format audio.Format) (Encoder, error) {
	switch format.Codec {
	case audio.CodecOpus:
		return NewOpus(format)
	case audio.CodecPCM:
		return NewPCM(format)
	default:
		return nil, errors.Newf("no encoder for codec: %s", format.Codec)
	}
}
