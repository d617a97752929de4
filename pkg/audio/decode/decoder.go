// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for all audio decoders
package decode

import (
	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/cockroachdb/errors"
)

// Decoder decodes audio in various formats to PCM int32 samples
type Decoder interface {
	// Decode converts encoded audio data to PCM samples
	Decode(data []byte) ([]int32, error)

	// Close releases decoder resources
	Close() error
}

// New creates a decoder for the format's codec
func New(format audio.Format) (Decoder, error) {
	switch format.Codec {
	case audio.CodecOpus:
		return NewOpus(format)
	case audio.CodecPCM:
		return NewPCM(format)
	default:
		return nil, errors.Newf("no frame decoder for codec: %s", format.Codec)
	}
}
