// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes a complete MP3 stream into a stereo PCM buffer
package decode

import (
	"encoding/binary"
	"io"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/cockroachdb/errors"
	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 reads a whole MP3 stream. go-mp3 always yields 16-bit stereo
// at the stream's own sample rate.
func DecodeMP3(r io.Reader) (audio.Buffer, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return audio.Buffer{}, errors.Wrap(err, "failed to create mp3 decoder")
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return audio.Buffer{}, errors.Wrap(err, "mp3 decode error")
	}

	samples := make([]int32, len(raw)/2)
	for i := range samples {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}

	return audio.Buffer{
		Samples: samples,
		Format: audio.Format{
			Codec:      audio.CodecPCM,
			SampleRate: dec.SampleRate(),
			Channels:   2,
			BitDepth:   16,
		},
	}, nil
}
