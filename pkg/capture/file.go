// ABOUTME: MP3 file microphone
// ABOUTME: Decodes a recorded message and feeds it as if spoken live
package capture

import (
	"os"
	"sync"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/Resonate-Protocol/walkie/pkg/audio/decode"
	"github.com/Resonate-Protocol/walkie/pkg/audio/resample"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

// FileMicrophone plays an MP3 file into the channel
type FileMicrophone struct {
	path string
	loop bool

	mu      sync.Mutex
	samples []int32
	pos     int
}

// NewFileMicrophone creates a microphone reading from an MP3 file.
// With loop set the file repeats, otherwise it goes silent at the end.
func NewFileMicrophone(path string, loop bool) *FileMicrophone {
	return &FileMicrophone{path: path, loop: loop}
}

// Open decodes the whole file and converts it to format
func (f *FileMicrophone) Open(format audio.Format) error {
	file, err := os.Open(f.path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", f.path)
	}
	defer file.Close()

	buf, err := decode.DecodeMP3(file)
	if err != nil {
		return errors.Wrapf(err, "failed to decode %s", f.path)
	}
	converted := resample.Convert(buf, format)

	f.mu.Lock()
	f.samples = converted.Samples
	f.pos = 0
	f.mu.Unlock()

	log.Info().Str("module", "capture").
		Str("path", f.path).
		Dur("duration", converted.Duration()).
		Msg("file microphone loaded")
	return nil
}

// Read copies the next samples of the file
func (f *FileMicrophone) Read(dst []int32) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for n < len(dst) && len(f.samples) > 0 {
		if f.pos >= len(f.samples) {
			if !f.loop {
				break
			}
			f.pos = 0
		}
		c := copy(dst[n:], f.samples[f.pos:])
		f.pos += c
		n += c
	}
	return n
}

// Flush keeps the file position; each transmission continues the file
func (f *FileMicrophone) Flush() {}

// Rewind restarts the file from the beginning
func (f *FileMicrophone) Rewind() {
	f.mu.Lock()
	f.pos = 0
	f.mu.Unlock()
}

// Close drops the decoded audio
func (f *FileMicrophone) Close() error {
	f.mu.Lock()
	f.samples = nil
	f.mu.Unlock()
	return nil
}
