// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for timed playback backends
package output

import (
	"time"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
)

// Renderer plays a buffer starting at an absolute time
type Renderer interface {
	Render(buf audio.Buffer, at time.Time) error
}

// Output represents an audio output device
type Output interface {
	Renderer

	// Open initializes the output device
	Open(format audio.Format) error

	// Close releases output resources
	Close() error
}

// RendererFunc adapts a function to the Renderer interface
type RendererFunc func(buf audio.Buffer, at time.Time) error

// Render calls f(buf, at)
func (f RendererFunc) Render(buf audio.Buffer, at time.Time) error {
	return f(buf, at)
}
