// ABOUTME: Level sources fed by capture and playback taps
// ABOUTME: Live keeps the latest microphone chunk, Playback tracks scheduled buffers
package meter

import (
	"sync"
	"time"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/benbjohnson/clock"
)

// liveStale is how long a published chunk stays representative
const liveStale = 500 * time.Millisecond

// window is how much audio one playback reading covers
const window = 20 * time.Millisecond

// Source yields the level at a point in time
type Source interface {
	Level(now time.Time) (float64, bool)
}

// Live holds the level of the most recent microphone chunk
type Live struct {
	clock clock.Clock

	mu    sync.Mutex
	level float64
	at    time.Time
}

// NewLive creates a live tap
func NewLive(clk clock.Clock) *Live {
	return &Live{clock: clk}
}

// Publish records a chunk as it is captured
func (l *Live) Publish(samples []int32) {
	level := RMS(samples)
	now := l.clock.Now()

	l.mu.Lock()
	l.level, l.at = level, now
	l.mu.Unlock()
}

// Level returns the last chunk's level while it is recent
func (l *Live) Level(now time.Time) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.at.IsZero() || now.Sub(l.at) > liveStale {
		return 0, false
	}
	return l.level, true
}

type scheduled struct {
	buf   audio.Buffer
	start time.Time
	end   time.Time
}

// Playback tracks buffers handed to the output and reads the one
// playing at a given time. Buffers are dropped once they finish.
type Playback struct {
	mu      sync.Mutex
	entries []scheduled
}

// NewPlayback creates a playback tap
func NewPlayback() *Playback {
	return &Playback{}
}

// Track records a buffer scheduled to start at start
func (p *Playback) Track(buf audio.Buffer, start time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, scheduled{buf: buf, start: start, end: start.Add(buf.Duration())})
}

// Level returns the RMS of the short window of audio playing at now
func (p *Playback) Level(now time.Time) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := 0
	for i < len(p.entries) && !p.entries[i].end.After(now) {
		i++
	}
	p.entries = p.entries[i:]

	if len(p.entries) == 0 || now.Before(p.entries[0].start) {
		return 0, false
	}

	e := p.entries[0]
	format := e.buf.Format
	from := format.SamplesFor(now.Sub(e.start))
	from -= from % max(1, format.Channels)
	to := min(len(e.buf.Samples), from+format.SamplesFor(window))
	if from >= to {
		return 0, false
	}
	return RMS(e.buf.Samples[from:to]), true
}

// Len returns how many buffers are still tracked
func (p *Playback) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
