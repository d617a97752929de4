// ABOUTME: Capture lifecycle driving microphone reads, encoding and emission
// ABOUTME: Begin and End are idempotent and End stops emission synchronously
package capture

import (
	"context"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/Resonate-Protocol/walkie/pkg/audio/encode"
	"github.com/Resonate-Protocol/walkie/pkg/protocol"
	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is how much audio one frame carries
const DefaultInterval = 200 * time.Millisecond

// ErrMicrophoneUnavailable is returned once the microphone failed to open
var ErrMicrophoneUnavailable = errors.New("microphone unavailable")

// FrameSink receives encoded frames
type FrameSink interface {
	EmitFrame(event protocol.Event, frame protocol.AudioFrame) error
}

// Config holds capture settings
type Config struct {
	Format   audio.Format
	Interval time.Duration
	Clock    clock.Clock

	// OnChunk sees every raw chunk before it is encoded
	OnChunk func(samples []int32)
}

// Capture reads the microphone while a transmission is active
type Capture struct {
	mic      Microphone
	sink     FrameSink
	encoder  encode.Encoder
	format   audio.Format
	interval time.Duration
	clock    clock.Clock
	onChunk  func([]int32)

	// emitMu is held for one frame from the generation check through the
	// sink write; End takes it to wait out a frame already in flight
	emitMu sync.Mutex

	mu     sync.Mutex
	opened bool
	micErr error
	active bool
	gen    uint64
	cancel context.CancelFunc

	emitted atomic.Uint64
}

// New creates a capture pipeline. The microphone is not opened until Begin.
func New(mic Microphone, sink FrameSink, config Config) (*Capture, error) {
	if config.Format == (audio.Format{}) {
		config.Format = audio.DefaultFormat
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	encoder, err := encode.New(config.Format)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create capture encoder")
	}

	return &Capture{
		mic:      mic,
		sink:     sink,
		encoder:  encoder,
		format:   config.Format,
		interval: config.Interval,
		clock:    config.Clock,
		onChunk:  config.OnChunk,
	}, nil
}

// Begin starts producing frames. Calling Begin while active does nothing.
func (c *Capture) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return nil
	}
	if err := c.acquire(); err != nil {
		return err
	}

	c.mic.Flush()
	c.gen++
	c.active = true

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	ticker := c.clock.Ticker(c.interval)
	go c.run(ctx, c.gen, ticker)

	log.Debug().Str("module", "capture").Uint64("generation", c.gen).Msg("capture started")
	return nil
}

// acquire opens the microphone once. Caller holds c.mu.
func (c *Capture) acquire() error {
	if c.opened {
		return nil
	}
	if c.micErr != nil {
		return ErrMicrophoneUnavailable
	}

	if err := c.mic.Open(c.format); err != nil {
		c.micErr = err
		log.Error().Str("module", "capture").Err(err).Msg("microphone unavailable")
		return errors.Mark(errors.Wrap(err, "failed to open microphone"), ErrMicrophoneUnavailable)
	}
	c.opened = true
	return nil
}

// End stops producing frames. No frame is emitted after End returns.
func (c *Capture) End() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.gen++
	c.cancel()
	c.mu.Unlock()

	c.emitMu.Lock()
	c.emitMu.Unlock()
	log.Debug().Str("module", "capture").Uint64("frames", c.emitted.Load()).Msg("capture stopped")
}

// Active reports whether frames are being produced
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Emitted returns how many frames were handed to the sink
func (c *Capture) Emitted() uint64 {
	return c.emitted.Load()
}

// Close ends capture and releases the microphone
func (c *Capture) Close() error {
	c.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.opened {
		err = c.mic.Close()
		c.opened = false
	}
	return errors.CombineErrors(err, c.encoder.Close())
}

func (c *Capture) run(ctx context.Context, gen uint64, ticker *clock.Ticker) {
	defer ticker.Stop()
	for chunk := range c.chunks(ctx, gen, ticker) {
		if !c.emit(gen, chunk) {
			return
		}
	}
}

// chunks lazily pulls one chunk per tick for as long as gen is current
func (c *Capture) chunks(ctx context.Context, gen uint64, ticker *clock.Ticker) iter.Seq[[]int32] {
	return func(yield func([]int32) bool) {
		buf := make([]int32, c.format.SamplesFor(c.interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			c.mu.Lock()
			if c.gen != gen {
				c.mu.Unlock()
				return
			}
			n := c.mic.Read(buf)
			c.mu.Unlock()

			if n == 0 {
				continue
			}
			if !yield(slices.Clone(buf[:n])) {
				return
			}
		}
	}
}

// emit encodes and sends one chunk unless capture ended meanwhile
func (c *Capture) emit(gen uint64, chunk []int32) bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}

	if c.onChunk != nil {
		c.onChunk(chunk)
	}

	data, err := c.encoder.Encode(chunk)
	c.mu.Unlock()
	if err != nil {
		log.Warn().Str("module", "capture").Err(err).Msg("encode failed, dropping chunk")
		return true
	}

	if err := c.sink.EmitFrame(protocol.AudioChunk, protocol.AudioFrame{Data: data}); err != nil {
		log.Warn().Str("module", "capture").Err(err).Msg("failed to send frame")
		return true
	}
	c.emitted.Add(1)
	return true
}
