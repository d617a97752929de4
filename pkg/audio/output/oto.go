// ABOUTME: Oto-based audio output implementation
// ABOUTME: Queues timed PCM onto a persistent oto player with software volume
package output

import (
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog/log"
)

// queueDepth bounds how many rendered chunks wait for the device
const queueDepth = 64

// ErrNotOpen is returned by Render before Open
var ErrNotOpen = errors.New("output not initialized")

// Oto output implementation using oto library
type Oto struct {
	clock clock.Clock

	mu     sync.Mutex
	format audio.Format
	head   time.Time // when the last queued sample finishes playing
	volume int
	muted  bool

	otoCtx *oto.Context
	player *oto.Player
	pipe   *io.PipeWriter
	queue  chan []byte
	done   chan struct{}
}

// NewOto creates a new Oto output
func NewOto(clk clock.Clock) *Oto {
	return &Oto{
		clock:  clk,
		volume: 100,
	}
}

// Open initializes the output device.
// oto allows one context per process, so Open is not repeatable.
func (o *Oto) Open(format audio.Format) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx != nil {
		return errors.New("output already open")
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create oto context")
	}
	<-ready

	reader, writer := io.Pipe()
	o.otoCtx = ctx
	o.player = ctx.NewPlayer(reader)
	o.player.Play()
	o.pipe = writer
	o.format = format
	o.queue = make(chan []byte, queueDepth)
	o.done = make(chan struct{})

	go o.pump(o.queue, writer)

	log.Info().Str("module", "output").
		Int("sample_rate", format.SampleRate).
		Int("channels", format.Channels).
		Msg("audio output initialized")
	return nil
}

// pump feeds queued chunks into the player. Pipe writes block until oto
// consumes them, so they stay off the caller's goroutine.
func (o *Oto) pump(queue <-chan []byte, w io.Writer) {
	defer close(o.done)
	for chunk := range queue {
		if _, err := w.Write(chunk); err != nil {
			log.Warn().Str("module", "output").Err(err).Msg("pipe write failed")
			return
		}
	}
}

// Render queues buf to start at the given time
func (o *Oto) Render(buf audio.Buffer, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.queue == nil {
		return ErrNotOpen
	}
	if buf.Format.SampleRate != o.format.SampleRate || buf.Format.Channels != o.format.Channels {
		log.Warn().Str("module", "output").
			Int("buffer_rate", buf.Format.SampleRate).
			Int("device_rate", o.format.SampleRate).
			Msg("buffer format does not match device")
	}

	select {
	case o.queue <- o.encode(buf, at):
		return nil
	default:
		return errors.New("output queue full")
	}
}

// encode pads silence up to at and converts samples to device bytes.
// Caller holds o.mu.
func (o *Oto) encode(buf audio.Buffer, at time.Time) []byte {
	from := o.clock.Now()
	if o.head.After(from) {
		from = o.head
	}

	var pad int
	if gap := at.Sub(from); gap > 0 {
		pad = o.format.SamplesFor(gap)
	}

	samples := applyVolume(buf.Samples, o.volume, o.muted)
	out := make([]byte, (pad+len(samples))*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[(pad+i)*2:], uint16(audio.SampleToInt16(s)))
	}

	start := at
	if start.Before(from) {
		start = from
	}
	o.head = start.Add(buf.Duration())
	return out
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	queue := o.queue
	o.queue = nil
	o.mu.Unlock()

	if queue == nil {
		return nil
	}
	close(queue)
	o.pipe.Close()
	<-o.done

	if err := o.player.Close(); err != nil {
		return errors.Wrap(err, "failed to close player")
	}
	return errors.Wrap(o.otoCtx.Suspend(), "failed to suspend output")
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	volume = max(0, min(100, volume))
	o.mu.Lock()
	o.volume = volume
	o.mu.Unlock()
	log.Debug().Str("module", "output").Int("volume", volume).Msg("volume set")
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
}

// Volume returns current volume
func (o *Oto) Volume() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// Muted returns mute state
func (o *Oto) Muted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// applyVolume applies volume and mute to samples with clipping protection
func applyVolume(samples []int32, volume int, muted bool) []int32 {
	multiplier := getVolumeMultiplier(volume, muted)

	result := make([]int32, len(samples))
	for i, sample := range samples {
		scaled := int64(float64(sample) * multiplier)
		result[i] = int32(max(audio.Min24Bit, min(audio.Max24Bit, scaled)))
	}
	return result
}

func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
