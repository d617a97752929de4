// ABOUTME: Cursor-based playback scheduler
// ABOUTME: Decodes frames in arrival order and places them back to back
package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/Resonate-Protocol/walkie/pkg/audio/output"
	"github.com/Resonate-Protocol/walkie/pkg/protocol"
	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

// DefaultLead is how far ahead of now a buffer is placed when the cursor
// has fallen behind
const DefaultLead = 50 * time.Millisecond

// DefaultQueueSize bounds frames waiting for the consumer
const DefaultQueueSize = 256

// ErrClosed is returned by Push after Close or Stop
var ErrClosed = errors.New("scheduler closed")

// Decoder turns a frame payload into samples. Codecs such as Opus carry
// state between packets, so Decode is called from one goroutine in push order.
type Decoder interface {
	Decode(data []byte) ([]int32, error)
}

// Config holds scheduler settings
type Config struct {
	Format    audio.Format
	Lead      time.Duration
	QueueSize int
	Clock     clock.Clock
}

// Stats tracks scheduler metrics
type Stats struct {
	Received     uint64
	Scheduled    uint64
	DecodeErrors uint64
	RenderErrors uint64
	Gaps         uint64 // times the cursor had fallen behind now + lead
	Pending      int64  // frames received but not yet scheduled
}

type result struct {
	samples []int32
	err     error
}

// unit is one entry of the decode queue. The decode worker delivers
// exactly one result for it.
type unit struct {
	data   []byte
	result chan result
}

// Scheduler places decoded frames on the output timeline
type Scheduler struct {
	decoder  Decoder
	renderer output.Renderer
	format   audio.Format
	lead     time.Duration
	clock    clock.Clock

	mu      sync.Mutex
	closed  bool
	queue   chan *unit
	decodes chan *unit

	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	decoderDone chan struct{}

	// cursor is only touched by the consumer goroutine
	cursor time.Time

	tapMu sync.RWMutex
	taps  []func(buf audio.Buffer, start time.Time)

	received     atomic.Uint64
	scheduled    atomic.Uint64
	decodeErrors atomic.Uint64
	renderErrors atomic.Uint64
	gaps         atomic.Uint64
	pending      atomic.Int64
}

// New creates a scheduler and starts its consumer
func New(decoder Decoder, renderer output.Renderer, config Config) *Scheduler {
	if config.Format == (audio.Format{}) {
		config.Format = audio.DefaultFormat
	}
	if config.Lead <= 0 {
		config.Lead = DefaultLead
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		decoder:  decoder,
		renderer: renderer,
		format:   config.Format,
		lead:     config.Lead,
		clock:    config.Clock,
		queue:    make(chan *unit, config.QueueSize),
		decodes:  make(chan *unit, config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),

		decoderDone: make(chan struct{}),
	}
	go s.decodeLoop()
	go s.run()
	return s
}

// OnScheduled registers a tap that sees every buffer with its start time
func (s *Scheduler) OnScheduled(fn func(buf audio.Buffer, start time.Time)) {
	s.tapMu.Lock()
	defer s.tapMu.Unlock()
	s.taps = append(s.taps, fn)
}

// Push appends a frame to the decode queue and hands it to the decoder.
// Push blocks while the queue is full.
func (s *Scheduler) Push(frame protocol.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	u := &unit{data: frame.Data, result: make(chan result, 1)}

	s.pending.Add(1)
	select {
	case s.queue <- u:
	case <-s.ctx.Done():
		s.pending.Add(-1)
		return ErrClosed
	}
	s.received.Add(1)

	select {
	case s.decodes <- u:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	}
}

// decodeLoop is the only caller of the decoder. It runs ahead of the
// consumer so decoding overlaps with scheduling.
func (s *Scheduler) decodeLoop() {
	defer close(s.decoderDone)

	for {
		select {
		case <-s.ctx.Done():
			return
		case u, ok := <-s.decodes:
			if !ok {
				return
			}
			samples, err := s.decoder.Decode(u.data)
			u.result <- result{samples: samples, err: err}
		}
	}
}

// run is the single consumer of the decode queue
func (s *Scheduler) run() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case u, ok := <-s.queue:
			if !ok {
				return
			}
			if !s.process(u) {
				return
			}
		}
	}
}

// process waits for u's decode and schedules it. It returns false when
// the scheduler was stopped while waiting.
func (s *Scheduler) process(u *unit) bool {
	defer s.pending.Add(-1)

	var r result
	select {
	case r = <-u.result:
	case <-s.ctx.Done():
		return false
	}

	if r.err != nil {
		s.decodeErrors.Add(1)
		log.Warn().Str("module", "playback").Err(r.err).Msg("decode failed, skipping frame")
		return true
	}
	if len(r.samples) == 0 {
		return true
	}

	buf := audio.Buffer{Samples: r.samples, Format: s.format}

	start := s.cursor
	if earliest := s.clock.Now().Add(s.lead); start.Before(earliest) {
		if !s.cursor.IsZero() {
			s.gaps.Add(1)
			log.Debug().Str("module", "playback").
				Dur("behind", earliest.Sub(s.cursor)).
				Msg("cursor behind, restarting ahead of now")
		}
		start = earliest
	}

	if err := s.renderer.Render(buf, start); err != nil {
		s.renderErrors.Add(1)
		log.Warn().Str("module", "playback").Err(err).Msg("render failed")
		return true
	}

	s.cursor = start.Add(buf.Duration())
	s.scheduled.Add(1)

	s.tapMu.RLock()
	taps := s.taps
	s.tapMu.RUnlock()
	for _, tap := range taps {
		tap(buf, start)
	}
	return true
}

// Close stops accepting frames and waits until queued frames are scheduled
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
		close(s.decodes)
	}
	s.mu.Unlock()

	<-s.done
	<-s.decoderDone
	s.cancel()
	return nil
}

// Stop abandons queued frames and returns once the consumer exited and
// the decoder is no longer in use
func (s *Scheduler) Stop() {
	s.cancel()

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
		close(s.decodes)
	}
	s.mu.Unlock()

	<-s.done
	<-s.decoderDone
	s.pending.Store(0)
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() Stats {
	return Stats{
		Received:     s.received.Load(),
		Scheduled:    s.scheduled.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		RenderErrors: s.renderErrors.Load(),
		Gaps:         s.gaps.Load(),
		Pending:      s.pending.Load(),
	}
}
