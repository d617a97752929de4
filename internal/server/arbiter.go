// ABOUTME: Floor arbitration for the walkie server
// ABOUTME: Grants the talk floor to one client at a time and relays its audio
package server

import (
	"sync"
	"time"

	"github.com/Resonate-Protocol/walkie/internal/config"
	"github.com/Resonate-Protocol/walkie/internal/metrics"
	"github.com/Resonate-Protocol/walkie/pkg/protocol"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// Peer is a connected client as the arbiter sees it. Sends must not block.
// Disconnect must not block either; the peer leaves once its reader exits.
type Peer interface {
	ID() string
	SendMessage(event protocol.Event, payload any) error
	SendFrame(event protocol.Event, frame protocol.AudioFrame) error
	Disconnect()
}

// ArbiterConfig holds floor-control settings
type ArbiterConfig struct {
	Enabled bool
	MaxHold time.Duration
	Relay   string // config.RelayStream or config.RelayBuffered
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// FloorStatus is a snapshot of the arbiter
type FloorStatus struct {
	Enabled bool
	Relay   string
	Holder  string
	HeldFor time.Duration
	Peers   int
}

// Arbiter owns the floor. Every outbound message is queued while holding
// the lock, so all peers observe grants, audio and releases in one order.
type Arbiter struct {
	clock   clock.Clock
	maxHold time.Duration
	relay   string
	metrics *metrics.Metrics

	mu       sync.Mutex
	enabled  bool
	peers    map[Peer]struct{}
	holder   Peer
	since    time.Time
	term     uint64
	timer    *clock.Timer
	buffered []protocol.AudioFrame

	onChange func()
}

// NewArbiter creates an arbiter with no peers
func NewArbiter(cfg ArbiterConfig) *Arbiter {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.MaxHold <= 0 {
		cfg.MaxHold = 30 * time.Second
	}
	if cfg.Relay == "" {
		cfg.Relay = config.RelayStream
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}
	cfg.Metrics.SetEnabled(cfg.Enabled)

	return &Arbiter{
		clock:   cfg.Clock,
		maxHold: cfg.MaxHold,
		relay:   cfg.Relay,
		metrics: cfg.Metrics,
		enabled: cfg.Enabled,
		peers:   make(map[Peer]struct{}),
	}
}

// OnChange registers a callback run after any floor or membership change.
// It runs outside the arbiter lock.
func (a *Arbiter) OnChange(fn func()) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// Join adds a peer. A late joiner is told who holds the floor.
func (a *Arbiter) Join(p Peer) {
	a.mu.Lock()
	a.peers[p] = struct{}{}
	a.metrics.Clients.Set(float64(len(a.peers)))
	if a.holder != nil {
		a.send(p, protocol.LockPTT, protocol.Lock{Speaker: a.holder.ID()})
	}
	a.mu.Unlock()

	a.changed()
}

// Leave removes a peer, releasing the floor if it was the holder
func (a *Arbiter) Leave(p Peer) {
	a.mu.Lock()
	if _, ok := a.peers[p]; !ok {
		a.mu.Unlock()
		return
	}
	delete(a.peers, p)
	a.metrics.Clients.Set(float64(len(a.peers)))
	if a.holder == p {
		a.release(metrics.ReleaseDisconnect)
	}
	a.mu.Unlock()

	a.changed()
}

// Start handles start_speaking
func (a *Arbiter) Start(p Peer) {
	a.mu.Lock()
	switch {
	case !a.enabled:
		a.metrics.Denials.Inc()
		a.send(p, protocol.StartDenied, nil)
		log.Info().Str("module", "arbiter").Str("client", p.ID()).Msg("denied: push-to-talk disabled")

	case a.holder == p:
		a.send(p, protocol.StartAccepted, nil)

	case a.holder != nil:
		a.metrics.Denials.Inc()
		a.send(p, protocol.StartDenied, nil)
		log.Info().Str("module", "arbiter").
			Str("client", p.ID()).
			Str("holder", a.holder.ID()).
			Msg("denied: floor busy")

	default:
		a.grant(p)
	}
	a.mu.Unlock()

	a.changed()
}

// Stop handles stop_speaking. Only the holder can release.
func (a *Arbiter) Stop(p Peer) {
	a.mu.Lock()
	if a.holder != p {
		a.mu.Unlock()
		log.Debug().Str("module", "arbiter").Str("client", p.ID()).Msg("ignoring stop from non-holder")
		return
	}
	a.release(metrics.ReleaseStop)
	a.mu.Unlock()

	a.changed()
}

// Audio handles an audio_chunk from p
func (a *Arbiter) Audio(p Peer, frame protocol.AudioFrame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(frame.Data) == 0 {
		a.metrics.FramesDropped.WithLabelValues(metrics.DropEmpty).Inc()
		log.Warn().Str("module", "arbiter").Str("client", p.ID()).Msg("dropping empty audio frame")
		return
	}
	if a.holder != p {
		a.metrics.FramesDropped.WithLabelValues(metrics.DropNotHolder).Inc()
		log.Warn().Str("module", "arbiter").Str("client", p.ID()).Msg("dropping audio from non-holder")
		return
	}

	if a.relay == config.RelayBuffered {
		a.buffered = append(a.buffered, frame)
		return
	}
	a.broadcastFrame(p, frame)
}

// SetEnabled turns push-to-talk on or off. Disabling clears the holder.
func (a *Arbiter) SetEnabled(enabled bool) {
	a.mu.Lock()
	if a.enabled == enabled {
		a.mu.Unlock()
		return
	}
	a.enabled = enabled
	a.metrics.SetEnabled(enabled)
	if !enabled && a.holder != nil {
		a.release(metrics.ReleaseDisabled)
	}
	a.mu.Unlock()

	log.Info().Str("module", "arbiter").Bool("enabled", enabled).Msg("push-to-talk switched")
	a.changed()
}

// Status returns a snapshot of the floor
func (a *Arbiter) Status() FloorStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := FloorStatus{
		Enabled: a.enabled,
		Relay:   a.relay,
		Peers:   len(a.peers),
	}
	if a.holder != nil {
		status.Holder = a.holder.ID()
		status.HeldFor = a.clock.Since(a.since)
	}
	return status
}

// grant must be called with mu held
func (a *Arbiter) grant(p Peer) {
	a.holder = p
	a.since = a.clock.Now()
	a.term++
	a.buffered = nil

	term := a.term
	a.timer = a.clock.AfterFunc(a.maxHold, func() { a.expire(term) })

	a.metrics.Grants.Inc()
	a.send(p, protocol.StartAccepted, nil)
	for other := range a.peers {
		if other != p {
			a.send(other, protocol.LockPTT, protocol.Lock{Speaker: p.ID()})
		}
	}

	log.Info().Str("module", "arbiter").Str("holder", p.ID()).Msg("floor granted")
}

func (a *Arbiter) expire(term uint64) {
	a.mu.Lock()
	if a.holder == nil || a.term != term {
		a.mu.Unlock()
		return
	}
	log.Info().Str("module", "arbiter").
		Str("holder", a.holder.ID()).
		Dur("max_hold", a.maxHold).
		Msg("floor held too long, releasing")
	a.release(metrics.ReleaseTimeout)
	a.mu.Unlock()

	a.changed()
}

// release must be called with mu held and a holder present
func (a *Arbiter) release(reason string) {
	holder := a.holder

	for _, frame := range a.buffered {
		a.broadcastFrame(holder, frame)
	}
	a.buffered = nil

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	held := a.clock.Since(a.since)
	a.holder = nil
	a.term++

	a.metrics.Releases.WithLabelValues(reason).Inc()
	a.metrics.HoldSeconds.Observe(held.Seconds())

	for p := range a.peers {
		a.send(p, protocol.UnlockPTT, nil)
	}

	log.Info().Str("module", "arbiter").
		Str("holder", holder.ID()).
		Str("reason", reason).
		Dur("held", held).
		Msg("floor released")
}

func (a *Arbiter) broadcastFrame(from Peer, frame protocol.AudioFrame) {
	for p := range a.peers {
		if p == from {
			continue
		}
		if err := p.SendFrame(protocol.PlayAudio, frame); err != nil {
			a.metrics.FramesDropped.WithLabelValues(metrics.DropQueueFull).Inc()
			log.Warn().Str("module", "arbiter").Str("client", p.ID()).Err(err).Msg("failed to relay audio")
			continue
		}
		a.metrics.FramesRelayed.Inc()
		a.metrics.BytesRelayed.Add(float64(len(frame.Data)))
	}
}

// send queues a control message. A peer that misses one would hold a stale
// floor state, so it is dropped and resyncs when it reconnects.
func (a *Arbiter) send(p Peer, event protocol.Event, payload any) {
	if err := p.SendMessage(event, payload); err != nil {
		log.Warn().Str("module", "arbiter").
			Str("client", p.ID()).
			Str("event", string(event)).
			Err(err).
			Msg("failed to send, disconnecting client")
		p.Disconnect()
	}
}

func (a *Arbiter) changed() {
	a.mu.Lock()
	fn := a.onChange
	a.mu.Unlock()
	if fn != nil {
		fn()
	}
}
