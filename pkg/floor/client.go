// ABOUTME: Floor-control state machine
// ABOUTME: Serializes local intent and arbiter events, owns the transmission session
package floor

import (
	"sync"
	"time"

	"github.com/Resonate-Protocol/walkie/pkg/protocol"
	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

// DefaultMaxDuration is the ceiling on one transmission
const DefaultMaxDuration = 30 * time.Second

// ErrLocked is returned by Press while another client holds the floor
var ErrLocked = errors.New("floor is locked by another speaker")

// Emitter sends control events to the arbiter
type Emitter interface {
	Emit(event protocol.Event, payload any) error
}

// Capture is the microphone pipeline started while the floor is held.
// Both methods must be idempotent and End must stop frame production
// before it returns.
type Capture interface {
	Begin() error
	End()
}

// Config holds floor client settings
type Config struct {
	MaxDuration time.Duration
	Clock       clock.Clock
}

// session is the live transmission. Its identity is its pointer, which
// lets a late timer callback recognize it has been superseded.
type session struct {
	start time.Time
	max   time.Duration
	timer *clock.Timer
}

// Client is the floor-control state machine
type Client struct {
	emitter     Emitter
	capture     Capture
	clock       clock.Clock
	maxDuration time.Duration

	mu       sync.Mutex
	state    State
	session  *session
	speaker  string
	identity string

	observersMu sync.RWMutex
	observers   []func(Change)
}

// New creates a floor client in the Idle state
func New(emitter Emitter, capture Capture, config Config) *Client {
	if config.MaxDuration <= 0 {
		config.MaxDuration = DefaultMaxDuration
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	return &Client{
		emitter:     emitter,
		capture:     capture,
		clock:       config.Clock,
		maxDuration: config.MaxDuration,
	}
}

// OnStateChange registers an observer. Observers run after the transition
// completes, outside the client's lock, and may call back into the client.
func (c *Client) OnStateChange(fn func(Change)) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns the current floor state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Speaker returns the remote speaker while Locked
func (c *Client) Speaker() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaker
}

// Session returns the active transmission, if any
func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return Session{Start: c.session.start, MaxDuration: c.session.max}, true
}

// SetIdentity records the id the arbiter assigned to this client
func (c *Client) SetIdentity(id string) {
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
	log.Debug().Str("module", "floor").Str("id", id).Msg("identity set")
}

// Identity returns the id the arbiter assigned to this client
func (c *Client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Press asks the arbiter for the floor. Only Idle reacts; pressing while a
// request is pending or the floor is held does nothing.
func (c *Client) Press() error {
	c.mu.Lock()
	switch c.state {
	case Locked:
		c.mu.Unlock()
		return ErrLocked
	case RequestPending, Granted:
		c.mu.Unlock()
		return nil
	}

	if err := c.emitter.Emit(protocol.StartSpeaking, nil); err != nil {
		c.mu.Unlock()
		return errors.Wrap(err, "failed to request floor")
	}
	change := c.transition(RequestPending, ReasonPress)
	c.mu.Unlock()

	c.notify(change)
	return nil
}

// Release gives up the floor or cancels a pending request
func (c *Client) Release() error {
	c.mu.Lock()
	if c.state != Granted && c.state != RequestPending {
		c.mu.Unlock()
		return nil
	}

	c.endSession()
	err := c.emitter.Emit(protocol.StopSpeaking, nil)
	change := c.transition(Idle, ReasonRelease)
	c.mu.Unlock()

	c.notify(change)
	return errors.Wrap(err, "failed to announce release")
}

// HandleGrant processes start_accepted
func (c *Client) HandleGrant() {
	c.mu.Lock()
	if c.state != RequestPending {
		state := c.state
		c.mu.Unlock()
		log.Debug().Str("module", "floor").Stringer("state", state).Msg("ignoring grant")
		return
	}

	s := &session{start: c.clock.Now(), max: c.maxDuration}
	s.timer = c.clock.AfterFunc(s.max, func() { c.expire(s) })
	c.session = s

	if err := c.capture.Begin(); err != nil {
		log.Error().Str("module", "floor").Err(err).Msg("capture failed to start, holding floor without audio")
	}
	change := c.transition(Granted, ReasonGrant)
	c.mu.Unlock()

	c.notify(change)
}

// HandleDenial processes start_denied
func (c *Client) HandleDenial() {
	c.mu.Lock()
	if c.state != RequestPending {
		c.mu.Unlock()
		return
	}
	change := c.transition(Idle, ReasonDenied)
	c.mu.Unlock()

	c.notify(change)
}

// HandleLock processes lock_ptt naming the current speaker
func (c *Client) HandleLock(speaker string) {
	c.mu.Lock()
	if speaker != "" && speaker == c.identity {
		c.mu.Unlock()
		return
	}

	if c.state == Granted {
		log.Warn().Str("module", "floor").Str("speaker", speaker).Msg("floor taken while transmitting")
	}
	c.endSession()
	c.speaker = speaker
	change := c.transition(Locked, ReasonLocked)
	c.mu.Unlock()

	c.notify(change)
}

// HandleUnlock processes unlock_ptt. While Granted it means the arbiter
// released this client's floor.
func (c *Client) HandleUnlock() {
	c.mu.Lock()
	var reason Reason
	switch c.state {
	case Locked:
		reason = ReasonUnlocked
	case Granted:
		reason = ReasonRevoked
		c.endSession()
	default:
		c.mu.Unlock()
		return
	}
	change := c.transition(Idle, reason)
	c.mu.Unlock()

	c.notify(change)
}

// HandleDisconnect forces Idle after the transport is lost
func (c *Client) HandleDisconnect() {
	c.mu.Lock()
	c.endSession()
	if c.state == Idle {
		c.mu.Unlock()
		return
	}
	change := c.transition(Idle, ReasonDisconnect)
	c.mu.Unlock()

	c.notify(change)
}

// expire releases the floor when s reaches its ceiling
func (c *Client) expire(s *session) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}

	log.Info().Str("module", "floor").Dur("held", c.clock.Since(s.start)).Msg("transmission timed out")
	c.endSession()
	if err := c.emitter.Emit(protocol.StopSpeaking, nil); err != nil {
		log.Warn().Str("module", "floor").Err(err).Msg("failed to announce timeout release")
	}
	change := c.transition(Idle, ReasonTimeout)
	c.mu.Unlock()

	c.notify(change)
}

// endSession stops capture and the timer. Caller holds c.mu.
func (c *Client) endSession() {
	if c.session == nil {
		return
	}
	c.session.timer.Stop()
	c.session = nil
	c.capture.End()
}

// transition sets the new state. Caller holds c.mu.
func (c *Client) transition(to State, reason Reason) Change {
	change := Change{From: c.state, To: to, Reason: reason}
	c.state = to
	if to == Locked {
		change.Speaker = c.speaker
	} else {
		c.speaker = ""
	}

	log.Info().Str("module", "floor").
		Stringer("from", change.From).
		Stringer("to", change.To).
		Str("reason", string(reason)).
		Msg("floor state changed")
	return change
}

func (c *Client) notify(change Change) {
	c.observersMu.RLock()
	observers := c.observers
	c.observersMu.RUnlock()

	for _, fn := range observers {
		fn(change)
	}
}
