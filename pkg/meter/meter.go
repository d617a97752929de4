// ABOUTME: Periodic level sampling
// ABOUTME: Picks the live or playback source and reports without ever failing
package meter

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// DefaultInterval samples at roughly display refresh rate
const DefaultInterval = time.Second / 60

// Config holds meter settings
type Config struct {
	Interval time.Duration
	Clock    clock.Clock
}

// Meter samples a level source on a fixed cadence
type Meter struct {
	live         Source
	playback     Source
	transmitting func() bool
	onLevel      func(float64)
	clock        clock.Clock
	interval     time.Duration
}

// New creates a meter. The live source is read while transmitting
// reports true, the playback source otherwise.
func New(live, playback Source, transmitting func() bool, onLevel func(float64), config Config) *Meter {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	return &Meter{
		live:         live,
		playback:     playback,
		transmitting: transmitting,
		onLevel:      onLevel,
		clock:        config.Clock,
		interval:     config.Interval,
	}
}

// Run samples until ctx is done
func (m *Meter) Run(ctx context.Context) error {
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sample()
		}
	}
}

// Sample takes one reading and reports it
func (m *Meter) Sample() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "meter").Interface("panic", r).Msg("level sampling failed")
		}
	}()

	src := m.playback
	if m.transmitting != nil && m.transmitting() {
		src = m.live
	}

	var level float64
	if src != nil {
		if l, ok := src.Level(m.clock.Now()); ok {
			level = l
		}
	}
	m.onLevel(level)
}
