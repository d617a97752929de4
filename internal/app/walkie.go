// ABOUTME: Main walkie client application orchestration
// ABOUTME: Wires transport, floor control, capture, playback, meter and UI
package app

import (
	"context"
	"sync"
	"time"

	"github.com/Resonate-Protocol/walkie/internal/discovery"
	"github.com/Resonate-Protocol/walkie/internal/ui"
	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/Resonate-Protocol/walkie/pkg/audio/decode"
	"github.com/Resonate-Protocol/walkie/pkg/audio/output"
	"github.com/Resonate-Protocol/walkie/pkg/capture"
	"github.com/Resonate-Protocol/walkie/pkg/floor"
	"github.com/Resonate-Protocol/walkie/pkg/meter"
	"github.com/Resonate-Protocol/walkie/pkg/playback"
	"github.com/Resonate-Protocol/walkie/pkg/protocol"
	"github.com/Resonate-Protocol/walkie/pkg/transport"
	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	statusInterval          = 500 * time.Millisecond
	defaultDiscoveryTimeout = 10 * time.Second
)

// ErrDisconnected is returned by Run when the server goes away
var ErrDisconnected = errors.New("connection to server lost")

var errQuit = errors.New("quit requested")

// Sink is the audio output voice is played on
type Sink interface {
	output.Output
	SetVolume(volume int)
	SetMuted(muted bool)
}

// Config holds client configuration
type Config struct {
	ServerAddr       string // empty means discover over mDNS
	ClientID         string
	Format           audio.Format
	Lead             time.Duration
	Interval         time.Duration
	MaxHold          time.Duration
	Volume           int
	UseTUI           bool
	DiscoveryTimeout time.Duration

	Microphone capture.Microphone
	Sink       Sink
	Clock      clock.Clock
}

// Walkie is the client application
type Walkie struct {
	config Config
	clock  clock.Clock

	transport *transport.Client
	floor     *floor.Client
	capture   *capture.Capture
	scheduler *playback.Scheduler
	decoder   decode.Decoder
	live      *meter.Live
	heard     *meter.Playback
	meter     *meter.Meter

	controls *ui.Controls
	tuiProg  *tea.Program
	ready    chan struct{}

	mu        sync.Mutex
	server    string
	clientID  string
	connected bool
}

// New creates a client; nothing is opened until Run
func New(config Config) *Walkie {
	if config.Format == (audio.Format{}) {
		config.Format = audio.DefaultFormat
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.DiscoveryTimeout <= 0 {
		config.DiscoveryTimeout = defaultDiscoveryTimeout
	}

	return &Walkie{
		config:   config,
		clock:    config.Clock,
		controls: ui.NewControls(),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once Run has connected and the controls can be used
func (w *Walkie) Ready() <-chan struct{} {
	return w.ready
}

// Run connects and serves until ctx ends, the user quits or the
// connection drops
func (w *Walkie) Run(ctx context.Context) error {
	if w.config.Microphone == nil || w.config.Sink == nil {
		return errors.New("microphone and sink are required")
	}

	addr, path, err := w.resolveServer(ctx)
	if err != nil {
		return err
	}

	if err := w.setup(addr, path); err != nil {
		w.teardown()
		return err
	}
	defer w.teardown()

	if err := w.transport.Dial(ctx); err != nil {
		return errors.Wrap(err, "connection failed")
	}
	w.mu.Lock()
	w.connected = true
	w.mu.Unlock()
	log.Info().Str("module", "app").Str("server", addr).Msg("connected to server")
	close(w.ready)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.meter.Run(gctx) })
	g.Go(func() error { return w.statusLoop(gctx) })
	g.Go(func() error { return w.controlLoop(gctx) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-w.transport.Done():
			return ErrDisconnected
		}
	})
	if w.tuiProg != nil {
		g.Go(func() error {
			if _, err := w.tuiProg.Run(); err != nil {
				return errors.Wrap(err, "TUI failed")
			}
			return errQuit
		})
		g.Go(func() error {
			<-gctx.Done()
			w.tuiProg.Quit()
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

// resolveServer returns the configured address or discovers one
func (w *Walkie) resolveServer(ctx context.Context) (string, string, error) {
	if w.config.ServerAddr != "" {
		return w.config.ServerAddr, "", nil
	}

	log.Info().Str("module", "app").Msg("no server given, browsing mDNS")
	ctx, cancel := context.WithTimeout(ctx, w.config.DiscoveryTimeout)
	defer cancel()

	info, err := discovery.NewManager(discovery.Config{}).Find(ctx)
	if err != nil {
		return "", "", errors.Wrap(err, "server discovery failed")
	}
	return info.Addr(), info.Path, nil
}

// setup builds the pipeline; nothing here touches the network
func (w *Walkie) setup(addr, path string) error {
	w.mu.Lock()
	w.server = addr
	w.mu.Unlock()

	if err := w.config.Sink.Open(w.config.Format); err != nil {
		return errors.Wrap(err, "failed to open audio output")
	}
	w.config.Sink.SetVolume(w.config.Volume)

	dec, err := decode.New(w.config.Format)
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	w.decoder = dec

	w.scheduler = playback.New(dec, w.config.Sink, playback.Config{
		Format: w.config.Format,
		Lead:   w.config.Lead,
		Clock:  w.clock,
	})

	w.transport = transport.New(transport.Config{
		ServerAddr: addr,
		ClientID:   w.config.ClientID,
		Path:       path,
	})

	w.live = meter.NewLive(w.clock)
	w.heard = meter.NewPlayback()
	w.scheduler.OnScheduled(w.heard.Track)

	w.capture, err = capture.New(w.config.Microphone, w.transport, capture.Config{
		Format:   w.config.Format,
		Interval: w.config.Interval,
		Clock:    w.clock,
		OnChunk:  w.live.Publish,
	})
	if err != nil {
		return err
	}

	w.floor = floor.New(w.transport, w.capture, floor.Config{
		MaxDuration: w.config.MaxHold,
		Clock:       w.clock,
	})
	w.floor.OnStateChange(w.onFloorChange)

	w.meter = meter.New(w.live, w.heard, func() bool {
		return w.floor.State() == floor.Granted
	}, w.publishLevel, meter.Config{Clock: w.clock})

	if w.config.UseTUI {
		prog, err := ui.Run(w.config.Volume, w.controls)
		if err != nil {
			return errors.Wrap(err, "failed to start TUI")
		}
		w.tuiProg = prog
	}

	w.subscribe()
	return nil
}

// subscribe routes arbiter events to the floor and the scheduler
func (w *Walkie) subscribe() {
	t := w.transport

	t.On(protocol.YourID, func(msg protocol.Message) {
		var identity protocol.Identity
		if err := msg.Decode(&identity); err != nil {
			log.Warn().Str("module", "app").Err(err).Msg("bad identity")
			return
		}
		w.mu.Lock()
		w.clientID = identity.ID
		w.mu.Unlock()
		w.floor.SetIdentity(identity.ID)
		log.Info().Str("module", "app").Str("id", identity.ID).Msg("identity assigned")
	})
	t.On(protocol.StartAccepted, func(protocol.Message) { w.floor.HandleGrant() })
	t.On(protocol.StartDenied, func(protocol.Message) { w.floor.HandleDenial() })
	t.On(protocol.LockPTT, func(msg protocol.Message) {
		var lock protocol.Lock
		if err := msg.Decode(&lock); err != nil {
			log.Warn().Str("module", "app").Err(err).Msg("bad lock")
			return
		}
		w.floor.HandleLock(lock.Speaker)
	})
	t.On(protocol.UnlockPTT, func(protocol.Message) { w.floor.HandleUnlock() })

	t.OnFrame(protocol.PlayAudio, func(frame protocol.AudioFrame) {
		if err := w.scheduler.Push(frame); err != nil {
			log.Debug().Str("module", "app").Err(err).Msg("frame not scheduled")
		}
	})

	t.OnDisconnect(func(err error) {
		w.mu.Lock()
		w.connected = false
		w.mu.Unlock()
		w.floor.HandleDisconnect()
		if err != nil {
			log.Warn().Str("module", "app").Err(err).Msg("disconnected from server")
		}
		w.publishStatus()
	})
}

// Talk presses when idle and releases when requesting or talking
func (w *Walkie) Talk() error {
	switch w.floor.State() {
	case floor.RequestPending, floor.Granted:
		return w.floor.Release()
	default:
		return w.floor.Press()
	}
}

// SetVolume changes playback volume
func (w *Walkie) SetVolume(volume int, muted bool) {
	w.config.Sink.SetVolume(volume)
	w.config.Sink.SetMuted(muted)
}

// Status returns a snapshot for display
func (w *Walkie) Status() ui.StatusMsg {
	w.mu.Lock()
	status := ui.StatusMsg{
		Connected: w.connected,
		Server:    w.server,
		ClientID:  w.clientID,
	}
	w.mu.Unlock()

	status.State = w.floor.State()
	status.Speaker = w.floor.Speaker()
	status.Stats = w.scheduler.Stats()
	status.FramesSent = w.capture.Emitted()
	if session, ok := w.floor.Session(); ok {
		status.Remaining = max(session.Deadline().Sub(w.clock.Now()), 0)
	}
	return status
}

func (w *Walkie) onFloorChange(change floor.Change) {
	event := log.Info().Str("module", "app").
		Stringer("from", change.From).
		Stringer("to", change.To).
		Str("reason", string(change.Reason))
	if change.Speaker != "" {
		event = event.Str("speaker", change.Speaker)
	}
	event.Msg("floor changed")

	w.publishStatus()
}

func (w *Walkie) publishStatus() {
	if w.tuiProg != nil {
		w.tuiProg.Send(w.Status())
	}
}

func (w *Walkie) publishLevel(level float64) {
	if w.tuiProg != nil {
		w.tuiProg.Send(ui.LevelMsg(level))
	}
}

func (w *Walkie) statusLoop(ctx context.Context) error {
	ticker := w.clock.Ticker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.publishStatus()
		}
	}
}

// controlLoop applies user intent coming from the TUI
func (w *Walkie) controlLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.controls.Talk:
			if err := w.Talk(); err != nil {
				log.Info().Str("module", "app").Err(err).Msg("talk refused")
				if w.tuiProg != nil {
					w.tuiProg.Send(ui.NoticeMsg(err.Error()))
				}
			}

		case v := <-w.controls.Volume:
			w.SetVolume(v.Volume, v.Muted)

		case <-w.controls.Quit:
			return errQuit
		}
	}
}

// teardown releases everything setup created
func (w *Walkie) teardown() {
	if w.floor != nil {
		if err := w.floor.Release(); err != nil {
			log.Debug().Str("module", "app").Err(err).Msg("release on shutdown failed")
		}
	}
	if w.capture != nil {
		if err := w.capture.Close(); err != nil {
			log.Warn().Str("module", "app").Err(err).Msg("capture close failed")
		}
	}
	if w.transport != nil {
		w.transport.Close()
	}
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
	if w.decoder != nil {
		w.decoder.Close()
	}
	if err := w.config.Sink.Close(); err != nil {
		log.Warn().Str("module", "app").Err(err).Msg("audio output close failed")
	}
}
