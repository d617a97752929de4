package server

import (
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/walkie/internal/config"
	"github.com/Resonate-Protocol/walkie/pkg/protocol"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	event   protocol.Event
	payload any
	frame   []byte
}

type fakePeer struct {
	id string

	mu           sync.Mutex
	sent         []sent
	full         bool
	disconnected bool
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) SendMessage(event protocol.Event, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return errQueueFull
	}
	p.sent = append(p.sent, sent{event: event, payload: payload})
	return nil
}

func (p *fakePeer) SendFrame(event protocol.Event, frame protocol.AudioFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return errQueueFull
	}
	p.sent = append(p.sent, sent{event: event, frame: frame.Data})
	return nil
}

func (p *fakePeer) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = true
}

func (p *fakePeer) isDisconnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnected
}

func (p *fakePeer) events() []protocol.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.Event, len(p.sent))
	for i, s := range p.sent {
		out[i] = s.event
	}
	return out
}

func (p *fakePeer) last() sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		return sent{}
	}
	return p.sent[len(p.sent)-1]
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = nil
}

func newTestArbiter(t *testing.T, relay string) (*Arbiter, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	a := NewArbiter(ArbiterConfig{
		Enabled: true,
		MaxHold: 30 * time.Second,
		Relay:   relay,
		Clock:   mock,
	})
	return a, mock
}

func joinAll(a *Arbiter, peers ...*fakePeer) {
	for _, p := range peers {
		a.Join(p)
	}
}

func TestArbiterGrant(t *testing.T) {
	a, _ := newTestArbiter(t, config.RelayStream)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	joinAll(a, alice, bob)

	a.Start(alice)

	assert.Equal(t, []protocol.Event{protocol.StartAccepted}, alice.events())
	assert.Equal(t, []protocol.Event{protocol.LockPTT}, bob.events())
	assert.Equal(t, protocol.Lock{Speaker: "alice"}, bob.last().payload)
	assert.Equal(t, "alice", a.Status().Holder)
}

func TestArbiterMutualExclusion(t *testing.T) {
	a, _ := newTestArbiter(t, config.RelayStream)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	joinAll(a, alice, bob)

	a.Start(alice)
	bob.reset()
	a.Start(bob)

	assert.Equal(t, []protocol.Event{protocol.StartDenied}, bob.events())
	assert.Equal(t, "alice", a.Status().Holder)
}

func TestArbiterRepeatStartFromHolder(t *testing.T) {
	a, _ := newTestArbiter(t, config.RelayStream)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	joinAll(a, alice, bob)

	a.Start(alice)
	a.Start(alice)

	assert.Equal(t, []protocol.Event{protocol.StartAccepted, protocol.StartAccepted}, alice.events())
	assert.Equal(t, []protocol.Event{protocol.LockPTT}, bob.events())
}

func TestArbiterDisabledDenies(t *testing.T) {
	a, _ := newTestArbiter(t, config.RelayStream)
	alice := newFakePeer("alice")
	a.Join(alice)
	a.SetEnabled(false)

	a.Start(alice)

	assert.Equal(t, []protocol.Event{protocol.StartDenied}, alice.events())
	assert.Empty(t, a.Status().Holder)
}

func TestArbiterStop(t *testing.T) {
	a, _ := newTestArbiter(t, config.RelayStream)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	joinAll(a, alice, bob)
	a.Start(alice)
	alice.reset()
	bob.reset()

	a.Stop(bob)
	assert.Equal(t, "alice", a.Status().Holder)
	assert.Empty(t, bob.events())

	a.Stop(alice)
	assert.Empty(t, a.Status().Holder)
	assert.Equal(t, []protocol.Event{protocol.UnlockPTT}, alice.events())
	assert.Equal(t, []protocol.Event{protocol.UnlockPTT}, bob.events())

	a.Start(bob)
	assert.Equal(t, "bob", a.Status().Holder)
}

func TestArbiterTimeout(t *testing.T) {
	a, mock := newTestArbiter(t, config.RelayStream)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	joinAll(a, alice, bob)
	a.Start(alice)

	mock.Add(29 * time.Second)
	assert.Equal(t, "alice", a.Status().Holder)

	mock.Add(time.Second)
	assert.Eventually(t, func() bool {
		return a.Status().Holder == ""
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, protocol.UnlockPTT, bob.last().event)
}

func TestArbiterStaleTimerIgnored(t *testing.T) {
	a, mock := newTestArbiter(t, config.RelayStream)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	joinAll(a, alice, bob)

	a.Start(alice)
	mock.Add(20 * time.Second)
	a.Stop(alice)
	a.Start(bob)

	// alice's original deadline passes, bob's does not
	mock.Add(15 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "bob", a.Status().Holder)
	assert.Equal(t, 15*time.Second, a.Status().HeldFor)
}

func TestArbiterStreamRelay(t *testing.T) {
	a, _ := newTestArbiter(t, config.RelayStream)
	alice, bob, carol := newFakePeer("alice"), newFakePeer("bob"), newFakePeer("carol")
	joinAll(a, alice, bob, carol)
	a.Start(alice)
	alice.reset()
	bob.reset()
	carol.reset()

	a.Audio(alice, protocol.AudioFrame{Data: []byte{1, 2, 3}})

	assert.Empty(t, alice.events())
	for _, p := range []*fakePeer{bob, carol} {
		require.Equal(t, []protocol.Event{protocol.PlayAudio}, p.events())
		assert.Equal(t, []byte{1, 2, 3}, p.last().frame)
	}
}

func TestArbiterDropsInvalidAudio(t *testing.T) {
	a, _ := newTestArbiter(t, config.RelayStream)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	joinAll(a, alice, bob)

	// nobody holds the floor
	a.Audio(alice, protocol.AudioFrame{Data: []byte{1}})
	assert.Empty(t, bob.events())

	a.Start(alice)
	alice.reset()
	bob.reset()

	a.Audio(bob, protocol.AudioFrame{Data: []byte{1}})
	a.Audio(alice, protocol.AudioFrame{})
	assert.Empty(t, alice.events())
	assert.Empty(t, bob.events())
}

func TestArbiterRelayQueueFull(t *testing.T) {
	a, _ := newTestArbiter(t, config.RelayStream)
	alice, bob, carol := newFakePeer("alice"), newFakePeer("bob"), newFakePeer("carol")
	joinAll(a, alice, bob, carol)
	a.Start(alice)
	carol.reset()
	bob.full = true

	a.Audio(alice, protocol.AudioFrame{Data: []byte{7}})

	assert.Equal(t, []protocol.Event{protocol.PlayAudio}, carol.events())
	assert.Equal(t, "alice", a.Status().Holder)
}

func TestArbiterDisconnectsPeerMissingControl(t *testing.T) {
	a, _ := newTestArbiter(t, config.RelayStream)
	alice, bob, carol := newFakePeer("alice"), newFakePeer("bob"), newFakePeer("carol")
	joinAll(a, alice, bob, carol)
	a.Start(alice)
	carol.reset()

	// bob's queue filled up with audio while alice was talking
	bob.mu.Lock()
	bob.full = true
	bob.mu.Unlock()
	a.Audio(alice, protocol.AudioFrame{Data: []byte{7}})
	assert.False(t, bob.isDisconnected(), "losing audio is tolerated")

	a.Stop(alice)

	assert.True(t, bob.isDisconnected())
	assert.NotContains(t, bob.events(), protocol.UnlockPTT)
	assert.False(t, carol.isDisconnected())
	assert.Equal(t, protocol.UnlockPTT, carol.last().event)
	assert.False(t, alice.isDisconnected())
}

func TestArbiterBufferedRelay(t *testing.T) {
	a, _ := newTestArbiter(t, config.RelayBuffered)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	joinAll(a, alice, bob)
	a.Start(alice)
	bob.reset()

	a.Audio(alice, protocol.AudioFrame{Data: []byte{1}})
	a.Audio(alice, protocol.AudioFrame{Data: []byte{2}})
	assert.Empty(t, bob.events())

	a.Stop(alice)

	assert.Equal(t, []protocol.Event{protocol.PlayAudio, protocol.PlayAudio, protocol.UnlockPTT}, bob.events())
	bob.mu.Lock()
	assert.Equal(t, []byte{1}, bob.sent[0].frame)
	assert.Equal(t, []byte{2}, bob.sent[1].frame)
	bob.mu.Unlock()
}

func TestArbiterHolderLeaves(t *testing.T) {
	a, _ := newTestArbiter(t, config.RelayStream)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	joinAll(a, alice, bob)
	a.Start(alice)
	bob.reset()

	a.Leave(alice)

	assert.Empty(t, a.Status().Holder)
	assert.Equal(t, 1, a.Status().Peers)
	assert.Equal(t, []protocol.Event{protocol.UnlockPTT}, bob.events())

	// leaving twice is harmless
	a.Leave(alice)
	assert.Equal(t, 1, a.Status().Peers)
}

func TestArbiterDisableWhileHeld(t *testing.T) {
	a, _ := newTestArbiter(t, config.RelayStream)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	joinAll(a, alice, bob)
	a.Start(alice)
	bob.reset()

	a.SetEnabled(false)

	status := a.Status()
	assert.False(t, status.Enabled)
	assert.Empty(t, status.Holder)
	assert.Equal(t, []protocol.Event{protocol.UnlockPTT}, bob.events())
}

func TestArbiterLateJoinerSeesLock(t *testing.T) {
	a, _ := newTestArbiter(t, config.RelayStream)
	alice, bob := newFakePeer("alice"), newFakePeer("bob")
	a.Join(alice)
	a.Start(alice)

	a.Join(bob)

	assert.Equal(t, []protocol.Event{protocol.LockPTT}, bob.events())
	assert.Equal(t, protocol.Lock{Speaker: "alice"}, bob.last().payload)
}

func TestArbiterOnChange(t *testing.T) {
	a, _ := newTestArbiter(t, config.RelayStream)
	var calls int
	var mu sync.Mutex
	a.OnChange(func() {
		mu.Lock()
		calls++
		mu.Unlock()
		// reentrant reads must not deadlock
		_ = a.Status()
	})

	alice := newFakePeer("alice")
	a.Join(alice)
	a.Start(alice)
	a.Stop(alice)
	a.Leave(alice)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 4, calls)
}
