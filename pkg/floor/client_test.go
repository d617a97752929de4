// ABOUTME: Tests for the floor-control state machine
// ABOUTME: Covers grant, denial, lock, timeout and capture lifecycle against fakes
package floor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/walkie/pkg/protocol"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmitter struct {
	mu     sync.Mutex
	events []protocol.Event
	err    error
}

func (e *fakeEmitter) Emit(event protocol.Event, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, event)
	return nil
}

func (e *fakeEmitter) Events() []protocol.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.Event(nil), e.events...)
}

type fakeCapture struct {
	mu     sync.Mutex
	active bool
	begins int
	ends   int
	err    error
}

func (c *fakeCapture) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.begins++
	if c.err != nil {
		return c.err
	}
	c.active = true
	return nil
}

func (c *fakeCapture) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ends++
	c.active = false
}

func (c *fakeCapture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func newTestClient() (*Client, *fakeEmitter, *fakeCapture, *clock.Mock) {
	em := &fakeEmitter{}
	capt := &fakeCapture{}
	clk := clock.NewMock()
	return New(em, capt, Config{Clock: clk}), em, capt, clk
}

func grant(t *testing.T, c *Client) {
	t.Helper()
	require.NoError(t, c.Press())
	c.HandleGrant()
	require.Equal(t, Granted, c.State())
}

func TestPressRequestsFloorWithoutCapture(t *testing.T) {
	c, em, capt, _ := newTestClient()

	require.NoError(t, c.Press())

	assert.Equal(t, RequestPending, c.State())
	assert.Equal(t, []protocol.Event{protocol.StartSpeaking}, em.Events())
	assert.False(t, capt.Active())
}

func TestPressIsIgnoredWhilePendingOrGranted(t *testing.T) {
	c, em, _, _ := newTestClient()

	require.NoError(t, c.Press())
	require.NoError(t, c.Press())
	c.HandleGrant()
	require.NoError(t, c.Press())

	assert.Equal(t, []protocol.Event{protocol.StartSpeaking}, em.Events())
}

func TestPressFailsWhenEmitFails(t *testing.T) {
	c, em, _, _ := newTestClient()
	em.err = errors.New("socket gone")

	assert.Error(t, c.Press())
	assert.Equal(t, Idle, c.State())
}

func TestGrantStartsSession(t *testing.T) {
	c, _, capt, clk := newTestClient()

	grant(t, c)

	assert.True(t, capt.Active())
	s, ok := c.Session()
	require.True(t, ok)
	assert.Equal(t, clk.Now(), s.Start)
	assert.Equal(t, DefaultMaxDuration, s.MaxDuration)
	assert.Equal(t, clk.Now().Add(30*time.Second), s.Deadline())
}

func TestDenialIsNoOp(t *testing.T) {
	c, em, capt, _ := newTestClient()

	require.NoError(t, c.Press())
	c.HandleDenial()

	assert.Equal(t, Idle, c.State())
	assert.Equal(t, []protocol.Event{protocol.StartSpeaking}, em.Events())
	assert.Zero(t, capt.begins)
	assert.Zero(t, capt.ends)
	_, ok := c.Session()
	assert.False(t, ok)
}

func TestReleaseEndsSession(t *testing.T) {
	c, em, capt, _ := newTestClient()
	grant(t, c)

	require.NoError(t, c.Release())

	assert.Equal(t, Idle, c.State())
	assert.False(t, capt.Active())
	assert.Equal(t, []protocol.Event{protocol.StartSpeaking, protocol.StopSpeaking}, em.Events())
	_, ok := c.Session()
	assert.False(t, ok)
}

func TestReleaseWhilePendingCancelsRequest(t *testing.T) {
	c, em, capt, _ := newTestClient()

	require.NoError(t, c.Press())
	require.NoError(t, c.Release())
	c.HandleGrant()

	assert.Equal(t, Idle, c.State())
	assert.Equal(t, []protocol.Event{protocol.StartSpeaking, protocol.StopSpeaking}, em.Events())
	assert.Zero(t, capt.begins)
}

func TestReleaseWhenIdleDoesNothing(t *testing.T) {
	c, em, _, _ := newTestClient()
	require.NoError(t, c.Release())
	assert.Empty(t, em.Events())
}

func TestBoundedOccupancy(t *testing.T) {
	c, em, capt, clk := newTestClient()
	grant(t, c)

	clk.Add(29 * time.Second)
	assert.Equal(t, Granted, c.State())

	clk.Add(time.Second)
	assert.Eventually(t, func() bool { return c.State() == Idle }, time.Second, time.Millisecond)
	assert.False(t, capt.Active())
	assert.Equal(t, []protocol.Event{protocol.StartSpeaking, protocol.StopSpeaking}, em.Events())
}

func TestConfigurableCeiling(t *testing.T) {
	clk := clock.NewMock()
	c := New(&fakeEmitter{}, &fakeCapture{}, Config{Clock: clk, MaxDuration: 5 * time.Second})
	grant(t, c)

	clk.Add(5 * time.Second)
	assert.Eventually(t, func() bool { return c.State() == Idle }, time.Second, time.Millisecond)
}

func TestStaleTimerIsIgnored(t *testing.T) {
	c, _, _, clk := newTestClient()
	grant(t, c)
	first, _ := c.Session()

	require.NoError(t, c.Release())
	clk.Add(20 * time.Second)
	grant(t, c)

	// the first session's deadline passes, the second must survive it
	clk.Add(15 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, Granted, c.State())

	second, _ := c.Session()
	assert.True(t, second.Start.After(first.Start))

	clk.Add(15 * time.Second)
	assert.Eventually(t, func() bool { return c.State() == Idle }, time.Second, time.Millisecond)
}

func TestExpireIgnoresSupersededSession(t *testing.T) {
	c, em, _, _ := newTestClient()
	grant(t, c)
	stale := &session{}

	c.expire(stale)

	assert.Equal(t, Granted, c.State())
	assert.Len(t, em.Events(), 1)
}

func TestLockFromEveryState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, c *Client)
	}{
		{"idle", func(t *testing.T, c *Client) {}},
		{"pending", func(t *testing.T, c *Client) { require.NoError(t, c.Press()) }},
		{"granted", func(t *testing.T, c *Client) { grant(t, c) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, capt, _ := newTestClient()
			tt.setup(t, c)

			c.HandleLock("bob")

			assert.Equal(t, Locked, c.State())
			assert.Equal(t, "bob", c.Speaker())
			assert.False(t, capt.Active())
			_, ok := c.Session()
			assert.False(t, ok)
		})
	}
}

func TestLockedDisablesTalk(t *testing.T) {
	c, em, _, _ := newTestClient()
	c.HandleLock("bob")

	assert.ErrorIs(t, c.Press(), ErrLocked)
	c.HandleGrant()

	assert.Equal(t, Locked, c.State())
	assert.Empty(t, em.Events())
}

func TestUnlockReturnsToIdle(t *testing.T) {
	c, _, _, _ := newTestClient()
	c.HandleLock("bob")
	c.HandleUnlock()

	assert.Equal(t, Idle, c.State())
	assert.Empty(t, c.Speaker())
	require.NoError(t, c.Press())
	assert.Equal(t, RequestPending, c.State())
}

func TestUnlockWhileGrantedIsRevocation(t *testing.T) {
	c, em, capt, _ := newTestClient()
	grant(t, c)

	var changes []Change
	c.OnStateChange(func(ch Change) { changes = append(changes, ch) })
	c.HandleUnlock()

	assert.Equal(t, Idle, c.State())
	assert.False(t, capt.Active())
	assert.Equal(t, []protocol.Event{protocol.StartSpeaking}, em.Events())
	require.Len(t, changes, 1)
	assert.Equal(t, ReasonRevoked, changes[0].Reason)
}

func TestLockNamingSelfIsIgnored(t *testing.T) {
	c, _, capt, _ := newTestClient()
	c.SetIdentity("me")
	grant(t, c)

	c.HandleLock("me")

	assert.Equal(t, Granted, c.State())
	assert.True(t, capt.Active())
	assert.Equal(t, "me", c.Identity())
}

func TestDisconnectForcesIdle(t *testing.T) {
	c, em, capt, clk := newTestClient()
	grant(t, c)

	c.HandleDisconnect()

	assert.Equal(t, Idle, c.State())
	assert.False(t, capt.Active())
	assert.Equal(t, []protocol.Event{protocol.StartSpeaking}, em.Events())

	clk.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, em.Events(), 1)
}

func TestCaptureFailureKeepsFloor(t *testing.T) {
	c, _, capt, _ := newTestClient()
	capt.err = errors.New("no microphone")

	grant(t, c)

	assert.Equal(t, Granted, c.State())
	assert.False(t, capt.Active())
	require.NoError(t, c.Release())
	assert.Equal(t, Idle, c.State())
}

func TestObserversSeeEveryTransition(t *testing.T) {
	c, _, _, _ := newTestClient()

	var got []Change
	c.OnStateChange(func(ch Change) {
		// observers run outside the lock
		_ = c.State()
		got = append(got, ch)
	})

	grant(t, c)
	require.NoError(t, c.Release())
	c.HandleLock("bob")
	c.HandleUnlock()

	assert.Equal(t, []Change{
		{From: Idle, To: RequestPending, Reason: ReasonPress},
		{From: RequestPending, To: Granted, Reason: ReasonGrant},
		{From: Granted, To: Idle, Reason: ReasonRelease},
		{From: Idle, To: Locked, Reason: ReasonLocked, Speaker: "bob"},
		{From: Locked, To: Idle, Reason: ReasonUnlocked},
	}, got)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "request_pending", RequestPending.String())
	assert.Equal(t, "granted", Granted.String())
	assert.Equal(t, "locked", Locked.String())
	assert.Equal(t, "unknown", State(42).String())
}
