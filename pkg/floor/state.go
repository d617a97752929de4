// ABOUTME: Floor states and state change notifications
// ABOUTME: Defines the read-only view of the floor exposed to observers
package floor

import "time"

// State is the local view of the shared floor
type State int

const (
	// Idle means nobody is known to hold the floor
	Idle State = iota
	// RequestPending means start_speaking was sent and no answer arrived yet
	RequestPending
	// Granted means this client holds the floor
	Granted
	// Locked means another client holds the floor
	Locked
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RequestPending:
		return "request_pending"
	case Granted:
		return "granted"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// Reason names what caused a transition
type Reason string

// Transition causes
const (
	ReasonPress      Reason = "press"
	ReasonGrant      Reason = "grant"
	ReasonDenied     Reason = "denied"
	ReasonRelease    Reason = "release"
	ReasonTimeout    Reason = "timeout"
	ReasonRevoked    Reason = "revoked"
	ReasonLocked     Reason = "locked"
	ReasonUnlocked   Reason = "unlocked"
	ReasonDisconnect Reason = "disconnect"
)

// Change describes one transition
type Change struct {
	From    State
	To      State
	Reason  Reason
	Speaker string // remote speaker when To is Locked
}

// Session is a snapshot of the active transmission
type Session struct {
	Start       time.Time
	MaxDuration time.Duration
}

// Deadline is when the session is released automatically
func (s Session) Deadline() time.Time {
	return s.Start.Add(s.MaxDuration)
}
