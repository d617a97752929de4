// ABOUTME: Floor-control client for push-to-talk
// ABOUTME: Tracks who may transmit and drives capture on grant, release and timeout
// Package floor implements the client side of push-to-talk floor control.
//
// The client is a state machine over Idle, RequestPending, Granted and
// Locked. It changes state only on local intent (Press, Release) or on
// events from the arbiter (grant, denial, lock, unlock, disconnect). While
// Granted it owns a Session whose timer bounds how long the floor is held.
//
// Example:
//
//	fc := floor.New(conn, mic, floor.Config{})
//	conn.On(protocol.StartAccepted, func(protocol.Message) { fc.HandleGrant() })
//	err := fc.Press()
package floor
