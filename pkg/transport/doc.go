// ABOUTME: WebSocket transport for the walkie protocol
// ABOUTME: Emits control events and audio frames, dispatches inbound events in order
// Package transport connects a walkie client to the arbiter.
//
// One reader goroutine dispatches every inbound event to its subscribers in
// receipt order. Writes are serialized.
//
// Example:
//
//	c := transport.New(transport.Config{ServerAddr: "localhost:8928", ClientID: id})
//	c.On(protocol.LockPTT, func(msg protocol.Message) { ... })
//	c.OnFrame(protocol.PlayAudio, func(f protocol.AudioFrame) { ... })
//	err := c.Dial(ctx)
//	err = c.Emit(protocol.StartSpeaking, nil)
package transport
