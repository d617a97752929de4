// ABOUTME: WebSocket client for walkie protocol communication
// ABOUTME: Handles connection, event subscriptions and serialized writes
package transport

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/Resonate-Protocol/walkie/pkg/protocol"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

// DefaultPath is the arbiter's websocket endpoint
const DefaultPath = "/ptt"

// ErrNotConnected is returned when writing without a live connection
var ErrNotConnected = errors.New("not connected")

// Config holds client configuration
type Config struct {
	ServerAddr string
	ClientID   string
	Path       string
}

// Client represents a WebSocket client
type Client struct {
	config Config

	writeMu sync.Mutex
	conn    *websocket.Conn

	handlersMu   sync.RWMutex
	handlers     map[protocol.Event][]func(protocol.Message)
	frames       map[protocol.Event][]func(protocol.AudioFrame)
	disconnected []func(error)

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

// New creates a new WebSocket client
func New(config Config) *Client {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	return &Client{
		config:   config,
		handlers: make(map[protocol.Event][]func(protocol.Message)),
		frames:   make(map[protocol.Event][]func(protocol.AudioFrame)),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// URL returns the websocket address the client dials
func (c *Client) URL() string {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	if c.config.ClientID != "" {
		u.RawQuery = url.Values{"client_id": {c.config.ClientID}}.Encode()
	}
	return u.String()
}

// On subscribes to a control event. Subscriptions should be made before Dial.
func (c *Client) On(event protocol.Event, handler func(protocol.Message)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

// OnFrame subscribes to an audio event
func (c *Client) OnFrame(event protocol.Event, handler func(protocol.AudioFrame)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.frames[event] = append(c.frames[event], handler)
}

// OnDisconnect registers a handler run once when the connection ends.
// The error is nil after a local Close.
func (c *Client) OnDisconnect(handler func(error)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.disconnected = append(c.disconnected, handler)
}

// Dial connects and starts the reader
func (c *Client) Dial(ctx context.Context) error {
	target := c.URL()
	log.Info().Str("module", "transport").Str("url", target).Msg("connecting")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s failed", target)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	go c.readMessages(conn)
	return nil
}

// Done is closed after the reader exits and disconnect handlers ran
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Emit sends a control event
func (c *Client) Emit(event protocol.Event, payload any) error {
	data, err := protocol.EncodeMessage(event, payload)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

// EmitFrame sends an audio event as a binary message
func (c *Client) EmitFrame(event protocol.Event, frame protocol.AudioFrame) error {
	data, err := protocol.EncodeBinary(event, frame)
	if err != nil {
		return err
	}
	return c.write(websocket.BinaryMessage, data)
}

func (c *Client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	select {
	case <-c.closing:
		return ErrNotConnected
	case <-c.done:
		return ErrNotConnected
	default:
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return errors.Wrap(c.conn.WriteMessage(messageType, data), "write failed")
}

// readMessages reads and routes incoming messages until the connection ends
func (c *Client) readMessages(conn *websocket.Conn) {
	var cause error
	defer func() {
		conn.Close()
		c.fireDisconnect(cause)
		close(c.done)
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closing:
			default:
				cause = errors.Wrap(err, "connection lost")
				log.Warn().Str("module", "transport").Err(err).Msg("read error")
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.handleBinaryMessage(data)
		case websocket.TextMessage:
			c.handleJSONMessage(data)
		}
	}
}

func (c *Client) handleBinaryMessage(data []byte) {
	event, frame, err := protocol.DecodeBinary(data)
	if err != nil {
		log.Warn().Str("module", "transport").Err(err).Msg("dropping binary message")
		return
	}
	c.dispatchFrame(event, frame)
}

func (c *Client) handleJSONMessage(data []byte) {
	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		log.Warn().Str("module", "transport").Err(err).Msg("dropping text message")
		return
	}

	if msg.Type == protocol.PlayAudio || msg.Type == protocol.AudioChunk {
		frame, err := protocol.FrameFromPayload(msg.Payload)
		if err != nil {
			log.Warn().Str("module", "transport").Err(err).Str("event", string(msg.Type)).Msg("dropping audio payload")
			return
		}
		c.dispatchFrame(msg.Type, frame)
		return
	}

	c.handlersMu.RLock()
	handlers := c.handlers[msg.Type]
	c.handlersMu.RUnlock()

	if len(handlers) == 0 {
		log.Debug().Str("module", "transport").Str("event", string(msg.Type)).Msg("unhandled event")
	}
	for _, h := range handlers {
		h(msg)
	}
}

func (c *Client) dispatchFrame(event protocol.Event, frame protocol.AudioFrame) {
	c.handlersMu.RLock()
	handlers := c.frames[event]
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		h(frame)
	}
}

func (c *Client) fireDisconnect(cause error) {
	c.handlersMu.RLock()
	handlers := c.disconnected
	c.handlersMu.RUnlock()

	log.Info().Str("module", "transport").Err(cause).Msg("disconnected")
	for _, h := range handlers {
		h(cause)
	}
}

// Close closes the connection and waits for the reader to finish.
// Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closing) })

	c.writeMu.Lock()
	conn := c.conn
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	c.writeMu.Unlock()

	if conn != nil {
		<-c.done
	}
	return nil
}
