// ABOUTME: Per-connection state for the walkie server
// ABOUTME: Bounded send queue drained by a single writer goroutine
package server

import (
	"sync"
	"time"

	"github.com/Resonate-Protocol/walkie/pkg/protocol"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	errQueueFull  = errors.New("client send queue full")
	errPeerClosed = errors.New("client connection closed")
)

type outbound struct {
	messageType int
	data        []byte
}

// peer is a connected client
type peer struct {
	id        string
	remote    string
	connected time.Time
	conn      *websocket.Conn

	send      chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(id, remote string, conn *websocket.Conn, queue int) *peer {
	return &peer{
		id:        id,
		remote:    remote,
		connected: time.Now(),
		conn:      conn,
		send:      make(chan outbound, queue),
		done:      make(chan struct{}),
	}
}

func (p *peer) ID() string {
	return p.id
}

// SendMessage queues a JSON control message
func (p *peer) SendMessage(event protocol.Event, payload any) error {
	data, err := protocol.EncodeMessage(event, payload)
	if err != nil {
		return err
	}
	return p.enqueue(outbound{messageType: websocket.TextMessage, data: data})
}

// SendFrame queues a binary audio message
func (p *peer) SendFrame(event protocol.Event, frame protocol.AudioFrame) error {
	data, err := protocol.EncodeBinary(event, frame)
	if err != nil {
		return err
	}
	return p.enqueue(outbound{messageType: websocket.BinaryMessage, data: data})
}

func (p *peer) enqueue(msg outbound) error {
	select {
	case <-p.done:
		return errPeerClosed
	default:
	}

	select {
	case p.send <- msg:
		return nil
	default:
		return errQueueFull
	}
}

// writer sends queued messages and keepalive pings until the peer closes
func (p *peer) writer() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return

		case msg := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				log.Debug().Str("module", "server").Str("client", p.id).Err(err).Msg("write failed")
				p.close()
				return
			}

		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				p.close()
				return
			}
		}
	}
}

// Disconnect drops the connection; the reader then leaves the arbiter
func (p *peer) Disconnect() {
	p.close()
}

// close is idempotent and unblocks both the reader and the writer
func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}
