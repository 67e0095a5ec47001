package transport

import (
	"sync"

	"github.com/gorilla/websocket"
)

// WSPort adapts a websocket connection into a MessagePort, used when a
// browsing context talks to the relay daemon instead of a same-page
// parent frame.
type WSPort struct {
	conn *websocket.Conn
	in   chan []byte

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewWSPort wraps an established websocket connection and starts its
// read loop. The caller owns the connection's lifecycle via Close.
func NewWSPort(conn *websocket.Conn) *WSPort {
	p := &WSPort{
		conn:   conn,
		in:     make(chan []byte, portBuffer),
		closed: make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *WSPort) readLoop() {
	defer close(p.in)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case p.in <- data:
		case <-p.closed:
			return
		default:
			// Saturated consumer: drop, the channel is at-least-once
			// anyway and dedup happens downstream.
		}
	}
}

// Post writes one text message to the peer.
func (p *WSPort) Post(data []byte) error {
	select {
	case <-p.closed:
		return ErrPortClosed
	default:
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// Receive exposes inbound messages; closed when the connection drops.
func (p *WSPort) Receive() <-chan []byte {
	return p.in
}

// Close shuts the underlying connection down. Idempotent.
func (p *WSPort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.conn.Close()
	})
	return err
}

var _ MessagePort = (*WSPort)(nil)
