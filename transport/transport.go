// Package transport carries raw inter-context messages. Browsing
// contexts share no memory; everything between them travels over
// postMessage-style ports that are unordered and at-least-once:
// messages may be duplicated, dropped, or arrive after navigation.
// Consumers must dedupe downstream; ports make no delivery promises.
package transport

import (
	"errors"
	"sync"
)

// MessagePort is one end of a cross-context channel.
type MessagePort interface {
	// Post sends a message to the peer, fire-and-forget. It returns an
	// error when the port is closed or saturated; callers log and move
	// on rather than retry.
	Post(data []byte) error

	// Receive exposes inbound messages. The channel is closed when the
	// port closes.
	Receive() <-chan []byte

	// Close tears the port down. Idempotent.
	Close() error
}

// ErrPortClosed is returned by Post after Close.
var ErrPortClosed = errors.New("message port closed")

// ErrPortSaturated is returned by Post when the peer's buffer is full.
// The message is dropped, matching postMessage's lack of backpressure.
var ErrPortSaturated = errors.New("message port buffer full")

const portBuffer = 16

// Pair creates two in-process ports wired to each other, the frame and
// parent ends of an embedded view.
func Pair() (MessagePort, MessagePort) {
	a := &pipePort{in: make(chan []byte, portBuffer)}
	b := &pipePort{in: make(chan []byte, portBuffer)}
	a.peer, b.peer = b, a
	return a, b
}

type pipePort struct {
	peer *pipePort
	in   chan []byte

	mu     sync.Mutex
	closed bool
}

func (p *pipePort) Post(data []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPortClosed
	}
	p.mu.Unlock()

	peer := p.peer
	peer.mu.Lock()
	defer peer.mu.Unlock()
	if peer.closed {
		return ErrPortClosed
	}

	select {
	case peer.in <- data:
		return nil
	default:
		return ErrPortSaturated
	}
}

func (p *pipePort) Receive() <-chan []byte {
	return p.in
}

func (p *pipePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.in)
	return nil
}
