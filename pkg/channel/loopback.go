package channel

import (
	"context"
	"fmt"
	"sync"

	aterrors "github.com/airtimehq/airtime/pkg/errors"
)

// Loopback is an in-process transport end. A connected pair stands in for
// the redis transport in tests and mirrors its best-effort semantics:
// sends to a closed or saturated peer are silently dropped or fail,
// never retried.
type Loopback struct {
	mu     sync.Mutex
	peer   *Loopback
	out    chan Envelope
	closed bool
}

// NewLoopbackPair returns two connected transport ends.
func NewLoopbackPair() (*Loopback, *Loopback) {
	a := &Loopback{out: make(chan Envelope, 16)}
	b := &Loopback{out: make(chan Envelope, 16)}
	a.peer = b
	b.peer = a
	return a, b
}

// Send delivers the envelope to the peer's receive channel. A detached
// peer fails the send; a full peer buffer drops the envelope, matching
// pub/sub with a slow subscriber.
func (l *Loopback) Send(_ context.Context, env Envelope) error {
	l.mu.Lock()
	peer := l.peer
	l.mu.Unlock()

	if peer == nil {
		return fmt.Errorf("%w: peer detached", aterrors.ErrTransport)
	}

	peer.mu.Lock()
	defer peer.mu.Unlock()
	if peer.closed {
		return fmt.Errorf("%w: peer closed", aterrors.ErrTransport)
	}
	select {
	case peer.out <- env:
		return nil
	default:
		return nil
	}
}

// Receive returns the inbound envelope channel.
func (l *Loopback) Receive() <-chan Envelope {
	return l.out
}

// Close detaches from the peer and closes the receive channel.
func (l *Loopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	peer := l.peer
	l.peer = nil
	close(l.out)
	l.mu.Unlock()

	if peer != nil {
		peer.mu.Lock()
		peer.peer = nil
		peer.mu.Unlock()
	}
	return nil
}
