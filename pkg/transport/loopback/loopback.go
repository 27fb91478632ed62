// Package loopback implements [transport.Transport] as a pair of
// in-process peers connected by buffered channels, with no socket
// involved. It generalizes the teacher's channel-based
// reader/writer plumbing (one HTTP-upgraded connection) to a
// symmetric two-sided pipe between two [pkg/rpcconn.Conn] instances
// in the same process.
package loopback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/quillrpc/quill/pkg/wire"
)

const bufferSize = 16

// ErrClosed is returned once a Peer's own end has been closed.
var ErrClosed = errors.New("loopback: transport closed")

// Peer is one end of a loopback pair.
type Peer struct {
	out chan<- wire.Frame
	in  <-chan wire.Frame

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPair returns two connected Peers: frames written to a are
// readable from b, and vice versa.
func NewPair() (a, b *Peer) {
	ab := make(chan wire.Frame, bufferSize)
	ba := make(chan wire.Frame, bufferSize)

	a = &Peer{out: ab, in: ba, closed: make(chan struct{})}
	b = &Peer{out: ba, in: ab, closed: make(chan struct{})}
	return a, b
}

// WriteFrame sends f to the peer, blocking if the channel buffer is
// full. Returns ErrClosed once this end is closed; closing the far end
// does not make WriteFrame fail.
func (p *Peer) WriteFrame(f wire.Frame) error {
	select {
	case <-p.closed:
		return fmt.Errorf("%w", ErrClosed)
	default:
	}

	select {
	case p.out <- f:
		return nil
	case <-p.closed:
		return fmt.Errorf("%w", ErrClosed)
	}
}

// ReadFrame blocks until a frame arrives from the peer, or returns
// ErrClosed once this end is closed. Frames still buffered when this end
// closes are not guaranteed to be returned first.
func (p *Peer) ReadFrame() (wire.Frame, error) {
	select {
	case f, ok := <-p.in:
		if !ok {
			return wire.Frame{}, fmt.Errorf("%w", ErrClosed)
		}
		return f, nil
	case <-p.closed:
		return wire.Frame{}, fmt.Errorf("%w", ErrClosed)
	}
}

// Close marks this end closed. It does not close the shared channels
// (the peer may still want to drain buffered frames); it only
// unblocks this Peer's own ReadFrame/WriteFrame calls.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

