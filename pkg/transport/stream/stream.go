// Package stream implements [transport.Transport] over any
// [io.ReadWriteCloser] (typically a [net.Conn]), by prefixing each
// encoded frame with a four-byte little-endian length so frame
// boundaries survive a byte stream.
package stream

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/quillrpc/quill/pkg/wire"
)

// maxFrameSize bounds a single incoming frame, to keep a malicious or
// buggy peer from forcing an unbounded allocation.
const maxFrameSize = 64 << 20 // 64 MiB

// writeRequest is one pending WriteFrame call, handed to the writer
// goroutine over a channel. Mirrors the single-writer goroutine pattern
// used for outbound WebSocket frames: all writes to the underlying
// connection happen on one goroutine, serialized by the channel itself.
type writeRequest struct {
	frame wire.Frame
	err   chan<- error
}

// Stream frames a byte stream connection. The zero value is not usable;
// construct with New.
type Stream struct {
	conn io.ReadWriteCloser
	r    *bufio.Reader

	writes chan writeRequest
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// New wraps conn and starts its writer goroutine. Callers must call
// Close when done to release the goroutine.
func New(conn io.ReadWriteCloser) *Stream {
	s := &Stream{
		conn:   conn,
		r:      bufio.NewReader(conn),
		writes: make(chan writeRequest),
		done:   make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *Stream) writeLoop() {
	for {
		select {
		case req := <-s.writes:
			req.err <- s.writeFrame(req.frame)
			close(req.err)
		case <-s.done:
			return
		}
	}
}

func (s *Stream) writeFrame(f wire.Frame) error {
	buf := wire.EncodeFrame(f)

	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(buf)))

	if _, err := s.conn.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("stream: write length prefix: %w", err)
	}
	if _, err := s.conn.Write(buf); err != nil {
		return fmt.Errorf("stream: write frame: %w", err)
	}
	return nil
}

// WriteFrame enqueues f on the writer goroutine and blocks until it has
// been written (or the transport is closed).
func (s *Stream) WriteFrame(f wire.Frame) error {
	errCh := make(chan error, 1)
	select {
	case s.writes <- writeRequest{frame: f, err: errCh}:
	case <-s.done:
		return fmt.Errorf("stream: %w", io.ErrClosedPipe)
	}

	select {
	case err := <-errCh:
		return err
	case <-s.done:
		return fmt.Errorf("stream: %w", io.ErrClosedPipe)
	}
}

// ReadFrame blocks until one full frame has been read, or returns an
// error (typically io.EOF or a wrapped read error) once the underlying
// connection is closed or fails.
func (s *Stream) ReadFrame() (wire.Frame, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(s.r, lenPrefix[:]); err != nil {
		return wire.Frame{}, fmt.Errorf("stream: read length prefix: %w", err)
	}

	n := binary.LittleEndian.Uint32(lenPrefix[:])
	if n > maxFrameSize {
		return wire.Frame{}, fmt.Errorf("stream: frame of %d bytes exceeds maximum of %d", n, maxFrameSize)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return wire.Frame{}, fmt.Errorf("stream: read frame body: %w", err)
	}

	f, err := wire.DecodeFrame(buf)
	if err != nil {
		return wire.Frame{}, fmt.Errorf("stream: %w", err)
	}
	return f, nil
}

// Close closes the underlying connection and stops the writer goroutine.
// Safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
