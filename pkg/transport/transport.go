// Package transport defines the pluggable byte-level carrier that
// pkg/rpcconn frames Quill messages onto. Implementations only move
// already-encoded frames; they never interpret framelet contents.
package transport

import "github.com/quillrpc/quill/pkg/wire"

// Transport moves wire.Frame values to and from a peer. Implementations
// must make WriteFrame safe to call concurrently with itself and with
// ReadFrame; Close must be idempotent and safe to call from any
// goroutine, unblocking any in-flight ReadFrame/WriteFrame call.
type Transport interface {
	ReadFrame() (wire.Frame, error)
	WriteFrame(f wire.Frame) error
	Close() error
}
