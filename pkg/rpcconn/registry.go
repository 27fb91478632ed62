package rpcconn

import (
	"context"
	"fmt"
	"sync"
)

// Handler serves one RPC method. It is invoked for both Request
// delivery (its return value becomes the Response payload) and Event
// delivery (its return value is discarded).
type Handler func(ctx context.Context, payload, layerData []byte) ([]byte, error)

// Registry is a read-mostly method dispatch table, built up with
// Register calls (typically all made before Start) and read
// concurrently by the dispatcher without further coordination beyond
// the guarding mutex, following the teacher's name-to-handler map
// convention for webhook and connection handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for method.
func (r *Registry) Register(method string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = h
}

// Deregister removes method's handler, if any.
func (r *Registry) Deregister(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, method)
}

func (r *Registry) lookup(method string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[method]
	return h, ok
}

// errMethodNotFound is carried in-band as a Response's nonzero
// error_code payload, per the dispatcher's DeliverRequestToService rule.
func errMethodNotFound(method string) error {
	return fmt.Errorf("method not found: %q", method)
}
