// Package rpcconn implements the per-connection state that sits around
// the frame classifier: request-ID allocation, the outstanding-request
// table, the service dispatch table, and the connection lifecycle. It
// is component D/E of the design: the classifier itself (pkg/classify)
// never touches any of this.
package rpcconn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"

	"github.com/quillrpc/quill/pkg/classify"
	"github.com/quillrpc/quill/pkg/metrics"
	"github.com/quillrpc/quill/pkg/transport"
	"github.com/quillrpc/quill/pkg/wire"
)

// pendingResult is delivered to a waiting RequestResponse call once its
// matching Response frame arrives, its call is canceled, or the
// connection tears down.
type pendingResult struct {
	payload   []byte
	errorCode int32
	err       error
}

type pendingCall struct {
	resultCh chan pendingResult
}

// Option configures a Conn at construction time.
type Option func(*Conn)

// WithLogger attaches l as the connection's structured logger. Every
// log line the connection emits carries the connection's correlation
// ID as a field, mirroring the teacher's per-connection zerolog usage.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// WithProtocolErrorHandler registers f to be called whenever the peer
// reports a protocol error (disposition HandleProtocolError). The
// default handler does nothing; the connection logs the error and
// closes itself whether or not a handler is registered.
func WithProtocolErrorHandler(f func(error)) Option {
	return func(c *Conn) { c.onProtocolError = f }
}

// Conn is one peer connection: a transport, a classifier mode, a
// request-ID allocator, an outstanding-request table, and a service
// registry for inbound dispatch.
type Conn struct {
	id        string
	mode      classify.Mode
	side      Side
	transport transport.Transport
	registry  *Registry
	alloc     *idAllocator
	logger    zerolog.Logger

	onProtocolError func(error)

	mu      sync.Mutex
	pending map[uint32]*pendingCall
	closed  bool
	closeCh chan struct{}

	wg sync.WaitGroup
}

// New constructs a Conn. It does not start the receive loop; call Start
// for that.
func New(mode classify.Mode, side Side, t transport.Transport, reg *Registry, opts ...Option) *Conn {
	id := shortuuid.New()

	c := &Conn{
		id:              id,
		mode:            mode,
		side:            side,
		transport:       t,
		registry:        reg,
		alloc:           newIDAllocator(side),
		logger:          zerolog.Nop(),
		onProtocolError: func(error) {},
		pending:         make(map[uint32]*pendingCall),
		closeCh:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With().Str("conn_id", id).Str("side", side.String()).Logger()
	return c
}

// ID returns the connection's log-correlation ID.
func (c *Conn) ID() string {
	return c.id
}

// Start begins the receive loop on its own goroutine. Start returns
// once the goroutine has been launched; it does not block for the
// connection's lifetime.
func (c *Conn) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.receiveLoop(ctx)
	return nil
}

// Stop cancels the connection: it closes the transport, unblocks the
// receive loop, and completes every outstanding call with
// ErrConnectionClosed. Stop returns once the receive-loop goroutine and
// every in-flight handler goroutine have exited. Safe to call more than
// once; the receive loop itself uses teardown instead, since Stop waits
// on it.
func (c *Conn) Stop() {
	c.teardown()
	c.wg.Wait()
}

// teardown performs the actual close-once bookkeeping, without waiting
// on the receive-loop goroutine: the receive loop calls this directly
// when it detects a transport error, since waiting on its own exit
// would deadlock.
func (c *Conn) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.closeCh)
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for id, p := range pending {
		p.resultCh <- pendingResult{err: ErrConnectionClosed}
		c.logger.Debug().Uint32("request_id", id).Msg("dropped outstanding request on connection stop")
	}

	_ = c.transport.Close()
}

// RequestResponse sends a Request frame for method and blocks until the
// matching Response arrives, ctx is canceled, or the connection closes.
func (c *Conn) RequestResponse(ctx context.Context, method string, payload, layerData []byte) ([]byte, error) {
	id, err := c.alloc.next()
	if err != nil {
		return nil, fmt.Errorf("rpcconn: allocate request ID: %w", err)
	}

	call := &pendingCall{resultCh: make(chan pendingResult, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.pending[id] = call
	c.mu.Unlock()

	frame := wire.BuildFrame(id, method, wire.PayloadRequest, 0, payload, layerData)
	if err := c.transport.WriteFrame(frame); err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("rpcconn: send request frame: %w", err)
	}

	select {
	case res := <-call.resultCh:
		if res.err != nil {
			return nil, res.err
		}
		if res.errorCode != 0 {
			return nil, fmt.Errorf("rpcconn: application error (code %d): %s", res.errorCode, res.payload)
		}
		return res.payload, nil
	case <-ctx.Done():
		c.removePending(id)
		return nil, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	}
}

func (c *Conn) removePending(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		delete(c.pending, id)
	}
}

func (c *Conn) receiveLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		f, err := c.transport.ReadFrame()
		if err != nil {
			c.logger.Debug().Err(err).Msg("receive loop exiting")
			c.teardown()
			return
		}

		result := classify.Classify(c.mode, &f)
		metrics.CountDisposition(time.Now(), c.id, result.Disposition.String())
		c.dispatch(ctx, result)
	}
}
