package rpcconn

import (
	"context"
	"time"

	"github.com/quillrpc/quill/pkg/classify"
	"github.com/quillrpc/quill/pkg/metrics"
	"github.com/quillrpc/quill/pkg/wire"
)

// dispatch consumes one classify.Result and performs the action the
// design's dispatcher component (4.E) assigns to its disposition.
func (c *Conn) dispatch(ctx context.Context, res classify.Result) {
	switch res.Disposition {
	case classify.DeliverRequestToService:
		c.deliverRequest(ctx, res)
	case classify.DeliverResponseToProxy:
		c.deliverResponse(res)
	case classify.DeliverEventToService:
		c.deliverEvent(ctx, res)
	case classify.ProcessConfig:
		c.logger.Debug().Msg("received config frame")
	case classify.HandleProtocolError:
		err := res.Err
		if res.ErrorCode != nil {
			err = protocolErrorStatus(*res.ErrorCode, res.Err.Error())
		}
		c.logger.Warn().Err(err).Msg("peer reported protocol error")
		c.onProtocolError(err)
		c.teardown()
	case classify.SendProtocolError:
		c.sendProtocolError(res.ErrorCode)
	case classify.HangUp:
		c.logger.Debug().Msg("hanging up per classifier disposition")
		c.teardown()
	case classify.Indeterminate:
		c.logger.Error().Msg("classifier returned Indeterminate: internal state machine bug")
		c.teardown()
	}
}

func (c *Conn) deliverRequest(ctx context.Context, res classify.Result) {
	h, ok := c.registry.lookup(res.Headers.MethodName)
	if !ok {
		c.sendResponse(res.Headers.RequestID, res.Headers.MethodName, nil, errMethodNotFound(res.Headers.MethodName))
		return
	}

	id, method := res.Headers.RequestID, res.Headers.MethodName
	payload, layerData := res.Payload, res.LayerData

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		respPayload, err := h(ctx, payload, layerData)
		c.sendResponse(id, method, respPayload, err)
	}()
}

func (c *Conn) sendResponse(id uint32, method string, payload []byte, handlerErr error) {
	errCode := int32(0)
	if handlerErr != nil {
		errCode = 1
		payload = []byte(handlerErr.Error())
	}

	frame := wire.BuildFrame(id, method, wire.PayloadResponse, errCode, payload, nil)
	if err := c.transport.WriteFrame(frame); err != nil {
		c.logger.Warn().Err(err).Uint32("request_id", id).Msg("failed to send response frame")
	}
}

func (c *Conn) deliverResponse(res classify.Result) {
	c.mu.Lock()
	call, ok := c.pending[res.Headers.RequestID]
	if ok {
		delete(c.pending, res.Headers.RequestID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Uint32("request_id", res.Headers.RequestID).
			Msg("dropping response with no matching outstanding request")
		return
	}

	call.resultCh <- pendingResult{payload: res.Payload, errorCode: res.Headers.ErrorCode}
}

func (c *Conn) deliverEvent(ctx context.Context, res classify.Result) {
	h, ok := c.registry.lookup(res.Headers.MethodName)
	if !ok {
		c.logger.Debug().Str("method", res.Headers.MethodName).Msg("dropping event with no registered handler")
		return
	}

	payload, layerData := res.Payload, res.LayerData
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := h(ctx, payload, layerData); err != nil {
			c.logger.Warn().Err(err).Str("method", res.Headers.MethodName).Msg("event handler returned an error")
		}
	}()
}

func (c *Conn) sendProtocolError(code *wire.ProtocolErrorCode) {
	if code == nil {
		c.logger.Error().Msg("SendProtocolError disposition carried a nil error code")
		return
	}

	metrics.CountProtocolError(time.Now(), c.id, code.String())

	frame := wire.BuildProtocolErrorFrame(*code)
	if err := c.transport.WriteFrame(frame); err != nil {
		c.logger.Warn().Err(err).Msg("failed to send protocol error frame")
	}
}
