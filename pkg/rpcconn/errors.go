package rpcconn

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quillrpc/quill/pkg/wire"
)

// ErrConnectionClosed is returned by RequestResponse, and used to
// complete outstanding calls, once the connection has been stopped or
// torn down by the peer.
var ErrConnectionClosed = errors.New("rpcconn: connection closed")

// ErrCanceled completes an outstanding call whose context was canceled
// before a response arrived.
var ErrCanceled = errors.New("rpcconn: request canceled")

// ErrExhaustedIDs is returned when the request-ID allocator has no
// further IDs available on its side of the parity split. It is a fatal,
// per-connection condition per the design's error strata.
var ErrExhaustedIDs = errors.New("rpcconn: request ID space exhausted")

// protocolErrorStatus maps a wire-visible ProtocolErrorCode to a
// portable gRPC status, so that the WithProtocolErrorHandler callback
// gets a standard error vocabulary instead of a bespoke enum.
func protocolErrorStatus(code wire.ProtocolErrorCode, msg string) error {
	switch code {
	case wire.ErrCodeMalformedData:
		return status.Error(codes.InvalidArgument, msg)
	case wire.ErrCodeNotSupported:
		return status.Error(codes.Unimplemented, msg)
	case wire.ErrCodeErrorInError:
		return status.Error(codes.Internal, msg)
	default:
		return status.Error(codes.Unknown, msg)
	}
}
