// Package wire implements the self-describing binary frame format that
// Quill peers exchange: a length-tagged sequence of typed "framelets"
// carrying a structured header, an optional layer-data blob, and an
// opaque payload.
//
// This package is the trust-boundary codec (components A and B of the
// design): it only ever encodes/decodes bytes. It does not interpret
// the meaning of a sequence of framelets — that's [pkg/classify]'s job.
package wire

import "fmt"

// FrameletType identifies the kind of data a single framelet carries.
// The numeric values are the wire-visible two-byte codes; they are
// fixed and disjoint, per spec.
type FrameletType uint16

const (
	// FrameletHeaders carries an encoded Header record. It is only
	// legal at index 0 of a message frame.
	FrameletHeaders FrameletType = 0x4844
	// FrameletPayloadData carries the opaque user payload.
	FrameletPayloadData FrameletType = 0x4450
	// FrameletLayerData carries optional per-message middleware data,
	// legal only at index 1 of a message frame, between Headers and
	// PayloadData.
	FrameletLayerData FrameletType = 0x4C44
	// FrameletConfig carries a ConfigRecord. It is only legal as the
	// sole framelet of a configuration frame.
	FrameletConfig FrameletType = 0x434E
	// FrameletProtocolError carries a ProtocolError record. It is only
	// legal as the sole framelet of an error frame.
	FrameletProtocolError FrameletType = 0x4550
)

// String renders a FrameletType for logs and test failure messages.
func (t FrameletType) String() string {
	switch t {
	case FrameletHeaders:
		return "Headers"
	case FrameletPayloadData:
		return "PayloadData"
	case FrameletLayerData:
		return "LayerData"
	case FrameletConfig:
		return "Config"
	case FrameletProtocolError:
		return "ProtocolError"
	default:
		return fmt.Sprintf("Unknown(0x%04x)", uint16(t))
	}
}

// Framelet is one typed, length-tagged byte segment within a Frame.
type Framelet struct {
	Type     FrameletType
	Contents []byte
}

// Frame is an ordered, nonempty sequence of framelets that travels as a
// single unit. Order is significant and part of validity.
type Frame struct {
	Framelets []Framelet
}

// PayloadType identifies the semantic shape of a message frame's
// Headers framelet.
type PayloadType uint8

const (
	PayloadRequest PayloadType = iota + 1
	PayloadResponse
	PayloadEvent
)

// String renders a PayloadType for logs and test failure messages.
func (p PayloadType) String() string {
	switch p {
	case PayloadRequest:
		return "Request"
	case PayloadResponse:
		return "Response"
	case PayloadEvent:
		return "Event"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(p))
	}
}

// Header is the structured record carried by the Headers framelet.
type Header struct {
	// RequestID is monotonic per connection, with client/server parity
	// (see pkg/rpcconn for the allocator).
	RequestID uint32
	// PayloadType identifies the message kind.
	PayloadType PayloadType
	// MethodName is required for Request/Event, and echoed back on
	// Response.
	MethodName string
	// ErrorCode is zero on success, nonzero for an application-level
	// failure carried in-band on a Response.
	ErrorCode int32
}

// ProtocolErrorCode enumerates the wire-visible protocol error codes.
type ProtocolErrorCode int32

const (
	// ErrCodeMalformedData marks a frame that could not be parsed or
	// that violates framing/ordering rules.
	ErrCodeMalformedData ProtocolErrorCode = 1
	// ErrCodeNotSupported marks a structurally valid frame whose
	// semantics this peer/variant does not support (e.g. an Event
	// frame received by a lean-variant peer).
	ErrCodeNotSupported ProtocolErrorCode = 2
	// ErrCodeErrorInError marks a ProtocolError frame that is itself
	// malformed or undecodable.
	ErrCodeErrorInError ProtocolErrorCode = 3
)

// String renders a ProtocolErrorCode for logs and test failure messages.
func (c ProtocolErrorCode) String() string {
	switch c {
	case ErrCodeMalformedData:
		return "MALFORMED_DATA"
	case ErrCodeNotSupported:
		return "NOT_SUPPORTED"
	case ErrCodeErrorInError:
		return "ERROR_IN_ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(c))
	}
}

// ProtocolError is the record carried by a ProtocolError framelet.
type ProtocolError struct {
	Code ProtocolErrorCode
}

// ConfigRecord is opaque in this revision: its deserializability is the
// only thing the classifier validates. Contents is kept verbatim.
type ConfigRecord struct {
	Contents []byte
}
