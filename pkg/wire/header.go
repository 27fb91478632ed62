package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Header field numbers for the protowire-encoded structured record
// (schema version 1). These are deliberately hand-rolled rather than
// generated from a .proto file: the classifier only ever needs
// encode/decode, not a full protobuf Message, and protowire's
// varint/length-delimited primitives already give the "fast binary"
// characteristics the format calls for.
const (
	headerFieldRequestID   protowire.Number = 1
	headerFieldPayloadType protowire.Number = 2
	headerFieldMethodName  protowire.Number = 3
	headerFieldErrorCode   protowire.Number = 4
)

// ErrMalformedHeader wraps a decode failure from DecodeHeader. The
// classifier (pkg/classify) treats any non-nil error as a black-box
// decode failure, per spec §4.B.
var ErrMalformedHeader = fmt.Errorf("%w: header record", ErrMalformed)

// EncodeHeader serializes h as a protowire structured record.
func EncodeHeader(h Header) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, headerFieldRequestID, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(h.RequestID))

	buf = protowire.AppendTag(buf, headerFieldPayloadType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(h.PayloadType))

	buf = protowire.AppendTag(buf, headerFieldMethodName, protowire.BytesType)
	buf = protowire.AppendString(buf, h.MethodName)

	buf = protowire.AppendTag(buf, headerFieldErrorCode, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(h.ErrorCode)))

	return buf
}

// DecodeHeader parses the record written by EncodeHeader. Unknown
// fields are skipped (forward compatibility); a truncated or
// inconsistently-typed record is reported as ErrMalformedHeader. Fields
// that are absent from the input keep their zero value.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header

	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return Header{}, fmt.Errorf("%w: bad field tag: %v", ErrMalformedHeader, protowire.ParseError(n))
		}
		buf = buf[n:]

		switch num {
		case headerFieldRequestID:
			v, n, err := consumeVarintField(buf, typ)
			if err != nil {
				return Header{}, fmt.Errorf("%w: request_id: %w", ErrMalformedHeader, err)
			}
			h.RequestID = uint32(v)
			buf = buf[n:]

		case headerFieldPayloadType:
			v, n, err := consumeVarintField(buf, typ)
			if err != nil {
				return Header{}, fmt.Errorf("%w: payload_type: %w", ErrMalformedHeader, err)
			}
			h.PayloadType = PayloadType(v)
			buf = buf[n:]

		case headerFieldMethodName:
			if typ != protowire.BytesType {
				return Header{}, fmt.Errorf("%w: method_name: unexpected wire type %v", ErrMalformedHeader, typ)
			}
			s, n := protowire.ConsumeString(buf)
			if n < 0 {
				return Header{}, fmt.Errorf("%w: method_name: %v", ErrMalformedHeader, protowire.ParseError(n))
			}
			h.MethodName = s
			buf = buf[n:]

		case headerFieldErrorCode:
			v, n, err := consumeVarintField(buf, typ)
			if err != nil {
				return Header{}, fmt.Errorf("%w: error_code: %w", ErrMalformedHeader, err)
			}
			h.ErrorCode = int32(protowire.DecodeZigZag(v))
			buf = buf[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return Header{}, fmt.Errorf("%w: unknown field %d: %v", ErrMalformedHeader, num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}

	return h, nil
}

func consumeVarintField(buf []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("unexpected wire type %v", typ)
	}
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, 0, fmt.Errorf("%v", protowire.ParseError(n))
	}
	return v, n, nil
}
