package wire

import (
	"encoding/binary"
	"fmt"
)

// EncodeProtocolError serializes a ProtocolError record as a single
// little-endian u32 error code.
func EncodeProtocolError(e ProtocolError) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(e.Code))
	return buf
}

// DecodeProtocolError parses the record written by EncodeProtocolError.
func DecodeProtocolError(buf []byte) (ProtocolError, error) {
	if len(buf) != 4 {
		return ProtocolError{}, fmt.Errorf("%w: protocol error record: want 4 bytes, got %d", ErrMalformed, len(buf))
	}
	return ProtocolError{Code: ProtocolErrorCode(binary.LittleEndian.Uint32(buf))}, nil
}

// DecodeConfigRecord "parses" a ConfigRecord. Its deserializability is
// the only thing the classifier validates in this revision (§9): there
// is no internal structure to reject beyond non-nil contents, but the
// function signature mirrors DecodeHeader/DecodeProtocolError so the
// classifier can treat all three uniformly.
func DecodeConfigRecord(buf []byte) (ConfigRecord, error) {
	if buf == nil {
		return ConfigRecord{}, fmt.Errorf("%w: config record: nil contents", ErrMalformed)
	}
	return ConfigRecord{Contents: buf}, nil
}
