package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed is returned by DecodeFrame (and wrapped by DecodeHeader)
// whenever the input bytes do not describe a structurally valid
// container. It is a sentinel so callers can classify a decode failure
// without string matching.
var ErrMalformed = errors.New("wire: malformed framelet container")

const (
	frameletCountSize  = 2 // u16
	frameletTypeSize   = 2 // u16
	frameletLengthSize = 4 // u32
	frameletHeaderSize = frameletTypeSize + frameletLengthSize
)

// EncodeFrame serializes f as count:u16 followed by count tuples of
// (type:u16, length:u32, contents), all little-endian, per spec §6.
func EncodeFrame(f Frame) []byte {
	size := frameletCountSize
	for _, fl := range f.Framelets {
		size += frameletHeaderSize + len(fl.Contents)
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(f.Framelets)))

	off := frameletCountSize
	for _, fl := range f.Framelets {
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(fl.Type))
		off += 2
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(fl.Contents)))
		off += 4
		off += copy(buf[off:], fl.Contents)
	}

	return buf
}

// DecodeFrame parses the container format written by EncodeFrame. It
// rejects a declared framelet count of zero, and any framelet whose
// declared length exceeds the remaining buffer, both as ErrMalformed.
//
// The returned Frame's framelet contents are sub-slices of buf: callers
// that need to retain a Frame past buf's lifetime must copy first.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) < frameletCountSize {
		return Frame{}, fmt.Errorf("%w: buffer shorter than framelet count", ErrMalformed)
	}

	count := binary.LittleEndian.Uint16(buf[0:2])
	if count == 0 {
		return Frame{}, fmt.Errorf("%w: framelet count is zero", ErrMalformed)
	}

	framelets := make([]Framelet, 0, count)
	off := frameletCountSize

	for i := uint16(0); i < count; i++ {
		if len(buf)-off < frameletHeaderSize {
			return Frame{}, fmt.Errorf("%w: truncated framelet header at index %d", ErrMalformed, i)
		}

		typ := FrameletType(binary.LittleEndian.Uint16(buf[off : off+2]))
		off += 2
		length := binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4

		remaining := len(buf) - off
		if length > uint32(remaining) {
			return Frame{}, fmt.Errorf("%w: framelet %d declares length %d, only %d bytes remain",
				ErrMalformed, i, length, remaining)
		}

		framelets = append(framelets, Framelet{
			Type:     typ,
			Contents: buf[off : off+int(length)],
		})
		off += int(length)
	}

	return Frame{Framelets: framelets}, nil
}
