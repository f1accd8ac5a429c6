// Package protocol implements the headlight wire frame.
//
// A TCP stream carries concatenated frames. Each frame is an 8-byte header
// followed by the payload. The receiver reads the header first to learn the
// payload length, then reads exactly that many bytes.
//
// Frame format:
//
//	0         4         8
//	┌─────────┬─────────┬───────────────────┐
//	│ type id │   len   │    payload ...    │
//	│ uint32  │ uint32  │     len bytes     │
//	└─────────┴─────────┴───────────────────┘
//
// Byte order: both header fields are little-endian. The ESP32 firmware wrote
// them in its native order and the peer decodes little-endian, so the order
// is fixed here rather than taken from the host. There is no magic number,
// version, padding, checksum or terminator; a peer that disagrees on the
// layout will desynchronize on the first frame.
package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// HeaderSize is the fixed length of the frame header: 4 (type id) + 4 (len).
const HeaderSize = 8

// ByteOrder is the order of the header fields on the wire.
var ByteOrder = binary.LittleEndian

var (
	ErrShortHeader     = errors.New("protocol: short frame header")
	ErrPayloadTooLarge = errors.New("protocol: payload too large")
)

// Frame is one complete wire unit.
type Frame struct {
	Type    uint32
	Payload []byte
}

// Limits bounds memory use when reading frames from an untrusted stream.
type Limits struct {
	MaxPayload uint32
}

// DefaultLimits allows payloads up to 64 KiB, far above anything the
// headlight exchanges.
func DefaultLimits() Limits {
	return Limits{MaxPayload: 64 * 1024}
}

// Append appends the encoded frame to dst and returns the extended slice.
// The length field is always len(f.Payload).
func Append(dst []byte, f Frame) []byte {
	dst = ByteOrder.AppendUint32(dst, f.Type)
	dst = ByteOrder.AppendUint32(dst, uint32(len(f.Payload)))
	return append(dst, f.Payload...)
}

// Marshal returns a freshly allocated buffer holding the encoded frame.
func Marshal(f Frame) []byte {
	return Append(make([]byte, 0, HeaderSize+len(f.Payload)), f)
}

// WriteFrame writes f to w in a single Write call so the frame is never
// split across writes by this package.
func WriteFrame(w io.Writer, f Frame) error {
	buf := Marshal(f)
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

// ReadFrame reads exactly one frame from r.
// io.ReadFull guarantees partial TCP segments are stitched back together.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	typ := ByteOrder.Uint32(header[0:4])
	length := ByteOrder.Uint32(header[4:8])
	if limits.MaxPayload > 0 && length > limits.MaxPayload {
		return Frame{}, ErrPayloadTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	return Frame{Type: typ, Payload: payload}, nil
}
