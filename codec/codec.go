// Package codec turns typed messages into wire frames and back.
//
//	Serialize(Echo{"hi"}) → [01 00 00 00][02 00 00 00]['h' 'i']
//
// The frame layout and byte order are owned by the protocol package.
package codec

import (
	"errors"
	"fmt"
	"headlink/message"
	"headlink/protocol"
)

var (
	ErrInvalidType = errors.New("codec: invalid message type")
	ErrUnknownType = errors.New("codec: unknown message type")
)

// Frame wraps m in a protocol frame. The payload is a fresh buffer.
func Frame(m message.Message) protocol.Frame {
	return protocol.Frame{
		Type:    uint32(m.Type()),
		Payload: m.MarshalPayload(),
	}
}

// Serialize returns the complete wire encoding of m:
// [type id u32][payload len u32][payload].
//
// Every call allocates a new buffer owned by the caller. The length field is
// not overflow checked; payloads are short text and small structs.
func Serialize(m message.Message) []byte {
	return protocol.Marshal(Frame(m))
}

// Parse decodes a frame received from the wire into a typed message.
func Parse(f protocol.Frame) (message.Message, error) {
	t := message.Type(f.Type)
	switch t {
	case message.TypeInvalid:
		return nil, ErrInvalidType
	case message.TypeEcho, message.TypeEchoReply, message.TypeIdentityRequest,
		message.TypeIdentity, message.TypeSetColor:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, f.Type)
	}
	return message.Unmarshal(t, f.Payload)
}
