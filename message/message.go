// Package message defines the typed messages exchanged with the headlight peer.
//
// A Message knows its wire type id and how to render its payload. Framing
// (type id + length prefix) is added by the codec package; this package only
// deals with payload bytes.
package message

import (
	"errors"
	"fmt"
)

// Type is the 32-bit message type identifier carried in every frame.
type Type uint32

const (
	TypeInvalid         Type = 0
	TypeEcho            Type = 1 // controller → peer, text payload
	TypeEchoReply       Type = 2 // peer → controller, echoes the text back
	TypeIdentityRequest Type = 3 // empty payload
	TypeIdentity        Type = 4 // [effect id u8][info utf-8]
	TypeSetColor        Type = 5 // [r u8][g u8][b u8]
)

func (t Type) String() string {
	switch t {
	case TypeInvalid:
		return "Invalid"
	case TypeEcho:
		return "Echo"
	case TypeEchoReply:
		return "EchoReply"
	case TypeIdentityRequest:
		return "IdentityRequest"
	case TypeIdentity:
		return "Identity"
	case TypeSetColor:
		return "SetColor"
	default:
		return fmt.Sprintf("Type(%d)", uint32(t))
	}
}

// ErrMalformed reports a payload that does not fit its message type.
var ErrMalformed = errors.New("message: malformed payload")

// Message is anything that can be put on the wire.
//
// MarshalPayload must return a buffer the caller owns: implementations never
// hand out internal storage, so serializing the same value twice yields two
// independent buffers.
type Message interface {
	Type() Type
	MarshalPayload() []byte
}

// Echo asks the peer to send the text back. It is the diagnostic message.
type Echo struct {
	Text string
}

func (Echo) Type() Type { return TypeEcho }

func (m Echo) MarshalPayload() []byte { return []byte(m.Text) }

// EchoReply is the peer's answer to Echo.
type EchoReply struct {
	Text string
}

func (EchoReply) Type() Type { return TypeEchoReply }

func (m EchoReply) MarshalPayload() []byte { return []byte(m.Text) }

// IdentityRequest asks the peer which effect it runs.
type IdentityRequest struct{}

func (IdentityRequest) Type() Type { return TypeIdentityRequest }

func (IdentityRequest) MarshalPayload() []byte { return []byte{} }

// Effect ids reported in Identity.
const (
	EffectInvalid uint8 = 0
	EffectBass    uint8 = 1
)

// Identity describes the peer.
type Identity struct {
	EffectID uint8
	Info     string
}

func (Identity) Type() Type { return TypeIdentity }

func (m Identity) MarshalPayload() []byte {
	buf := make([]byte, 0, 1+len(m.Info))
	buf = append(buf, m.EffectID)
	return append(buf, m.Info...)
}

// SetColor sets the headlight to a single RGB color.
type SetColor struct {
	R, G, B uint8
}

func (SetColor) Type() Type { return TypeSetColor }

func (m SetColor) MarshalPayload() []byte { return []byte{m.R, m.G, m.B} }

// Unmarshal decodes payload as a message of type t.
func Unmarshal(t Type, payload []byte) (Message, error) {
	switch t {
	case TypeEcho:
		return Echo{Text: string(payload)}, nil
	case TypeEchoReply:
		return EchoReply{Text: string(payload)}, nil
	case TypeIdentityRequest:
		if len(payload) != 0 {
			return nil, fmt.Errorf("%w: %s carries %d bytes", ErrMalformed, t, len(payload))
		}
		return IdentityRequest{}, nil
	case TypeIdentity:
		if len(payload) < 1 {
			return nil, fmt.Errorf("%w: %s needs an effect id", ErrMalformed, t)
		}
		return Identity{EffectID: payload[0], Info: string(payload[1:])}, nil
	case TypeSetColor:
		if len(payload) != 3 {
			return nil, fmt.Errorf("%w: %s wants 3 bytes, got %d", ErrMalformed, t, len(payload))
		}
		return SetColor{R: payload[0], G: payload[1], B: payload[2]}, nil
	default:
		return nil, fmt.Errorf("message: no payload decoder for %s", t)
	}
}
