package server

import (
	"context"
	"headlink/message"
	"sync"

	"github.com/rs/zerolog"
)

// Headlight is the default peer behavior.
//
//	Echo            → EchoReply with the same text
//	IdentityRequest → Identity
//	SetColor        → remembered as the current color, no reply
type Headlight struct {
	identity message.Identity
	logger   zerolog.Logger

	mu    sync.Mutex
	color message.SetColor
	seen  int
}

func NewHeadlight(identity message.Identity, logger zerolog.Logger) *Headlight {
	return &Headlight{identity: identity, logger: logger}
}

// Handle satisfies middleware.HandlerFunc.
func (h *Headlight) Handle(ctx context.Context, req message.Message) (message.Message, error) {
	h.mu.Lock()
	h.seen++
	h.mu.Unlock()

	switch m := req.(type) {
	case message.Echo:
		h.logger.Info().Str("text", m.Text).Msg("received echo")
		return message.EchoReply{Text: m.Text}, nil
	case message.IdentityRequest:
		return h.identity, nil
	case message.SetColor:
		h.mu.Lock()
		h.color = m
		h.mu.Unlock()
		h.logger.Debug().Uint8("r", m.R).Uint8("g", m.G).Uint8("b", m.B).Msg("set color")
		return nil, nil
	default:
		h.logger.Debug().Stringer("type", req.Type()).Msg("ignoring message")
		return nil, nil
	}
}

// Color returns the last color set.
func (h *Headlight) Color() message.SetColor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.color
}

// Seen returns how many messages were handled.
func (h *Headlight) Seen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seen
}
