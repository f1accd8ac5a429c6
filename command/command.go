// Package command issues commands to the headlight over an established
// connection.
package command

import (
	"context"
	"errors"
	"fmt"
	"headlink/message"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// DiagnosticText is the payload of the diagnostic echo.
const DiagnosticText = "Hello, world!"

var (
	ErrReplyMismatch   = errors.New("command: echo reply does not match")
	ErrUnexpectedReply = errors.New("command: unexpected reply")
)

// Conn is the part of a service connection the handler needs.
type Conn interface {
	Send(m message.Message) error
	Receive() (message.Message, error)
}

// Config controls the diagnostic exchange.
type Config struct {
	Text       string // defaults to DiagnosticText
	AwaitReply bool   // wait for the peer's EchoReply
}

// Handler sends commands over a connection it does not own.
type Handler struct {
	conn   Conn
	cfg    Config
	logger zerolog.Logger
}

func NewHandler(conn Conn, cfg Config, logger zerolog.Logger) *Handler {
	if cfg.Text == "" {
		cfg.Text = DiagnosticText
	}
	return &Handler{conn: conn, cfg: cfg, logger: logger}
}

// RunDiagnostic sends one Echo and returns the outcome of that send.
// Memory headroom is logged on the way; it does not affect the result.
// With AwaitReply set it also reads the next frame and requires an
// EchoReply carrying the same text.
func (h *Handler) RunDiagnostic(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.logger.Info().Msg("testing connection")
	echo := message.Echo{Text: h.cfg.Text}

	h.logHeadroom()
	start := time.Now()
	if err := h.conn.Send(echo); err != nil {
		return fmt.Errorf("command: diagnostic echo: %w", err)
	}
	if !h.cfg.AwaitReply {
		return nil
	}

	reply, err := h.conn.Receive()
	if err != nil {
		return fmt.Errorf("command: await echo reply: %w", err)
	}
	got, ok := reply.(message.EchoReply)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnexpectedReply, reply.Type())
	}
	if got.Text != echo.Text {
		return fmt.Errorf("%w: sent %q, got %q", ErrReplyMismatch, echo.Text, got.Text)
	}
	h.logger.Info().Dur("rtt", time.Since(start)).Msg("echo reply received")
	return nil
}

// SetColor sends one SetColor message.
func (h *Handler) SetColor(ctx context.Context, c message.SetColor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.conn.Send(c); err != nil {
		return fmt.Errorf("command: set color: %w", err)
	}
	return nil
}

// Identify asks the peer for its identity and waits for the answer.
func (h *Handler) Identify(ctx context.Context) (message.Identity, error) {
	if err := ctx.Err(); err != nil {
		return message.Identity{}, err
	}
	if err := h.conn.Send(message.IdentityRequest{}); err != nil {
		return message.Identity{}, fmt.Errorf("command: identity request: %w", err)
	}
	reply, err := h.conn.Receive()
	if err != nil {
		return message.Identity{}, fmt.Errorf("command: await identity: %w", err)
	}
	id, ok := reply.(message.Identity)
	if !ok {
		return message.Identity{}, fmt.Errorf("%w: %s", ErrUnexpectedReply, reply.Type())
	}
	return id, nil
}

// logHeadroom reports heap figures, the Go counterpart of the chip's
// minimum free heap size.
func (h *Handler) logHeadroom() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	h.logger.Info().
		Uint64("heap_idle_bytes", ms.HeapIdle).
		Uint64("heap_inuse_bytes", ms.HeapInuse).
		Uint64("sys_bytes", ms.Sys).
		Msg("memory headroom")
}
