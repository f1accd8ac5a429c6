// Package transport owns the single outbound stream connection to a
// discovered headlight service.
//
// A ServiceConn is used by one goroutine at a time, strictly in order:
//
//	Connect ──→ Send ──→ Send ──→ ... ──→ Close
//
// There is no reconnect, keep-alive or multiplexing. A fresh ServiceConn is
// needed to connect again.
package transport

import (
	"context"
	"errors"
	"fmt"
	"headlink/codec"
	"headlink/message"
	"headlink/protocol"
	"headlink/registry"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidAddress   = errors.New("transport: invalid service address")
	ErrNotConnected     = errors.New("transport: not connected")
	ErrAlreadyConnected = errors.New("transport: already connected")
)

// Dialer opens stream connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options tune a ServiceConn. Zero values mean "no deadline".
type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	Limits       protocol.Limits
}

// ServiceConn is the exclusive owner of one TCP connection.
type ServiceConn struct {
	dialer Dialer
	opts   Options
	logger zerolog.Logger

	conn net.Conn // nil until Connect succeeds, nil again after Close
	addr registry.ServiceAddress
}

// New returns an unconnected ServiceConn. A nil dialer means a plain
// *net.Dialer.
func New(dialer Dialer, opts Options, logger zerolog.Logger) *ServiceConn {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if opts.Limits.MaxPayload == 0 {
		opts.Limits = protocol.DefaultLimits()
	}
	return &ServiceConn{dialer: dialer, opts: opts, logger: logger}
}

// Connect dials addr with a blocking TCP connect.
// An invalid address fails before the dialer is touched. On failure no
// connection is retained.
func (c *ServiceConn) Connect(ctx context.Context, addr registry.ServiceAddress) error {
	if !addr.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, addr)
	}
	if c.conn != nil {
		return ErrAlreadyConnected
	}

	if c.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp4", addr.String())
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		c.logger.Error().Err(err).Stringer("addr", addr).Msg("connection failed")
		return fmt.Errorf("transport: connect %v: %w", addr, err)
	}

	c.conn = conn
	c.addr = addr
	c.logger.Info().Stringer("addr", addr).Msg("connected")
	return nil
}

// Connected reports whether a connection is currently held.
func (c *ServiceConn) Connected() bool {
	return c.conn != nil
}

// Addr returns the address of the current connection.
func (c *ServiceConn) Addr() registry.ServiceAddress {
	return c.addr
}

// Send serializes m and writes the whole frame with one Write call.
// The frame buffer is private to this call. A failed or short write is final
// for this message; nothing is retried.
func (c *ServiceConn) Send(m message.Message) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	buf := codec.Serialize(m)
	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return fmt.Errorf("transport: set write deadline: %w", err)
		}
	}

	n, err := c.conn.Write(buf)
	if err == nil && n != len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		c.logger.Error().Err(err).Stringer("type", m.Type()).Msg("failed to send message")
		return fmt.Errorf("transport: send %s: %w", m.Type(), err)
	}
	c.logger.Debug().Stringer("type", m.Type()).Int("bytes", n).Msg("sent")
	return nil
}

// Receive blocks until one frame arrives and decodes it.
func (c *ServiceConn) Receive() (message.Message, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	if c.opts.ReadTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)); err != nil {
			return nil, fmt.Errorf("transport: set read deadline: %w", err)
		}
	}

	f, err := protocol.ReadFrame(c.conn, c.opts.Limits)
	if err != nil {
		return nil, fmt.Errorf("transport: receive: %w", err)
	}
	return codec.Parse(f)
}

// Close releases the connection. It closes the handle exactly once; further
// calls return nil.
func (c *ServiceConn) Close() error {
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	c.logger.Debug().Stringer("addr", c.addr).Msg("closing connection")
	return conn.Close()
}
