// Package server implements the headlight peer: it accepts controller
// connections, decodes frames and answers them.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (one goroutine per connection, frames in order)
//	  → codec.Parse → Middleware Chain → handler → codec.Serialize → write reply
//
// Frames on one connection are handled sequentially so replies keep the
// order of requests.
package server

import (
	"context"
	"errors"
	"fmt"
	"headlink/codec"
	"headlink/middleware"
	"headlink/protocol"
	"headlink/registry"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Server serves framed messages over TCP.
type Server struct {
	handler     middleware.HandlerFunc  // final chain: middleware(...(handler))
	middlewares []middleware.Middleware // applied in the order added
	limits      protocol.Limits
	logger      zerolog.Logger

	listener net.Listener
	wg       sync.WaitGroup // open connections
	shutdown atomic.Bool    // set before closing the listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	registrar   registry.Registrar // nil when not announced
	serviceType string
	instance    registry.Instance
}

// NewServer returns a server that dispatches every decoded message to h.
func NewServer(h middleware.HandlerFunc, logger zerolog.Logger) *Server {
	return &Server{
		handler: h,
		limits:  protocol.DefaultLimits(),
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Use registers a middleware. Must be called before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Listen binds the listener. Port 0 picks an ephemeral port.
func (s *Server) Listen(network, address string) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info().Stringer("addr", ln.Addr()).Msg("listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Announce registers the listener with reg under serviceType
// (e.g. "_RtAudioEffect._tcp"). The instance carries a random id in its TXT
// records. With a wildcard listener all host IPv4 addresses are announced.
func (s *Server) Announce(ctx context.Context, reg registry.Registrar, serviceType, name, host string) error {
	if s.listener == nil {
		return errors.New("server: announce before listen")
	}
	ap, err := netip.ParseAddrPort(s.listener.Addr().String())
	if err != nil {
		return fmt.Errorf("server: listener address: %w", err)
	}

	addrs := []netip.Addr{ap.Addr().Unmap()}
	if ap.Addr().IsUnspecified() {
		if addrs, err = registry.HostIPv4s(""); err != nil {
			return err
		}
	}

	inst := registry.Instance{
		Name:  name,
		Host:  host,
		Port:  ap.Port(),
		Addrs: addrs,
		Text:  []string{"id=" + uuid.NewString()},
	}
	if err := reg.Register(ctx, serviceType, inst); err != nil {
		return fmt.Errorf("server: announce %s: %w", serviceType, err)
	}
	s.registrar = reg
	s.serviceType = serviceType
	s.instance = inst
	s.logger.Info().Str("service", serviceType).Str("instance", name).Uint16("port", inst.Port).Msg("announced")
	return nil
}

// Serve runs the accept loop until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server: serve before listen")
	}

	// Build the middleware chain once, not per message.
	chained := middleware.Chain(s.middlewares...)(s.handler)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go s.handleConn(conn, chained)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// handleConn reads frames sequentially. A decode error on a single frame is
// logged and skipped; a stream error ends the connection.
func (s *Server) handleConn(conn net.Conn, h middleware.HandlerFunc) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	logger := s.logger.With().Stringer("remote", conn.RemoteAddr()).Logger()
	logger.Info().Msg("new connection")
	ctx := context.Background()

	for {
		f, err := protocol.ReadFrame(conn, s.limits)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.shutdown.Load() {
				logger.Warn().Err(err).Msg("read frame")
			}
			return
		}

		req, err := codec.Parse(f)
		if err != nil {
			logger.Warn().Err(err).Uint32("type", f.Type).Msg("dropping frame")
			continue
		}

		reply, err := h(ctx, req)
		if err != nil {
			logger.Warn().Err(err).Stringer("type", req.Type()).Msg("handler failed")
			continue
		}
		if reply == nil {
			continue
		}
		if _, err := conn.Write(codec.Serialize(reply)); err != nil {
			logger.Warn().Err(err).Stringer("type", reply.Type()).Msg("write reply")
			return
		}
	}
}

// Shutdown performs a graceful shutdown:
//  1. Withdraw the announcement so controllers stop finding this peer
//  2. Set the shutdown flag, then close the listener
//  3. Close open connections and wait for their goroutines (with timeout)
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.registrar != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := s.registrar.Deregister(ctx, s.serviceType, s.instance.Name); err != nil {
			s.logger.Warn().Err(err).Msg("deregister")
		}
		cancel()
	}

	// Flag first: otherwise Serve sees the Accept error before the flag is set.
	s.mu.Lock()
	s.shutdown.Store(true)
	s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for connections to finish")
	}
}
