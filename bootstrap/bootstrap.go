// Package bootstrap runs the controller pipeline end to end:
//
//	wait for network → Locator.Find → ServiceConn.Connect → Handler.RunDiagnostic
//
// Each step completes before the next starts. All state, including retry
// counters, lives in the call frame of Run; the configuration is passed in.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"headlink/command"
	"headlink/config"
	"headlink/registry"
	"headlink/transport"
	"net/netip"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

var ErrNetworkUnavailable = errors.New("bootstrap: no usable IPv4 network")

// Locator finds the peer's address.
type Locator interface {
	Find(ctx context.Context, service, proto string) (registry.ServiceAddress, error)
}

// Deps are the collaborators of Run. Zero fields get production defaults
// except Locator, which is required.
type Deps struct {
	Locator   Locator
	Dialer    transport.Dialer                         // nil: *net.Dialer
	HostAddrs func(iface string) ([]netip.Addr, error) // nil: registry.HostIPv4s
	Sleep     func(ctx context.Context, d time.Duration) error
	Logger    zerolog.Logger
}

// Run brings the link up once per attempt and sends the diagnostic echo.
// It returns nil on the first attempt that succeeds, otherwise the error of
// the last attempt.
func Run(ctx context.Context, cfg config.Config, deps Deps) error {
	if deps.Locator == nil {
		return errors.New("bootstrap: locator is required")
	}
	if deps.HostAddrs == nil {
		deps.HostAddrs = registry.HostIPv4s
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepCtx
	}
	logger := deps.Logger

	logHostInfo(logger)

	if err := waitForNetwork(ctx, cfg.Network, deps); err != nil {
		return err
	}

	attempts := max(cfg.Run.Attempts, 1)
	backoff := Backoff{InitialDelay: cfg.Run.AttemptDelay.Std(), Multiplier: 1}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = runOnce(ctx, cfg, deps)
		if err == nil {
			return nil
		}
		logger.Warn().Err(err).Int("attempt", attempt).Int("of", attempts).Msg("link attempt failed")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < attempts {
			if serr := deps.Sleep(ctx, backoff.Delay(attempt)); serr != nil {
				return serr
			}
		}
	}
	return err
}

func runOnce(ctx context.Context, cfg config.Config, deps Deps) error {
	addr, err := deps.Locator.Find(ctx, cfg.Service.Name, cfg.Service.Proto)
	if err != nil {
		return fmt.Errorf("find service: %w", err)
	}

	conn := transport.New(deps.Dialer, transport.Options{
		DialTimeout:  cfg.Connection.DialTimeout.Std(),
		WriteTimeout: cfg.Connection.WriteTimeout.Std(),
		ReadTimeout:  cfg.Connection.ReadTimeout.Std(),
	}, deps.Logger)
	if err := conn.Connect(ctx, addr); err != nil {
		return fmt.Errorf("connect to service: %w", err)
	}
	defer conn.Close()

	handler := command.NewHandler(conn, command.Config{
		Text:       cfg.Diagnostic.Text,
		AwaitReply: cfg.Diagnostic.AwaitReply,
	}, deps.Logger)
	return handler.RunDiagnostic(ctx)
}

// waitForNetwork polls for a non-loopback IPv4 address, the host-side
// equivalent of waiting for the station to associate and get an IP.
func waitForNetwork(ctx context.Context, cfg config.NetworkConfig, deps Deps) error {
	backoff := Backoff{
		InitialDelay: cfg.RetryDelay.Std(),
		MaxDelay:     cfg.MaxRetryDelay.Std(),
		Multiplier:   2,
	}
	for retry := 0; ; retry++ {
		addrs, err := deps.HostAddrs(cfg.Interface)
		if err == nil && len(addrs) > 0 {
			deps.Logger.Info().Stringer("ip", addrs[0]).Msg("network up")
			return nil
		}
		if retry >= cfg.MaxRetries {
			if err != nil {
				return fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
			}
			return ErrNetworkUnavailable
		}
		deps.Logger.Info().Int("retry", retry+1).Msg("waiting for network")
		if err := deps.Sleep(ctx, backoff.Delay(retry+1)); err != nil {
			return err
		}
	}
}

func logHostInfo(logger zerolog.Logger) {
	host, _ := os.Hostname()
	logger.Info().
		Str("host", host).
		Str("os", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Str("go", runtime.Version()).
		Msg("starting")
}
