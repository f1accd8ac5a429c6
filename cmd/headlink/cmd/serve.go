package cmd

import (
	"fmt"
	"headlink/bootstrap"
	"headlink/logging"
	"headlink/message"
	"headlink/middleware"
	"headlink/server"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a headlight peer",
	Long: `Listens for controllers, announces the service through the configured
discovery backend and answers Echo, IdentityRequest and SetColor messages
until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	headlight := server.NewHeadlight(message.Identity{
		EffectID: cfg.Server.EffectID,
		Info:     cfg.Server.Info,
	}, logging.New("headlight"))

	srv := server.NewServer(headlight.Handle, logging.New("server"))
	srv.Use(middleware.LoggingMiddleware(logger))
	if cfg.Server.RateLimit > 0 {
		srv.Use(middleware.RateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.Burst))
	}
	if cfg.Server.HandlerTimeout > 0 {
		srv.Use(middleware.TimeoutMiddleware(cfg.Server.HandlerTimeout.Std()))
	}

	if err := srv.Listen("tcp4", cfg.Server.Listen); err != nil {
		printError("listen", err)
		return err
	}

	registrar, closeRegistrar, err := bootstrap.OpenRegistrar(cfg.Discovery)
	if err != nil {
		printError("discovery", err)
		return err
	}
	defer closeRegistrar()

	if err := srv.Announce(ctx, registrar, cfg.Service.Type(), cfg.Server.Instance, announceHost(cfg.Server.Host)); err != nil {
		printError("announce", err)
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()
	logger.Info().Stringer("addr", srv.Addr()).Msg("serving")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		if err := srv.Shutdown(shutdownTimeout); err != nil {
			printError("shutdown", err)
			return err
		}
		<-errCh
	case err := <-errCh:
		if err != nil {
			printError("serve", err)
			return err
		}
	}
	logger.Info().Int("messages", headlight.Seen()).Msg("stopped")
	return nil
}

// announceHost returns configured, or "<hostname>.local".
func announceHost(configured string) string {
	if configured != "" {
		return configured
	}
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "headlight.local"
	}
	name = strings.SplitN(name, ".", 2)[0]
	return fmt.Sprintf("%s.local", name)
}
