package cmd

import (
	"context"
	"fmt"
	"headlink/bootstrap"
	"headlink/config"
	"headlink/logging"
	"headlink/registry"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "headlink",
	Short: "Link a controller to an audio-reactive headlight",
	Long: `headlink finds a headlight service on the local network, connects to it
over TCP and talks to it with length-prefixed binary frames.

Commands:
  run      - discover the peer and send one diagnostic echo
  serve    - run a headlight peer and announce it
  chase    - stream a hue chase to the peer
  version  - print the build version`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (.toml or .yaml, default: built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
}

// loadConfig reads --config (if any), applies --verbose and sets up logging.
func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg := config.Default()
	if cfgFile != "" {
		var err error
		if cfg, err = config.Load(cfgFile); err != nil {
			printError("config", err)
			return config.Config{}, zerolog.Nop(), err
		}
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, logging.Configure("headlink", cfg.Log), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newLocator wires the configured discovery backend into a Locator.
func newLocator(cfg config.Config) (*registry.Locator, func() error, error) {
	resolver, closeFn, err := bootstrap.OpenResolver(cfg.Discovery)
	if err != nil {
		return nil, nil, err
	}
	loc := registry.NewLocator(resolver,
		registry.WithDomain(cfg.Service.Domain),
		registry.WithTimeout(cfg.Discovery.Timeout.Std()),
		registry.WithMaxResults(cfg.Discovery.MaxResults),
		registry.WithLogger(logging.New("locator")),
	)
	return loc, closeFn, nil
}
