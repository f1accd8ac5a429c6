package cmd

import (
	"errors"
	"headlink/command"
	"headlink/led"
	"headlink/transport"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var chaseFrames int

var chaseCmd = &cobra.Command{
	Use:   "chase",
	Short: "Stream a hue chase to the peer",
	Long: `Discovers the peer like run does, then sends SetColor messages walking
the hue circle at chase.rate colors per second.`,
	RunE: runChase,
}

func init() {
	chaseCmd.Flags().IntVar(&chaseFrames, "frames", -1, "colors to send (0 = until interrupted, default: chase.frames)")
	rootCmd.AddCommand(chaseCmd)
}

func runChase(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if chaseFrames >= 0 {
		cfg.Chase.Frames = chaseFrames
	}
	ctx, stop := signalContext()
	defer stop()

	loc, closeResolver, err := newLocator(cfg)
	if err != nil {
		printError("discovery", err)
		return err
	}
	defer closeResolver()

	addr, err := loc.Find(ctx, cfg.Service.Name, cfg.Service.Proto)
	if err != nil {
		printError("find service", err)
		return err
	}
	conn := transport.New(nil, transport.Options{
		DialTimeout:  cfg.Connection.DialTimeout.Std(),
		WriteTimeout: cfg.Connection.WriteTimeout.Std(),
		ReadTimeout:  cfg.Connection.ReadTimeout.Std(),
	}, logger)
	if err := conn.Connect(ctx, addr); err != nil {
		printError("connect", err)
		return err
	}
	defer conn.Close()

	handler := command.NewHandler(conn, command.Config{Text: cfg.Diagnostic.Text}, logger)
	chase := &led.Chase{
		Step:       cfg.Chase.Step,
		Saturation: cfg.Chase.Saturation,
		Value:      cfg.Chase.Value,
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.Chase.Rate), 1)

	start := time.Now()
	sent, err := led.Run(ctx, handler, chase, limiter, cfg.Chase.Frames)
	logger.Info().Int("colors", sent).Dur("elapsed", time.Since(start)).Msg("chase finished")
	if err != nil && !errors.Is(err, ctx.Err()) {
		printError("chase", err)
		return err
	}
	return nil
}
