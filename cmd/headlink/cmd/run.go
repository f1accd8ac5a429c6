package cmd

import (
	"headlink/bootstrap"
	"headlink/logging"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover the peer and send the diagnostic echo",
	Long: `Waits for an IPv4 network, browses for the configured service, connects
to the first IPv4 address found and sends one Echo message.

The exit status reflects whether the echo was sent (and, with
diagnostic.await_reply, answered).`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	loc, closeResolver, err := newLocator(cfg)
	if err != nil {
		printError("discovery", err)
		return err
	}
	defer closeResolver()

	err = bootstrap.Run(ctx, cfg, bootstrap.Deps{
		Locator: loc,
		Logger:  logging.New("bootstrap"),
	})
	if err != nil {
		printError("run", err)
		return err
	}
	logger.Info().Msg("diagnostic sent")
	return nil
}
