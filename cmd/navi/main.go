package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/navi/internal/config"
	"github.com/jask/navi/internal/logging"
)

// cli carries state shared by every subcommand.
type cli struct {
	cfg     config.Config
	logger  *zap.Logger
	verbose bool
	driver  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "navi",
		Short:         "Navi finance assistant tools",
		Long:          "Runs the finance tools the assistant calls, keeps the offline cache and replays queued writes.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if c.driver != "" {
				cfg.Remote.Driver = c.driver
			}
			if c.verbose {
				cfg.Log.Level = "debug"
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			c.cfg, c.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&c.driver, "remote", "", "remote store driver (pocketbase|memory)")

	root.AddCommand(
		newToolCmd(c),
		newChatCmd(c),
		newSyncCmd(c),
		newQueueCmd(c),
		newStatsCmd(c),
		newResetCmd(c),
		newTokenCmd(c),
		newSeedCmd(c),
		newInitCmd(c),
	)
	return root
}
