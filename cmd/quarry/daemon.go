package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quarry/internal/log"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// daemonCmd keeps the catalog fresh in the foreground until interrupted.
func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Keep the catalog fresh in the background",
		Long: `Watch cataloged directories and rescan sources periodically until
interrupted. Caches and learning data are saved on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			if err := a.StartBackground(ctx); err != nil {
				closeApp(ctx, a)
				return err
			}

			dirs := 0
			if a.Watcher != nil {
				dirs = len(a.Watcher.Directories())
			}
			logger.With(
				log.F("sources", len(a.Sources())),
				log.F("watching", dirs),
			).Info("Daemon running")

			<-ctx.Done()
			logger.Info("Shutting down")

			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			closeApp(sctx, a)
			return nil
		},
	}
	return cmd
}
