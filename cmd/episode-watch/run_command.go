package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newRunCommand garde un moteur dans ce processus jusqu'à SIGINT/SIGTERM.
func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run detection in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return ctx.withSession(runCtx, func(s *session) error {
				if s.controller.Background() {
					return fmt.Errorf("a background worker is already running at %s", ctx.config.WorkerURL)
				}
				if err := s.watchlist.Boot(runCtx); err != nil {
					return err
				}
				go ctx.local.Watch(runCtx)

				fmt.Fprintf(cmd.OutOrStdout(), "Watching %d subscription(s), press Ctrl+C to stop\n", len(s.watchlist.List(runCtx)))
				<-runCtx.Done()
				return nil
			})
		},
	}
}
