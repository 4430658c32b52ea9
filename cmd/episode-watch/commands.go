package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/episode-watch/internal/app"
	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
)

func newSubscribeCommand(ctx *commandContext) *cobra.Command {
	var title, poster string
	cmd := &cobra.Command{
		Use:   "subscribe <item-id>",
		Short: "Follow an item and get notified of new episodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				item, err := s.watchlist.Subscribe(cmd.Context(), domain.TrackedItem{ID: args[0], Title: title, Poster: poster})
				if errors.Is(err, app.ErrPermissionDenied) {
					return fmt.Errorf("notifications are not allowed: enable a notifier or reset the permission")
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subscribed to %s\n", item.DisplayTitle())
				warnForeground(cmd.ErrOrStderr(), s)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Display title (fetched from the content API when empty)")
	cmd.Flags().StringVar(&poster, "poster", "", "Poster URL")
	return cmd
}

func newUnsubscribeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe <item-id>",
		Short: "Stop following an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				removed, err := s.watchlist.Unsubscribe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is not subscribed\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unsubscribed from %s\n", args[0])
				return nil
			})
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				items := s.watchlist.List(cmd.Context())
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No subscriptions")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, it := range items {
					added := ""
					if !it.AddedAt.IsZero() {
						added = it.AddedAt.Local().Format("2006-01-02 15:04")
					}
					rows = append(rows, []string{it.ID, it.DisplayTitle(), added})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Title", "Added"}, rows, nil))
				return nil
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the detection service state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				st, err := s.watchlist.Status(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStatus(st, s.controller.Background()))
				return nil
			})
		},
	}
}

func renderStatus(st domain.ServiceState, background bool) string {
	mode := "in-process"
	if background {
		mode = "background worker"
	}
	running := "stopped"
	if st.IsRunning {
		running = "running"
	}
	last := "never"
	if st.LastSweepAt != nil {
		last = st.LastSweepAt.Local().Format(time.DateTime)
	}
	rows := [][]string{
		{"Mode", mode},
		{"Detection", running},
		{"Last sweep", last},
		{"Tracked items", strconv.Itoa(st.TrackedCount)},
		{"Pending alerts", strconv.Itoa(st.PendingAlertCount)},
		{"Known baselines", strconv.Itoa(st.CachedBaselineCount)},
	}
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check every subscription now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				if err := s.watchlist.Refresh(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Check requested")
				return nil
			})
		},
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start detection for the current subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				if len(s.watchlist.List(cmd.Context())) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No subscriptions, nothing to start")
					return nil
				}
				if err := s.watchlist.Boot(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Detection started")
				warnForeground(cmd.ErrOrStderr(), s)
				return nil
			})
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop detection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				if err := s.controller.Stop(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Detection stopped")
				return nil
			})
		},
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification from the detection context",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				if err := s.controller.TestNotification(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
				return nil
			})
		},
	}
}

// warnForeground prévient que la détection s'arrêtera avec ce processus.
func warnForeground(w io.Writer, s *session) {
	if s.controller.Background() {
		return
	}
	fmt.Fprintln(w, "No background worker answered: detection only runs while `episode-watch run` is active.")
}
