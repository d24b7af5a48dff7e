package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/syncer"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send queued changes to the server",
		Long: `Send queued changes to the server, oldest first, stopping at the first
entry that cannot be delivered.

Exit codes:
  0 - queue drained
  1 - entries remain (server unreachable or an entry needs attention)
  2 - command error`,
		Args: cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, _ []string) error {
			if a.cfg.Server.URL == "" {
				return NewExitError(ExitCommandError, "server.url is not configured")
			}
			res, err := a.engine.Sync(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "sync failed", err)
			}
			if err := out.Success(syncView(res)); err != nil {
				return err
			}
			if res.Remaining > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d entries not synced (%s)", res.Remaining, res.State))
			}
			return nil
		}),
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and queue state",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, _ []string) error {
			view := statusView{Device: a.cfg.Device.ID, Server: a.cfg.Server.URL}
			if view.Server != "" {
				view.Online = a.client.Ping(ctx) == nil
			}

			var err error
			if view.Unsynced, err = a.st.QueueCount(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to count queue", err)
			}
			if view.Attention, err = a.st.AttentionCount(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to count queue", err)
			}
			run, err := a.st.LatestSyncRun(ctx)
			switch {
			case err == nil:
				view.LastSync = &run
			case !errors.Is(err, store.ErrNotFound):
				return WrapExitError(ExitCommandError, "failed to read sync history", err)
			}
			return out.Success(view)
		}),
	}
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and release queued changes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued changes in send order",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, _ []string) error {
			entries, err := a.st.QueueEntries(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list queue", err)
			}
			return out.Success(queueList(entries))
		}),
	})
	cmd.AddCommand(newQueueReleaseCommand(rootOpts, "retry", "Resend an entry the server refused"))
	cmd.AddCommand(newQueueReleaseCommand(rootOpts, "discard", "Drop an entry the server refused"))
	return cmd
}

func newQueueReleaseCommand(rootOpts *RootOptions, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <entry-id>",
		Short: short,
		Long: short + `. Only entries marked needs_attention can be released; the
local change they carry is kept either way.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, args []string) error {
			release := a.engine.Retry
			if verb == "discard" {
				release = a.engine.Discard
			}
			if err := release(ctx, args[0]); err != nil {
				if errors.Is(err, syncer.ErrEntryNotFound) || errors.Is(err, syncer.ErrNotHeld) {
					return WrapExitError(ExitFailure, "cannot "+verb+" entry", err)
				}
				return WrapExitError(ExitCommandError, "failed to "+verb+" entry", err)
			}
			entries, err := a.st.QueueEntries(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list queue", err)
			}
			return out.Success(queueList(entries))
		}),
	}
}
