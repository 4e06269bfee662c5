package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func syncCmd(flags *rootFlags) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push queued local edits to the scoring backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			if watch {
				fmt.Printf("syncing every %s, ctrl-c to stop\n", app.Config.SyncInterval)
				app.Syncer.Run(ctx, app.Config.SyncInterval)
				return nil
			}

			result, err := app.Syncer.SyncOnce(ctx)
			if result.Synced > 0 {
				color.Green("synced %d change(s)", result.Synced)
			}
			if result.Failed > 0 {
				color.Yellow("%d change(s) still queued", result.Failed)
			}
			if result.Held > 0 {
				color.Yellow("%d change(s) held for conflict arbitration", result.Held)
			}
			if result.Synced == 0 && result.Failed == 0 && result.Held == 0 {
				fmt.Println("nothing to sync")
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep syncing on the configured interval")
	return cmd
}

func statusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local state and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			stats := app.State.Stats()
			fmt.Printf("entries:          %d\n", stats.TotalEntries)
			if stats.PendingChanges > 0 {
				color.Yellow("pending changes:  %d", stats.PendingChanges)
			} else {
				fmt.Printf("pending changes:  0\n")
			}
			if stats.LastSync.IsZero() {
				fmt.Println("last server sync: never")
			} else {
				fmt.Printf("last server sync: %s (%s ago)\n",
					stats.LastSync.Local().Format(time.RFC822),
					time.Since(stats.LastSync).Round(time.Second))
			}

			shows, err := app.Preload.GetAllPreloadedShows(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("preloaded shows:  %d\n", len(shows))
			return nil
		},
	}
}
