package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/ringsideapp/ringside/internal/preload"
	"github.com/spf13/cobra"
)

func preloadCmd(flags *rootFlags) *cobra.Command {
	var label string
	var estimateOnly bool

	cmd := &cobra.Command{
		Use:   "preload <license-key>",
		Short: "Download a show's classes, trials and entries for offline use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			license := args[0]

			est, err := app.Preload.EstimateShowSize(ctx, license)
			if err != nil {
				return err
			}
			fmt.Printf("%d classes, %d trials, %d entries (~%.1f MB)\n",
				est.Counts.Classes, est.Counts.Trials, est.Counts.Entries,
				float64(est.EstimatedBytes)/(1024*1024))
			if estimateOnly {
				return nil
			}

			snapshot, err := app.Preload.PreloadShow(ctx, preload.Options{
				LicenseKey: license,
				Label:      label,
				TTL:        app.Config.PreloadTTL,
				BatchSize:  app.Config.PreloadBatchSize,
				OnProgress: func(p preload.Progress) {
					if p.Stage == preload.StageError {
						return
					}
					fmt.Printf("\r%-10s %d/%d        ", p.Stage, p.Current, p.Total)
				},
			})
			fmt.Println()
			if err != nil {
				return err
			}

			color.Green("preloaded %q, expires %s",
				snapshot.Label, snapshot.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "human-readable show label")
	cmd.Flags().BoolVar(&estimateOnly, "estimate", false, "print the size estimate and stop")
	return cmd
}

func showsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shows",
		Short: "List preloaded shows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			shows, err := app.Preload.GetAllPreloadedShows(ctx)
			if err != nil {
				return err
			}
			if len(shows) == 0 {
				fmt.Println("no shows preloaded")
				return nil
			}
			for _, s := range shows {
				fmt.Printf("%-20s %-30s %5d entries  expires %s\n",
					s.LicenseKey, s.Label, s.EntryCount,
					s.ExpiresAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <license-key>",
		Short: "Remove a preloaded show and its cached data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			app.Preload.DeletePreloadedShow(ctx, args[0])
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Remove all expired preloaded shows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			removed, err := app.Preload.CleanupExpiredShows(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d expired show(s)\n", removed)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "extend <license-key>",
		Short: "Push a preloaded show's expiry out without re-downloading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Preload.ExtendShowExpiration(ctx, args[0], app.Config.PreloadTTL); err != nil {
				return err
			}
			fmt.Printf("extended %s\n", args[0])
			return nil
		},
	})

	return cmd
}
