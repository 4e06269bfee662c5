package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/ringsideapp/ringside/internal/conflict"
	"github.com/ringsideapp/ringside/internal/models"
	"github.com/spf13/cobra"
)

func conflictsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List and arbitrate score conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer app.Close()

			pending := app.Conflicts.PendingConflicts()
			if len(pending) == 0 {
				fmt.Println("no pending conflicts")
				return nil
			}
			for _, c := range pending {
				color.Red("%s  [%s]", c.ID, c.Type)
				fmt.Printf("  %s\n", conflict.Summary(c))
			}
			return nil
		},
	}

	var use string
	resolve := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Resolve one conflict, keeping the chosen side",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			action := models.ResolutionAction(use)
			if action != models.ResolutionLocal && action != models.ResolutionRemote {
				return fmt.Errorf("--use must be %q or %q", models.ResolutionLocal, models.ResolutionRemote)
			}
			if err := app.Conflicts.Resolve(ctx, args[0], models.Resolution{Action: action}); err != nil {
				return err
			}
			color.Green("resolved %s (%s)", args[0], use)
			return nil
		},
	}
	resolve.Flags().StringVar(&use, "use", "remote", "which side wins: local or remote")
	cmd.AddCommand(resolve)

	cmd.AddCommand(&cobra.Command{
		Use:   "ignore <conflict-id>",
		Short: "Keep the server version and drop the local edit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Conflicts.Ignore(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("ignored %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Purge resolved and ignored conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			fmt.Printf("purged %d conflict(s)\n", app.Conflicts.ClearResolvedConflicts(ctx))
			return nil
		},
	})

	return cmd
}
