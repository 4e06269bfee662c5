package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the ringside command tree.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "ringside",
		Short: "Offline-first scoring companion for dog-sport trials",
		Long: `Ringside keeps a show's entries available and editable while the venue
network is down, then reconciles local edits with the scoring backend once
connectivity returns.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to JSON config file")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "path to the local database")
	root.PersistentFlags().StringVar(&flags.backend, "backend", "", "scoring API base URL")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(preloadCmd(flags))
	root.AddCommand(showsCmd(flags))
	root.AddCommand(syncCmd(flags))
	root.AddCommand(statusCmd(flags))
	root.AddCommand(conflictsCmd(flags))

	return root
}
