package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"book-features/internal/app"
)

var inspectLimit int

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Report staleness, gaps and crossed books of the snapshot sample",
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectLimit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}
		return getApp().Inspect(cmd.Context(), app.InspectOptions{Limit: inspectLimit})
	},
}

func init() {
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 0, "Number of snapshots to inspect (defaults to features.sample_limit)")
}
