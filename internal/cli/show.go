package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"book-features/internal/app"
)

var (
	showLimit int
	showJSON  bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recently persisted feature rows",
	Long:  "Display the newest persisted feature rows of the configured symbol, as a table or as JSON lines.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().Show(cmd.Context(), app.ShowOptions{Limit: showLimit, JSON: showJSON})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print rows as JSON lines instead of a table")
}
