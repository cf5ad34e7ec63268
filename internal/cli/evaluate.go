package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"book-features/internal/app"
)

var (
	evaluateTargets   []string
	evaluateWindow    int
	evaluateChartPath string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Walk-forward validate the features against their mid-price labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		if evaluateWindow < 0 {
			return fmt.Errorf("--window must not be negative")
		}

		opts := app.EvaluateOptions{
			Targets:   evaluateTargets,
			Window:    evaluateWindow,
			ChartPath: evaluateChartPath,
		}

		return getApp().Evaluate(cmd.Context(), opts)
	},
}

func init() {
	evaluateCmd.Flags().StringSliceVar(&evaluateTargets, "target", nil, "Label column to evaluate (repeatable, defaults to all)")
	evaluateCmd.Flags().IntVar(&evaluateWindow, "window", 0, "Walk-forward window size in rows (defaults to config)")
	evaluateCmd.Flags().StringVar(&evaluateChartPath, "chart", "", "Path to write a PNG chart of the scores")
}
