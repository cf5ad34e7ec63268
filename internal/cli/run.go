package cli

import (
	"github.com/spf13/cobra"
)

var runEvaluate bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Rebuild features on a schedule",
	Long:  "Rebuild and persist the feature table every scheduler.interval until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if runEvaluate {
			a.Config.Scheduler.Evaluate = true
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runEvaluate, "evaluate", false, "Run the walk-forward sweep after every rebuild (overrides scheduler.evaluate)")
}
