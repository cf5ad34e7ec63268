package cli

import (
	"github.com/spf13/cobra"

	"book-features/internal/app"
)

var (
	ingestSnapshots string
	ingestTrades    string
	ingestBatchSize int
	ingestDryRun    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load JSON-lines snapshot and trade dumps into PostgreSQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.IngestOptions{
			SnapshotsPath: ingestSnapshots,
			TradesPath:    ingestTrades,
			BatchSize:     ingestBatchSize,
			DryRun:        ingestDryRun,
		}

		return getApp().Ingest(cmd.Context(), opts)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSnapshots, "snapshots", "", "Path to a JSON-lines snapshot dump")
	ingestCmd.Flags().StringVar(&ingestTrades, "trades", "", "Path to a JSON-lines trade dump")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 1000, "Records per insert batch")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "Decode and validate without writing to storage")
}
