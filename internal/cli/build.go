package cli

import (
	"github.com/spf13/cobra"

	"book-features/internal/app"
)

var (
	buildCSVPath     string
	buildParquetPath string
	buildPersist     bool
	buildMaxRows     int
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the feature table and export or persist it",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.BuildOptions{
			CSVPath:     buildCSVPath,
			ParquetPath: buildParquetPath,
			Persist:     buildPersist,
			MaxRows:     buildMaxRows,
		}

		return getApp().Build(cmd.Context(), opts)
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildCSVPath, "csv", "", "Path to write CSV features")
	buildCmd.Flags().StringVar(&buildParquetPath, "parquet", "", "Path to write Parquet features")
	buildCmd.Flags().BoolVar(&buildPersist, "persist", false, "Upsert feature rows into PostgreSQL")
	buildCmd.Flags().IntVar(&buildMaxRows, "max-rows", 0, "Maximum rows to export (defaults to config)")
}
