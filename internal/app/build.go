package app

import (
	"context"
	"errors"
	"time"

	"book-features/internal/export"
	"book-features/internal/storage"
)

// Build constructs the feature table and writes it to the requested outputs.
func (a *App) Build(ctx context.Context, opts BuildOptions) error {
	if opts.CSVPath == "" && opts.ParquetPath == "" && !opts.Persist {
		return errors.New("at least one of --csv, --parquet or --persist must be provided")
	}

	params, err := a.featureParams()
	if err != nil {
		return err
	}

	table, err := a.buildTable(ctx, params)
	if err != nil {
		return err
	}

	if opts.Persist {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database not configured; cannot persist features")
		}
		defer closeStore()

		run := storage.FeatureRun{Symbol: params.Symbol, BuiltAt: time.Now().UTC()}
		n, err := store.UpsertFeatureRows(ctx, run, table)
		if err != nil {
			return err
		}
		a.Logger.Info().Int("rows", n).Msg("feature rows persisted")
	}

	out := export.Downsample(table, a.Config.ResolveMaxRows(opts.MaxRows))
	if out.Len() < table.Len() {
		a.Logger.Info().Int("total", table.Len()).Int("exported", out.Len()).Msg("downsampled export")
	}

	if opts.CSVPath != "" {
		if err := export.WriteCSV(opts.CSVPath, out); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.CSVPath).Msg("wrote csv")
	}

	if opts.ParquetPath != "" {
		if err := export.WriteParquet(opts.ParquetPath, out, a.Config.Export.ParquetCompressor); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.ParquetPath).Msg("wrote parquet")
	}

	return nil
}
