package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"book-features/internal/export"
	"book-features/internal/validation"
)

// Evaluate builds the feature table and runs the walk-forward sweep over its
// label columns.
func (a *App) Evaluate(ctx context.Context, opts EvaluateOptions) error {
	params, err := a.featureParams()
	if err != nil {
		return err
	}

	table, err := a.buildTable(ctx, params)
	if err != nil {
		return err
	}

	window := opts.Window
	if window <= 0 {
		window = a.Config.Validation.Window
	}
	validator := validation.NewValidator(window, a.Logger)

	evals, err := validator.Sweep(ctx, table, a.sweepOptions(opts.Targets))
	if err != nil {
		return err
	}

	printEvaluations(os.Stdout, evals)

	if opts.ChartPath != "" {
		if err := export.WriteScoresPNG(opts.ChartPath, evals); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.ChartPath).Msg("wrote score chart")
	}
	return nil
}

func printEvaluations(w io.Writer, evals []validation.Evaluation) {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Target\tModel\tRows\tFolds\tIn-sample\tOut-of-sample")
	for _, e := range evals {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%.4f\t%.4f\n",
			e.Target,
			e.Kind,
			e.Rows,
			len(e.Result.Folds),
			e.Result.InSample,
			e.Result.OutSample,
		)
	}
	writer.Flush()
}
