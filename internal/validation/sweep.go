package validation

import (
	"context"
	"fmt"
	"sort"

	"book-features/internal/features"
	"book-features/internal/market"
	"book-features/internal/model"
)

// Evaluation is the walk-forward outcome of one model kind on one label.
type Evaluation struct {
	Target string
	Kind   model.Kind
	Rows   int
	Result Result
}

// SweepOptions selects the labels and model kinds of a sweep.
type SweepOptions struct {
	// Targets are label columns; empty means every label column in the table.
	Targets []string
	Kinds   []model.Kind
	Ridge   float64
}

// Sweep validates every requested model kind against every label column of
// tbl. Features are all non-label columns. Rows missing any feature or the
// target are left out for that target. Results are grouped by model kind and
// ordered by ascending out-of-sample score within each kind.
func (v *Validator) Sweep(ctx context.Context, tbl *features.Table, opts SweepOptions) ([]Evaluation, error) {
	var featureNames, labels []string
	for _, name := range tbl.Names() {
		if features.IsLabelColumn(name) {
			labels = append(labels, name)
		} else {
			featureNames = append(featureNames, name)
		}
	}
	targets := opts.Targets
	if len(targets) == 0 {
		targets = labels
	}
	if len(targets) == 0 {
		return nil, market.Structural("sweep", fmt.Errorf("table has no label columns"))
	}
	if len(featureNames) == 0 {
		return nil, market.Structural("sweep", fmt.Errorf("table has no feature columns"))
	}
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = []model.Kind{model.KindClassifier, model.KindRegressor}
	}

	var out []Evaluation
	for _, target := range targets {
		if !features.IsLabelColumn(target) {
			return nil, fmt.Errorf("%q is not a label column", target)
		}
		if _, ok := tbl.Column(target); !ok {
			return nil, market.Structural("sweep", fmt.Errorf("label column %s not in table", target))
		}

		clean, dropped := tbl.DropMissing(append([]string{target}, featureNames...)...)
		if dropped > 0 {
			v.logger.Debug().Str("target", target).Int("dropped", dropped).Msg("rows with missing values left out")
		}
		X, err := clean.Matrix(featureNames)
		if err != nil {
			return nil, market.Structural("sweep", err)
		}
		y, _ := clean.Column(target)

		for _, kind := range kinds {
			est, err := model.New(kind, opts.Ridge)
			if err != nil {
				return nil, err
			}
			var res Result
			if _, ok := est.(*model.LinearClassifier); ok {
				res, err = v.Classify(ctx, X, y, est)
			} else {
				res, err = v.Regress(ctx, X, y, est)
			}
			if err != nil {
				return nil, fmt.Errorf("%s on %s: %w", kind, target, err)
			}
			v.logger.Info().
				Str("target", target).
				Str("model", string(kind)).
				Int("folds", len(res.Folds)).
				Float64("in_sample", res.InSample).
				Float64("out_sample", res.OutSample).
				Msg("walk-forward complete")
			out = append(out, Evaluation{Target: target, Kind: kind, Rows: clean.Len(), Result: res})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Result.OutSample < out[j].Result.OutSample
	})
	return out, nil
}
