package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"book-features/internal/market"
)

var (
	// ErrInsufficientRows is returned when fewer than two windows fit in the data.
	ErrInsufficientRows = errors.New("insufficient rows for walk-forward validation")
	// ErrShapeMismatch is returned when X and y disagree in length or X is ragged.
	ErrShapeMismatch = errors.New("feature matrix and labels do not match")
)

// Window is one walk-forward fold: train [TrainStart, TrainEnd), test [TestStart, TestEnd).
type Window struct {
	TrainStart int
	TrainEnd   int
	TestStart  int
	TestEnd    int
}

// Windows returns the folds for n rows split into blocks of size rows.
// Fold i trains on [0, i*size) and tests on [i*size, (i+1)*size) for
// i = 1 .. floor(n/size)-1.
func Windows(n, size int) ([]Window, error) {
	if size < 1 {
		return nil, fmt.Errorf("window size must be positive, got %d", size)
	}
	if n < 2*size {
		return nil, fmt.Errorf("%w: %d rows, window %d needs at least %d", ErrInsufficientRows, n, size, 2*size)
	}
	folds := n/size - 1
	out := make([]Window, 0, folds)
	for i := 1; (i+1)*size <= n; i++ {
		out = append(out, Window{
			TrainStart: 0,
			TrainEnd:   i * size,
			TestStart:  i * size,
			TestEnd:    (i + 1) * size,
		})
	}
	return out, nil
}

// Estimator is fitted and scored by the validator. Both calls block.
type Estimator interface {
	Fit(X [][]float64, y []float64) error
	Score(X [][]float64, y []float64) (float64, error)
}

// FoldScore records the scores of one fold.
type FoldScore struct {
	Window    Window
	InSample  float64
	OutSample float64
}

// Result is the outcome of a walk-forward run.
type Result struct {
	// Model is the estimator as fitted on the last fold.
	Model     Estimator
	InSample  float64
	OutSample float64
	Folds     []FoldScore
}

// Validator runs walk-forward validation with a fixed block size.
type Validator struct {
	Window int
	logger zerolog.Logger
}

func NewValidator(window int, logger zerolog.Logger) *Validator {
	return &Validator{
		Window: window,
		logger: logger.With().Str("component", "validator").Logger(),
	}
}

// Classify validates est against sign(y).
func (v *Validator) Classify(ctx context.Context, X [][]float64, y []float64, est Estimator) (Result, error) {
	return v.CrossValidate(ctx, X, SignLabels(y), est)
}

// Regress validates est against y unchanged.
func (v *Validator) Regress(ctx context.Context, X [][]float64, y []float64, est Estimator) (Result, error) {
	return v.CrossValidate(ctx, X, y, est)
}

// CrossValidate fits est on every train block and scores it on the train
// block and the following test block. The context is checked between folds.
func (v *Validator) CrossValidate(ctx context.Context, X [][]float64, y []float64, est Estimator) (Result, error) {
	if err := checkShape(X, y); err != nil {
		return Result{}, err
	}
	windows, err := Windows(len(X), v.Window)
	if err != nil {
		return Result{}, err
	}

	res := Result{Model: est, Folds: make([]FoldScore, 0, len(windows))}
	inScores := make([]float64, 0, len(windows))
	outScores := make([]float64, 0, len(windows))

	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		start := time.Now()

		trainX, trainY := X[w.TrainStart:w.TrainEnd], y[w.TrainStart:w.TrainEnd]
		testX, testY := X[w.TestStart:w.TestEnd], y[w.TestStart:w.TestEnd]

		if err := est.Fit(trainX, trainY); err != nil {
			return Result{}, market.Structural(fmt.Sprintf("fit fold %d", i+1), err)
		}
		in, err := est.Score(trainX, trainY)
		if err != nil {
			return Result{}, market.Structural(fmt.Sprintf("score fold %d in-sample", i+1), err)
		}
		out, err := est.Score(testX, testY)
		if err != nil {
			return Result{}, market.Structural(fmt.Sprintf("score fold %d out-of-sample", i+1), err)
		}

		res.Folds = append(res.Folds, FoldScore{Window: w, InSample: in, OutSample: out})
		inScores = append(inScores, in)
		outScores = append(outScores, out)

		v.logger.Debug().
			Int("fold", i+1).
			Int("train_rows", w.TrainEnd-w.TrainStart).
			Int("test_rows", w.TestEnd-w.TestStart).
			Float64("in_sample", in).
			Float64("out_sample", out).
			Dur("elapsed", time.Since(start)).
			Msg("fold scored")
	}

	res.InSample = stat.Mean(inScores, nil)
	res.OutSample = stat.Mean(outScores, nil)
	return res, nil
}

// SignLabels maps every label to -1, 0 or 1.
func SignLabels(y []float64) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		switch {
		case v > 0:
			out[i] = 1
		case v < 0:
			out[i] = -1
		}
	}
	return out
}

func checkShape(X [][]float64, y []float64) error {
	if len(X) != len(y) {
		return fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, len(X), len(y))
	}
	if len(X) == 0 {
		return nil
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrShapeMismatch, i, len(row), width)
		}
	}
	return nil
}
