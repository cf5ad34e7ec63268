package model

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultRidge is the L2 penalty applied to standardised coefficients.
const DefaultRidge = 1e-3

var (
	// ErrNotFitted is returned when predicting before Fit.
	ErrNotFitted = errors.New("model not fitted")
	// ErrBadInput is returned for empty, ragged or non-finite inputs.
	ErrBadInput = errors.New("bad model input")
)

// linear is a ridge regression on standardised features with an unpenalised
// intercept.
type linear struct {
	ridge float64

	means []float64
	scale []float64
	coef  []float64 // per standardised feature
	bias  float64
}

func (l *linear) fit(X [][]float64, y []float64) error {
	p, err := checkInput(X, y)
	if err != nil {
		return err
	}
	n := len(X)

	l.means = make([]float64, p)
	l.scale = make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		l.means[j], l.scale[j] = mean, std
	}

	design := mat.NewDense(n, p, nil)
	for i, row := range X {
		for j, v := range row {
			design.Set(i, j, (v-l.means[j])/l.scale[j])
		}
	}
	yMean := stat.Mean(y, nil)
	centred := make([]float64, n)
	for i, v := range y {
		centred[i] = v - yMean
	}

	var gram mat.Dense
	gram.Mul(design.T(), design)
	for j := 0; j < p; j++ {
		gram.Set(j, j, gram.At(j, j)+l.ridge*float64(n))
	}
	var rhs mat.VecDense
	rhs.MulVec(design.T(), mat.NewVecDense(n, centred))

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &rhs); err != nil {
		return fmt.Errorf("solve normal equations: %w", err)
	}

	l.coef = make([]float64, p)
	for j := range l.coef {
		l.coef[j] = beta.AtVec(j)
	}
	l.bias = yMean
	return nil
}

func (l *linear) predict(X [][]float64) ([]float64, error) {
	if l.coef == nil {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(l.coef) {
			return nil, fmt.Errorf("%w: row %d has %d features, model has %d", ErrBadInput, i, len(row), len(l.coef))
		}
		v := l.bias
		for j, x := range row {
			v += l.coef[j] * (x - l.means[j]) / l.scale[j]
		}
		out[i] = v
	}
	return out, nil
}

func checkInput(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("%w: no observations", ErrBadInput)
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d observations, %d labels", ErrBadInput, len(X), len(y))
	}
	p := len(X[0])
	if p == 0 {
		return 0, fmt.Errorf("%w: no features", ErrBadInput)
	}
	for i, row := range X {
		if len(row) != p {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrBadInput, i, len(row), p)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w: non-finite feature in row %d", ErrBadInput, i)
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return 0, fmt.Errorf("%w: non-finite label in row %d", ErrBadInput, i)
		}
	}
	return p, nil
}

// LinearRegressor is a ridge linear regression scored by R².
type LinearRegressor struct {
	lin linear
}

// NewLinearRegressor creates a LinearRegressor with the given L2 penalty.
func NewLinearRegressor(ridge float64) *LinearRegressor {
	return &LinearRegressor{lin: linear{ridge: ridge}}
}

func (r *LinearRegressor) Fit(X [][]float64, y []float64) error { return r.lin.fit(X, y) }

// Predict returns the fitted values for X.
func (r *LinearRegressor) Predict(X [][]float64) ([]float64, error) { return r.lin.predict(X) }

// Score returns the coefficient of determination of the predictions on X.
// A constant y scores 1 when predicted exactly and 0 otherwise.
func (r *LinearRegressor) Score(X [][]float64, y []float64) (float64, error) {
	if _, err := checkInput(X, y); err != nil {
		return 0, err
	}
	pred, err := r.lin.predict(X)
	if err != nil {
		return 0, err
	}
	return rSquared(pred, y), nil
}

func rSquared(pred, y []float64) float64 {
	mean := stat.Mean(y, nil)
	var total, residual float64
	for i, v := range y {
		total += (v - mean) * (v - mean)
		residual += (v - pred[i]) * (v - pred[i])
	}
	if total == 0 {
		if residual == 0 {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(pred, y, nil)
}

// LinearClassifier predicts the sign of a ridge regression fitted to sign labels.
// It is scored by accuracy.
type LinearClassifier struct {
	lin linear
}

// NewLinearClassifier creates a LinearClassifier with the given L2 penalty.
func NewLinearClassifier(ridge float64) *LinearClassifier {
	return &LinearClassifier{lin: linear{ridge: ridge}}
}

func (c *LinearClassifier) Fit(X [][]float64, y []float64) error { return c.lin.fit(X, y) }

// Predict returns -1, 0 or 1 for every row of X.
func (c *LinearClassifier) Predict(X [][]float64) ([]float64, error) {
	raw, err := c.lin.predict(X)
	if err != nil {
		return nil, err
	}
	for i, v := range raw {
		raw[i] = sign(v)
	}
	return raw, nil
}

// Score returns the share of rows whose predicted sign equals y.
func (c *LinearClassifier) Score(X [][]float64, y []float64) (float64, error) {
	if _, err := checkInput(X, y); err != nil {
		return 0, err
	}
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	hits := 0
	for i, p := range pred {
		if p == y[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(y)), nil
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Kind names an estimator family.
type Kind string

const (
	KindClassifier Kind = "classifier"
	KindRegressor  Kind = "regressor"
)

// Estimator is the fit/score capability shared by every model here.
type Estimator interface {
	Fit(X [][]float64, y []float64) error
	Score(X [][]float64, y []float64) (float64, error)
	Predict(X [][]float64) ([]float64, error)
}

// New constructs an estimator of the given kind.
func New(kind Kind, ridge float64) (Estimator, error) {
	if ridge < 0 {
		return nil, fmt.Errorf("ridge must not be negative, got %v", ridge)
	}
	switch Kind(strings.ToLower(string(kind))) {
	case KindClassifier:
		return NewLinearClassifier(ridge), nil
	case KindRegressor:
		return NewLinearRegressor(ridge), nil
	default:
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}
}
