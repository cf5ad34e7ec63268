package features

import "errors"

// Per-row failures. The builder recovers all of them locally: the affected
// cell becomes missing (NaN) or takes the documented default.
var (
	// ErrEmptyBook is returned when a snapshot has no levels on one side.
	ErrEmptyBook = errors.New("empty book side")

	// ErrDivisionByZero is returned when an estimator denominator is zero or
	// its result is not finite.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrInsufficientTrades means a trend window had fewer than MinTrendTrades trades.
	ErrInsufficientTrades = errors.New("insufficient trades")

	// ErrNoMatch means no snapshot was found within the label sensitivity.
	ErrNoMatch = errors.New("no snapshot within tolerance")
)
