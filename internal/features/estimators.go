package features

import (
	"fmt"
	"math"
	"strings"

	"book-features/internal/market"
)

// Default depths of the book estimators.
const (
	DefaultSimpleDepth   = 5
	DefaultWeightedDepth = 10
)

// ImbalanceEstimator measures the skew between resting bid and ask volume.
type ImbalanceEstimator interface {
	Name() string
	EstimateImbalance(b Book) (float64, error)
}

// AdjustedPriceEstimator estimates a volume-weighted fair price of the book.
type AdjustedPriceEstimator interface {
	Name() string
	EstimateAdjustedPrice(b Book) (float64, error)
}

// SimpleImbalance is the sum of bid amounts minus the sum of ask amounts
// over the first Depth levels of each side.
type SimpleImbalance struct {
	Depth int
}

func (SimpleImbalance) Name() string { return "imbalance" }

func (e SimpleImbalance) EstimateImbalance(b Book) (float64, error) {
	var bids, asks float64
	for _, lvl := range topLevels(b.Bids, e.Depth) {
		bids += lvl.Amount
	}
	for _, lvl := range topLevels(b.Asks, e.Depth) {
		asks += lvl.Amount
	}
	return bids - asks, nil
}

// WeightedImbalance weights each level by amount·(0.5·width/(price−mid))²,
// so volume close to the touch dominates.
type WeightedImbalance struct {
	Depth int
}

func (WeightedImbalance) Name() string { return "imbalance2" }

func (e WeightedImbalance) EstimateImbalance(b Book) (float64, error) {
	var bids, asks float64
	for _, lvl := range topLevels(b.Bids, e.Depth) {
		bids += LevelWeight(lvl, b.Width, b.Mid)
	}
	for _, lvl := range topLevels(b.Asks, e.Depth) {
		asks += LevelWeight(lvl, b.Width, b.Mid)
	}
	v := bids - asks
	if !isFinite(v) {
		return v, ErrDivisionByZero
	}
	return v, nil
}

// LevelWeight is amount·(0.5·width/(price−mid))². A level priced exactly at
// mid has weight +Inf (zero if it carries no amount); there is no epsilon floor.
func LevelWeight(lvl market.Level, width, mid float64) float64 {
	dist := lvl.Price - mid
	if dist == 0 {
		if lvl.Amount == 0 {
			return 0
		}
		return math.Inf(1)
	}
	r := 0.5 * width / dist
	return lvl.Amount * r * r
}

// SimpleAdjustedPrice averages level prices weighted by inverse amount over
// the first Depth levels of each side.
type SimpleAdjustedPrice struct {
	Depth int
}

func (SimpleAdjustedPrice) Name() string { return "adjusted_price" }

func (e SimpleAdjustedPrice) EstimateAdjustedPrice(b Book) (float64, error) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return math.NaN(), ErrEmptyBook
	}
	var num, den float64
	for _, side := range [][]market.Level{topLevels(b.Bids, e.Depth), topLevels(b.Asks, e.Depth)} {
		for _, lvl := range side {
			if lvl.Amount == 0 {
				return math.NaN(), ErrDivisionByZero
			}
			num += lvl.Price / lvl.Amount
			den += 1 / lvl.Amount
		}
	}
	return ratio(num, den)
}

// WeightedAdjustedPrice uses the inverse of LevelWeight in place of the
// inverse amount. Levels with infinite weight contribute nothing.
type WeightedAdjustedPrice struct {
	Depth int
}

func (WeightedAdjustedPrice) Name() string { return "adjusted_price2" }

func (e WeightedAdjustedPrice) EstimateAdjustedPrice(b Book) (float64, error) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return math.NaN(), ErrEmptyBook
	}
	var num, den float64
	for _, side := range [][]market.Level{topLevels(b.Bids, e.Depth), topLevels(b.Asks, e.Depth)} {
		for _, lvl := range side {
			w := LevelWeight(lvl, b.Width, b.Mid)
			if w == 0 {
				return math.NaN(), ErrDivisionByZero
			}
			num += lvl.Price / w
			den += 1 / w
		}
	}
	return ratio(num, den)
}

func ratio(num, den float64) (float64, error) {
	if den == 0 {
		return math.NaN(), ErrDivisionByZero
	}
	v := num / den
	if !isFinite(v) {
		return v, ErrDivisionByZero
	}
	return v, nil
}

// NewImbalanceEstimator resolves a configured estimator name ("simple" or
// "weighted"). A depth of zero selects the estimator's default.
func NewImbalanceEstimator(name string, depth int) (ImbalanceEstimator, error) {
	switch strings.ToLower(name) {
	case "simple":
		return SimpleImbalance{Depth: orDefault(depth, DefaultSimpleDepth)}, nil
	case "weighted":
		return WeightedImbalance{Depth: orDefault(depth, DefaultWeightedDepth)}, nil
	default:
		return nil, fmt.Errorf("unknown imbalance estimator %q", name)
	}
}

// NewAdjustedPriceEstimator resolves a configured estimator name ("simple" or
// "weighted"). A depth of zero selects the estimator's default.
func NewAdjustedPriceEstimator(name string, depth int) (AdjustedPriceEstimator, error) {
	switch strings.ToLower(name) {
	case "simple":
		return SimpleAdjustedPrice{Depth: orDefault(depth, DefaultSimpleDepth)}, nil
	case "weighted":
		return WeightedAdjustedPrice{Depth: orDefault(depth, DefaultWeightedDepth)}, nil
	default:
		return nil, fmt.Errorf("unknown adjusted price estimator %q", name)
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
