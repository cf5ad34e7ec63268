package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"book-features/internal/market"
)

func book(t *testing.T, bids, asks []market.Level) Book {
	t.Helper()
	b, err := NewBook(market.Snapshot{Timestamp: 1, Bids: bids, Asks: asks})
	require.NoError(t, err)
	return b
}

func TestWidthAndMid(t *testing.T) {
	width, mid, err := WidthAndMid(market.Snapshot{
		Bids: []market.Level{{Price: 99, Amount: 1}},
		Asks: []market.Level{{Price: 101, Amount: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, width)
	assert.Equal(t, 100.0, mid)
}

func TestWidthAndMidCrossedBook(t *testing.T) {
	width, mid, err := WidthAndMid(market.Snapshot{
		Bids: []market.Level{{Price: 101, Amount: 1}},
		Asks: []market.Level{{Price: 100, Amount: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, -1.0, width)
	assert.Equal(t, 100.5, mid)
}

func TestWidthAndMidEmptySide(t *testing.T) {
	_, _, err := WidthAndMid(market.Snapshot{Bids: []market.Level{{Price: 1, Amount: 1}}})
	assert.ErrorIs(t, err, ErrEmptyBook)
	_, _, err = WidthAndMid(market.Snapshot{Asks: []market.Level{{Price: 1, Amount: 1}}})
	assert.ErrorIs(t, err, ErrEmptyBook)
}

func TestSimpleImbalanceScenario(t *testing.T) {
	b := book(t,
		[]market.Level{{Price: 99, Amount: 3}, {Price: 98, Amount: 2}, {Price: 97, Amount: 50}},
		[]market.Level{{Price: 101, Amount: 1}, {Price: 102, Amount: 1}, {Price: 103, Amount: 50}},
	)
	v, err := SimpleImbalance{Depth: 2}.EstimateImbalance(b)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestSimpleImbalanceUnevenSides(t *testing.T) {
	b := book(t,
		[]market.Level{{Price: 99, Amount: 3}, {Price: 98, Amount: 2}},
		[]market.Level{{Price: 101, Amount: 1}},
	)
	v, err := SimpleImbalance{Depth: 5}.EstimateImbalance(b)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)
}

func TestWeightedImbalance(t *testing.T) {
	b := book(t,
		[]market.Level{{Price: 99, Amount: 2}, {Price: 98, Amount: 9}},
		[]market.Level{{Price: 101, Amount: 1}, {Price: 102, Amount: 9}},
	)
	// width 2, mid 100: top levels weigh amount·1, second levels amount·(1/2)²
	v, err := WeightedImbalance{Depth: 10}.EstimateImbalance(b)
	require.NoError(t, err)
	assert.InDelta(t, (2+9*0.25)-(1+9*0.25), v, 1e-12)
}

func TestWeightedImbalanceLevelAtMid(t *testing.T) {
	// Crossed-at-touch book: both best levels sit exactly on mid.
	b := book(t,
		[]market.Level{{Price: 100, Amount: 1}},
		[]market.Level{{Price: 100, Amount: 2}},
	)
	v, err := WeightedImbalance{Depth: 10}.EstimateImbalance(b)
	assert.ErrorIs(t, err, ErrDivisionByZero)
	assert.False(t, isFinite(v))
}

func TestLevelWeight(t *testing.T) {
	assert.Equal(t, 2.0, LevelWeight(market.Level{Price: 99, Amount: 2}, 2, 100))
	assert.True(t, math.IsInf(LevelWeight(market.Level{Price: 100, Amount: 2}, 2, 100), 1))
	assert.Equal(t, 0.0, LevelWeight(market.Level{Price: 100, Amount: 0}, 2, 100))
}

func TestSimpleAdjustedPrice(t *testing.T) {
	b := book(t,
		[]market.Level{{Price: 99, Amount: 1}},
		[]market.Level{{Price: 101, Amount: 3}},
	)
	v, err := SimpleAdjustedPrice{Depth: 5}.EstimateAdjustedPrice(b)
	require.NoError(t, err)
	assert.InDelta(t, 99.5, v, 1e-12)
}

func TestSimpleAdjustedPriceZeroAmount(t *testing.T) {
	b := book(t,
		[]market.Level{{Price: 99, Amount: 0}},
		[]market.Level{{Price: 101, Amount: 3}},
	)
	_, err := SimpleAdjustedPrice{Depth: 5}.EstimateAdjustedPrice(b)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestWeightedAdjustedPrice(t *testing.T) {
	b := book(t,
		[]market.Level{{Price: 99, Amount: 2}},
		[]market.Level{{Price: 101, Amount: 1}},
	)
	// weights 2 and 1, inverse weights 0.5 and 1
	v, err := WeightedAdjustedPrice{Depth: 10}.EstimateAdjustedPrice(b)
	require.NoError(t, err)
	assert.InDelta(t, (99*0.5+101)/1.5, v, 1e-12)
}

func TestWeightedAdjustedPriceZeroWidth(t *testing.T) {
	b := book(t,
		[]market.Level{{Price: 100, Amount: 1}, {Price: 99, Amount: 1}},
		[]market.Level{{Price: 100, Amount: 1}, {Price: 101, Amount: 1}},
	)
	// Zero width gives the deeper levels zero weight.
	_, err := WeightedAdjustedPrice{Depth: 10}.EstimateAdjustedPrice(b)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestEstimatorFactories(t *testing.T) {
	imb, err := NewImbalanceEstimator("weighted", 0)
	require.NoError(t, err)
	assert.Equal(t, WeightedImbalance{Depth: DefaultWeightedDepth}, imb)
	assert.Equal(t, "imbalance2", imb.Name())

	adj, err := NewAdjustedPriceEstimator("Simple", 3)
	require.NoError(t, err)
	assert.Equal(t, SimpleAdjustedPrice{Depth: 3}, adj)

	_, err = NewImbalanceEstimator("magic", 0)
	assert.Error(t, err)
	_, err = NewAdjustedPriceEstimator("magic", 0)
	assert.Error(t, err)
}
