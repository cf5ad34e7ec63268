package features

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"book-features/internal/market"
)

// MinTrendTrades is the fewest trades a window needs before Trend fits a slope.
// Below it the trend is reported as 0.
const MinTrendTrades = 3

// TradesInRange returns the sub-slice of trades (ascending by timestamp) with
// timestamps in [ts−offset, ts−1]. The window only looks back from ts.
func TradesInRange(trades []market.Trade, ts, offset int64) []market.Trade {
	lo := float64(ts - offset)
	hi := float64(ts - 1)
	first := sort.Search(len(trades), func(i int) bool { return trades[i].Timestamp >= lo })
	last := sort.Search(len(trades), func(i int) bool { return trades[i].Timestamp > hi })
	if last < first {
		last = first
	}
	return trades[first:last]
}

// VWAP returns the volume-weighted average price of window. The second
// value is false when the window is empty.
func VWAP(window []market.Trade) (float64, bool) {
	if len(window) == 0 {
		return math.NaN(), false
	}
	var notional, volume float64
	for _, t := range window {
		notional += t.Price * t.Amount
		volume += t.Amount
	}
	return notional / volume, true
}

// Aggressor returns buy volume minus sell volume; 0 for an empty window.
func Aggressor(window []market.Trade) float64 {
	var v float64
	for _, t := range window {
		switch t.Side {
		case market.SideBuy:
			v += t.Amount
		case market.SideSell:
			v -= t.Amount
		}
	}
	return v
}

// Trend returns the least-squares slope of price against timestamp over window.
// Windows with fewer than MinTrendTrades trades, or whose trades share one
// timestamp, have a trend of 0.
func Trend(window []market.Trade) float64 {
	slope, err := trendSlope(window)
	if err != nil {
		return 0
	}
	return slope
}

func trendSlope(window []market.Trade) (float64, error) {
	if len(window) < MinTrendTrades {
		return 0, ErrInsufficientTrades
	}
	x := make([]float64, len(window))
	y := make([]float64, len(window))
	// Centre timestamps so large epoch values don't eat precision.
	origin := window[0].Timestamp
	for i, t := range window {
		x[i] = t.Timestamp - origin
		y[i] = t.Price
	}
	_, beta := stat.LinearRegression(x, y, nil, false)
	if !isFinite(beta) {
		return 0, ErrDivisionByZero
	}
	return beta, nil
}
