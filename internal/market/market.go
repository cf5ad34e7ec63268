package market

import (
	"fmt"
	"math"
	"strings"
)

// Side identifies the aggressor of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide normalises a stored side value.
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "buy", "bid", "b":
		return SideBuy, nil
	case "sell", "ask", "s":
		return SideSell, nil
	default:
		return "", structuralf("unknown trade side %q", v)
	}
}

// Level is one price level of a book side.
type Level struct {
	Price     float64
	Amount    float64
	Timestamp float64 // last update of the level, seconds
}

// Snapshot is a full book captured at Timestamp (unix seconds).
// Bids are ordered by descending price, asks by ascending price.
type Snapshot struct {
	Timestamp int64
	Bids      []Level
	Asks      []Level
}

// Trade is a single executed trade.
type Trade struct {
	Timestamp float64
	Price     float64
	Amount    float64
	Side      Side
}

// Validate rejects snapshots that cannot be read as a book.
func (s Snapshot) Validate() error {
	for i, lvl := range s.Bids {
		if err := lvl.validate(); err != nil {
			return structuralf("snapshot %d bid level %d: %v", s.Timestamp, i, err)
		}
	}
	for i, lvl := range s.Asks {
		if err := lvl.validate(); err != nil {
			return structuralf("snapshot %d ask level %d: %v", s.Timestamp, i, err)
		}
	}
	return nil
}

func (l Level) validate() error {
	if !finite(l.Price) || !finite(l.Amount) || !finite(l.Timestamp) {
		return fmt.Errorf("non-finite field (price=%v amount=%v timestamp=%v)", l.Price, l.Amount, l.Timestamp)
	}
	if l.Amount < 0 {
		return fmt.Errorf("negative amount %v", l.Amount)
	}
	return nil
}

// Crossed reports whether the best bid is at or above the best ask.
// Books with an empty side are never crossed.
func (s Snapshot) Crossed() bool {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return false
	}
	return s.Bids[0].Price >= s.Asks[0].Price
}

// Staleness returns the snapshot timestamp minus the most recent level update
// on either side. The second value is false for a book with no levels.
func (s Snapshot) Staleness() (float64, bool) {
	newest := math.Inf(-1)
	for _, lvl := range s.Bids {
		newest = math.Max(newest, lvl.Timestamp)
	}
	for _, lvl := range s.Asks {
		newest = math.Max(newest, lvl.Timestamp)
	}
	if math.IsInf(newest, -1) {
		return 0, false
	}
	return float64(s.Timestamp) - newest, true
}

// Validate rejects trades that cannot be aggregated.
func (t Trade) Validate() error {
	if !finite(t.Timestamp) || !finite(t.Price) || !finite(t.Amount) {
		return structuralf("trade at %v: non-finite field", t.Timestamp)
	}
	if t.Amount <= 0 {
		return structuralf("trade at %v: amount must be positive, got %v", t.Timestamp, t.Amount)
	}
	if t.Side != SideBuy && t.Side != SideSell {
		return structuralf("trade at %v: unknown side %q", t.Timestamp, t.Side)
	}
	return nil
}

// ValidateSeries checks every snapshot and that timestamps strictly increase.
func ValidateSeries(snapshots []Snapshot) error {
	for i, s := range snapshots {
		if err := s.Validate(); err != nil {
			return err
		}
		if i > 0 && s.Timestamp <= snapshots[i-1].Timestamp {
			return structuralf("snapshot timestamps not strictly increasing at index %d: %d <= %d",
				i, s.Timestamp, snapshots[i-1].Timestamp)
		}
	}
	return nil
}

// ValidateTrades checks every trade and that timestamps never decrease.
func ValidateTrades(trades []Trade) error {
	for i, t := range trades {
		if err := t.Validate(); err != nil {
			return err
		}
		if i > 0 && t.Timestamp < trades[i-1].Timestamp {
			return structuralf("trade timestamps out of order at index %d: %v < %v",
				i, t.Timestamp, trades[i-1].Timestamp)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
