package features

import (
	"book-features/internal/market"
)

// Book is a snapshot together with its top-of-book metrics.
type Book struct {
	market.Snapshot
	Width float64
	Mid   float64
}

// WidthAndMid returns the best ask minus best bid and their midpoint.
// Crossed books yield a negative width and are not corrected.
func WidthAndMid(s market.Snapshot) (width, mid float64, err error) {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return 0, 0, ErrEmptyBook
	}
	bid := s.Bids[0].Price
	ask := s.Asks[0].Price
	return ask - bid, (bid + ask) / 2, nil
}

// NewBook computes the metrics of s.
func NewBook(s market.Snapshot) (Book, error) {
	width, mid, err := WidthAndMid(s)
	if err != nil {
		return Book{Snapshot: s}, err
	}
	return Book{Snapshot: s, Width: width, Mid: mid}, nil
}

func topLevels(levels []market.Level, depth int) []market.Level {
	if depth > 0 && len(levels) > depth {
		return levels[:depth]
	}
	return levels
}
