package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"book-features/internal/market"
)

// FeatureRun identifies one persisted feature build.
type FeatureRun struct {
	Symbol  string
	BuiltAt time.Time
}

// FeatureRow is a persisted feature row. Missing values are absent from Features.
type FeatureRow struct {
	Symbol    string
	Timestamp int64
	Features  map[string]float64
	BuiltAt   time.Time
}

// levelRecord is the JSONB form of one book level.
type levelRecord struct {
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp float64         `json:"timestamp"`
}

func toLevelRecords(levels []market.Level) []levelRecord {
	out := make([]levelRecord, len(levels))
	for i, l := range levels {
		out[i] = levelRecord{
			Price:     decimal.NewFromFloat(l.Price),
			Amount:    decimal.NewFromFloat(l.Amount),
			Timestamp: l.Timestamp,
		}
	}
	return out
}

func fromLevelRecords(records []levelRecord) []market.Level {
	out := make([]market.Level, len(records))
	for i, r := range records {
		out[i] = market.Level{
			Price:     r.Price.InexactFloat64(),
			Amount:    r.Amount.InexactFloat64(),
			Timestamp: r.Timestamp,
		}
	}
	return out
}
