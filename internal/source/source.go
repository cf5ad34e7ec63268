package source

import (
	"context"

	"book-features/internal/market"
)

// SnapshotSource retrieves stored order-book snapshots.
type SnapshotSource interface {
	// FetchSnapshots returns at most limit snapshots for symbol, ordered by timestamp ASC.
	FetchSnapshots(ctx context.Context, symbol string, limit int) ([]market.Snapshot, error)
}

// TradeSource retrieves stored trades.
type TradeSource interface {
	// FetchTrades returns trades with minTS < timestamp < maxTS, ordered by timestamp ASC.
	FetchTrades(ctx context.Context, symbol string, minTS, maxTS float64) ([]market.Trade, error)
}

// Source provides both snapshots and trades and is released once a run ends.
type Source interface {
	SnapshotSource
	TradeSource
	Close()
}
