package clickhouse

import (
	"context"
	"fmt"

	"book-features/internal/market"
	"book-features/internal/source"
)

// Source reads snapshots and trades from ClickHouse. Each book side is stored
// as three parallel Array(Float64) columns.
type Source struct {
	conn *Conn
}

// NewSource creates a Source over conn. Closing the Source closes conn.
func NewSource(conn *Conn) *Source {
	return &Source{conn: conn}
}

var _ source.Source = (*Source)(nil)

const (
	selectSnapshotsSQL = `
		SELECT ts,
			bid_prices, bid_amounts, bid_times,
			ask_prices, ask_amounts, ask_times
		FROM book_snapshots
		WHERE symbol = ?
		ORDER BY ts ASC
	`

	selectTradesSQL = `
		SELECT ts, price, amount, side
		FROM trades
		WHERE symbol = ? AND ts > ? AND ts < ?
		ORDER BY ts ASC
	`
)

// FetchSnapshots returns the earliest limit snapshots of symbol. A
// non-positive limit returns all of them.
func (s *Source) FetchSnapshots(ctx context.Context, symbol string, limit int) ([]market.Snapshot, error) {
	query := selectSnapshotsSQL
	args := []any{symbol}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []market.Snapshot
	for rows.Next() {
		var (
			ts                              int64
			bidPrices, bidAmounts, bidTimes []float64
			askPrices, askAmounts, askTimes []float64
		)
		if err := rows.Scan(&ts,
			&bidPrices, &bidAmounts, &bidTimes,
			&askPrices, &askAmounts, &askTimes,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		bids, err := zipLevels(bidPrices, bidAmounts, bidTimes)
		if err != nil {
			return nil, fmt.Errorf("bids at %d: %w", ts, err)
		}
		asks, err := zipLevels(askPrices, askAmounts, askTimes)
		if err != nil {
			return nil, fmt.Errorf("asks at %d: %w", ts, err)
		}
		out = append(out, market.Snapshot{Timestamp: ts, Bids: bids, Asks: asks})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// FetchTrades returns trades with minTS < ts < maxTS ordered by timestamp.
func (s *Source) FetchTrades(ctx context.Context, symbol string, minTS, maxTS float64) ([]market.Trade, error) {
	rows, err := s.conn.Query(ctx, selectTradesSQL, symbol, minTS, maxTS)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []market.Trade
	for rows.Next() {
		var (
			tr   market.Trade
			side string
		)
		if err := rows.Scan(&tr.Timestamp, &tr.Price, &tr.Amount, &side); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if tr.Side, err = market.ParseSide(side); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return out, nil
}

// Close closes the underlying connection.
func (s *Source) Close() {
	if s == nil || s.conn == nil {
		return
	}
	_ = s.conn.Close()
}

func zipLevels(prices, amounts, times []float64) ([]market.Level, error) {
	if len(prices) != len(amounts) || len(prices) != len(times) {
		return nil, fmt.Errorf("level arrays differ in length: %d prices, %d amounts, %d times",
			len(prices), len(amounts), len(times))
	}
	levels := make([]market.Level, len(prices))
	for i := range prices {
		levels[i] = market.Level{Price: prices[i], Amount: amounts[i], Timestamp: times[i]}
	}
	return levels, nil
}
