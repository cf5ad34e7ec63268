package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/shopspring/decimal"

	"book-features/internal/market"
	"book-features/internal/storage"
)

const defaultIngestBatch = 1000

// levelLine is one level of a dumped book. Numbers may be quoted.
type levelLine struct {
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp decimal.Decimal `json:"timestamp"`
}

// snapshotLine is one line of a snapshot dump. The timestamp is read from
// "timestamp", or "_id" for documents exported from the collector.
type snapshotLine struct {
	ID        *int64      `json:"_id"`
	Timestamp *int64      `json:"timestamp"`
	Bids      []levelLine `json:"bids"`
	Asks      []levelLine `json:"asks"`
}

// tradeLine is one line of a trade dump. The side is read from "side", or
// "type" as the exchange reports it.
type tradeLine struct {
	Timestamp decimal.Decimal `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Side      string          `json:"side"`
	Type      string          `json:"type"`
}

// Ingest loads JSON-lines dumps of snapshots and trades into PostgreSQL under
// the configured symbol.
func (a *App) Ingest(ctx context.Context, opts IngestOptions) error {
	if opts.SnapshotsPath == "" && opts.TradesPath == "" {
		return errors.New("at least one of --snapshots or --trades must be provided")
	}
	symbol := a.Config.Features.Symbol
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultIngestBatch
	}

	var snapshots []market.Snapshot
	var trades []market.Trade
	var err error
	if opts.SnapshotsPath != "" {
		if snapshots, err = readDump(opts.SnapshotsPath, decodeSnapshots); err != nil {
			return err
		}
		sort.SliceStable(snapshots, func(i, j int) bool { return snapshots[i].Timestamp < snapshots[j].Timestamp })
		if err := market.ValidateSeries(snapshots); err != nil {
			return err
		}
	}
	if opts.TradesPath != "" {
		if trades, err = readDump(opts.TradesPath, decodeTrades); err != nil {
			return err
		}
		sort.SliceStable(trades, func(i, j int) bool { return trades[i].Timestamp < trades[j].Timestamp })
		if err := market.ValidateTrades(trades); err != nil {
			return err
		}
	}
	a.Logger.Info().Str("symbol", symbol).Int("snapshots", len(snapshots)).Int("trades", len(trades)).Msg("dumps decoded")

	if opts.DryRun {
		a.Logger.Warn().Msg("ingest dry-run: nothing written to the database")
		return nil
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot ingest")
	}
	defer closeStore()

	return ingestBatches(ctx, store, symbol, snapshots, trades, batchSize)
}

func ingestBatches(ctx context.Context, store interface {
	storage.SnapshotStore
	storage.TradeStore
}, symbol string, snapshots []market.Snapshot, trades []market.Trade, batchSize int) error {
	for start := 0; start < len(snapshots); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(snapshots))
		if err := store.InsertSnapshots(ctx, symbol, snapshots[start:end]); err != nil {
			return fmt.Errorf("snapshots %d-%d: %w", start, end, err)
		}
	}
	for start := 0; start < len(trades); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(trades))
		if err := store.InsertTrades(ctx, symbol, trades[start:end]); err != nil {
			return fmt.Errorf("trades %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func readDump[T any](path string, decode func(io.Reader) ([]T, error)) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	out, err := decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

func decodeSnapshots(r io.Reader) ([]market.Snapshot, error) {
	dec := json.NewDecoder(r)
	var out []market.Snapshot
	for line := 1; dec.More(); line++ {
		var rec snapshotLine
		if err := dec.Decode(&rec); err != nil {
			return nil, market.Structural(fmt.Sprintf("snapshot record %d", line), err)
		}
		var ts int64
		switch {
		case rec.Timestamp != nil:
			ts = *rec.Timestamp
		case rec.ID != nil:
			ts = *rec.ID
		default:
			return nil, market.Structural(fmt.Sprintf("snapshot record %d has no timestamp", line), nil)
		}
		out = append(out, market.Snapshot{
			Timestamp: ts,
			Bids:      toLevels(rec.Bids),
			Asks:      toLevels(rec.Asks),
		})
	}
	return out, nil
}

func toLevels(lines []levelLine) []market.Level {
	out := make([]market.Level, len(lines))
	for i, l := range lines {
		out[i] = market.Level{
			Price:     l.Price.InexactFloat64(),
			Amount:    l.Amount.InexactFloat64(),
			Timestamp: l.Timestamp.InexactFloat64(),
		}
	}
	return out
}

func decodeTrades(r io.Reader) ([]market.Trade, error) {
	dec := json.NewDecoder(r)
	var out []market.Trade
	for line := 1; dec.More(); line++ {
		var rec tradeLine
		if err := dec.Decode(&rec); err != nil {
			return nil, market.Structural(fmt.Sprintf("trade record %d", line), err)
		}
		sideStr := rec.Side
		if sideStr == "" {
			sideStr = rec.Type
		}
		side, err := market.ParseSide(sideStr)
		if err != nil {
			return nil, fmt.Errorf("trade record %d: %w", line, err)
		}
		out = append(out, market.Trade{
			Timestamp: rec.Timestamp.InexactFloat64(),
			Price:     rec.Price.InexactFloat64(),
			Amount:    rec.Amount.InexactFloat64(),
			Side:      side,
		})
	}
	return out, nil
}
