package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"book-features/internal/features"
	"book-features/internal/market"
	"book-features/internal/source"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertSnapshotSQL = `INSERT INTO book_snapshots (
        symbol,
        ts,
        bids,
        asks
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (symbol, ts) DO UPDATE
    SET
        bids = EXCLUDED.bids,
        asks = EXCLUDED.asks;`

	listSnapshotsSQL = `SELECT
        ts,
        bids,
        asks
    FROM book_snapshots
    WHERE symbol = $1
    ORDER BY ts ASC
    LIMIT $2;`

	insertTradeSQL = `INSERT INTO trades (
        symbol,
        ts,
        price,
        amount,
        side
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (symbol, ts, price, amount, side) DO NOTHING;`

	listTradesBetweenSQL = `SELECT
        ts,
        price::text,
        amount::text,
        side
    FROM trades
    WHERE symbol = $1
      AND ts > $2
      AND ts < $3
    ORDER BY ts ASC, id ASC;`

	upsertFeatureRowSQL = `INSERT INTO feature_rows (
        symbol,
        ts,
        features,
        built_at
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (symbol, ts) DO UPDATE
    SET
        features = EXCLUDED.features,
        built_at = EXCLUDED.built_at;`

	listRecentFeatureRowsSQL = `SELECT
        symbol,
        ts,
        features,
        built_at
    FROM feature_rows
    WHERE symbol = $1
    ORDER BY ts DESC
    LIMIT $2;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM book_snapshots WHERE symbol = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SnapshotStore persists raw order-book snapshots.
type SnapshotStore interface {
	InsertSnapshots(ctx context.Context, symbol string, snapshots []market.Snapshot) error
	CountSnapshots(ctx context.Context, symbol string) (int64, error)
}

// TradeStore persists raw trades.
type TradeStore interface {
	InsertTrades(ctx context.Context, symbol string, trades []market.Trade) error
}

// FeatureStore persists built feature tables.
type FeatureStore interface {
	UpsertFeatureRows(ctx context.Context, run FeatureRun, table *features.Table) (int, error)
	ListRecentFeatureRows(ctx context.Context, symbol string, limit int) ([]FeatureRow, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to snapshots, trades and feature rows.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ source.Source  = (*Store)(nil)
	_ SnapshotStore  = (*Store)(nil)
	_ TradeStore     = (*Store)(nil)
	_ FeatureStore   = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the lock dies with the session if this fails
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertSnapshots upserts snapshots in a single batch.
func (s *Store) InsertSnapshots(ctx context.Context, symbol string, snapshots []market.Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		bids, err := json.Marshal(toLevelRecords(snap.Bids))
		if err != nil {
			return fmt.Errorf("encode bids at %d: %w", snap.Timestamp, err)
		}
		asks, err := json.Marshal(toLevelRecords(snap.Asks))
		if err != nil {
			return fmt.Errorf("encode asks at %d: %w", snap.Timestamp, err)
		}
		batch.Queue(upsertSnapshotSQL, symbol, snap.Timestamp, bids, asks)
	}

	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert snapshots: %w", err)
	}
	return nil
}

// InsertTrades inserts trades in a single batch. Exact duplicates are ignored.
func (s *Store) InsertTrades(ctx context.Context, symbol string, trades []market.Trade) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, tr := range trades {
		batch.Queue(insertTradeSQL,
			symbol,
			tr.Timestamp,
			decimal.NewFromFloat(tr.Price).String(),
			decimal.NewFromFloat(tr.Amount).String(),
			string(tr.Side),
		)
	}

	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert trades: %w", err)
	}
	return nil
}

// CountSnapshots counts stored snapshots of a symbol.
func (s *Store) CountSnapshots(ctx context.Context, symbol string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL, symbol).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

// FetchSnapshots returns the earliest limit snapshots of symbol ordered by
// timestamp. A non-positive limit returns every snapshot.
func (s *Store) FetchSnapshots(ctx context.Context, symbol string, limit int) ([]market.Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsSQL, symbol, lim)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots: %w", queryErr)
	}
	defer rows.Close()

	snapshots := make([]market.Snapshot, 0)
	for rows.Next() {
		snap, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snapshots = append(snapshots, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

// FetchTrades returns trades with minTS < ts < maxTS ordered by timestamp.
func (s *Store) FetchTrades(ctx context.Context, symbol string, minTS, maxTS float64) ([]market.Trade, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTradesBetweenSQL, symbol, minTS, maxTS)
	if queryErr != nil {
		return nil, fmt.Errorf("list trades between: %w", queryErr)
	}
	defer rows.Close()

	trades := make([]market.Trade, 0)
	for rows.Next() {
		tr, scanErr := scanTrade(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		trades = append(trades, tr)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return trades, nil
}

// UpsertFeatureRows stores every row of table under run.Symbol and returns
// the number of rows written.
func (s *Store) UpsertFeatureRows(ctx context.Context, run FeatureRun, table *features.Table) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if table == nil || table.Len() == 0 {
		return 0, nil
	}

	builtAt := run.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now().UTC()
	}

	batch := &pgx.Batch{}
	for i, ts := range table.Timestamps {
		payload, err := json.Marshal(table.Row(i))
		if err != nil {
			return 0, fmt.Errorf("encode feature row %d: %w", ts, err)
		}
		batch.Queue(upsertFeatureRowSQL, run.Symbol, ts, payload, builtAt)
	}

	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("upsert feature rows: %w", err)
	}
	return table.Len(), nil
}

// ListRecentFeatureRows lists the latest feature rows of symbol, newest first.
func (s *Store) ListRecentFeatureRows(ctx context.Context, symbol string, limit int) ([]FeatureRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentFeatureRowsSQL, symbol, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent feature rows: %w", queryErr)
	}
	defer rows.Close()

	out := make([]FeatureRow, 0, limit)
	for rows.Next() {
		var (
			row     FeatureRow
			payload []byte
		)
		if err := rows.Scan(&row.Symbol, &row.Timestamp, &payload, &row.BuiltAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &row.Features); err != nil {
			return nil, fmt.Errorf("decode feature row %d: %w", row.Timestamp, err)
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanSnapshot(rows pgx.Rows) (market.Snapshot, error) {
	var (
		ts         int64
		bidsJSON   []byte
		asksJSON   []byte
		bids, asks []levelRecord
	)
	if err := rows.Scan(&ts, &bidsJSON, &asksJSON); err != nil {
		return market.Snapshot{}, err
	}
	if err := json.Unmarshal(bidsJSON, &bids); err != nil {
		return market.Snapshot{}, fmt.Errorf("decode bids at %d: %w", ts, err)
	}
	if err := json.Unmarshal(asksJSON, &asks); err != nil {
		return market.Snapshot{}, fmt.Errorf("decode asks at %d: %w", ts, err)
	}
	return market.Snapshot{
		Timestamp: ts,
		Bids:      fromLevelRecords(bids),
		Asks:      fromLevelRecords(asks),
	}, nil
}

func scanTrade(rows pgx.Rows) (market.Trade, error) {
	var (
		ts        float64
		priceStr  string
		amountStr string
		sideStr   string
	)
	if err := rows.Scan(&ts, &priceStr, &amountStr, &sideStr); err != nil {
		return market.Trade{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return market.Trade{}, fmt.Errorf("parse trade price: %w", err)
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return market.Trade{}, fmt.Errorf("parse trade amount: %w", err)
	}
	side, err := market.ParseSide(sideStr)
	if err != nil {
		return market.Trade{}, err
	}

	return market.Trade{
		Timestamp: ts,
		Price:     price.InexactFloat64(),
		Amount:    amount.InexactFloat64(),
		Side:      side,
	}, nil
}
