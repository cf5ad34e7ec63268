package source

import (
	"context"
	"sort"
	"sync"

	"book-features/internal/market"
)

// Memory is an in-process Source used by tests and fixture runs.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[string][]market.Snapshot
	trades    map[string][]market.Trade
}

// NewMemory creates an empty Memory source.
func NewMemory() *Memory {
	return &Memory{
		snapshots: make(map[string][]market.Snapshot),
		trades:    make(map[string][]market.Trade),
	}
}

var _ Source = (*Memory)(nil)

// AddSnapshots stores snapshots for symbol, keeping them sorted by timestamp.
func (m *Memory) AddSnapshots(symbol string, snapshots ...market.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := append(m.snapshots[symbol], snapshots...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp < all[j].Timestamp })
	m.snapshots[symbol] = all
}

// AddTrades stores trades for symbol, keeping them sorted by timestamp.
func (m *Memory) AddTrades(symbol string, trades ...market.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := append(m.trades[symbol], trades...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp < all[j].Timestamp })
	m.trades[symbol] = all
}

// FetchSnapshots returns the earliest limit snapshots for symbol.
func (m *Memory) FetchSnapshots(ctx context.Context, symbol string, limit int) ([]market.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.snapshots[symbol]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]market.Snapshot, len(all))
	copy(out, all)
	return out, nil
}

// FetchTrades returns trades strictly inside (minTS, maxTS).
func (m *Memory) FetchTrades(ctx context.Context, symbol string, minTS, maxTS float64) ([]market.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]market.Trade, 0)
	for _, t := range m.trades[symbol] {
		if t.Timestamp > minTS && t.Timestamp < maxTS {
			out = append(out, t)
		}
	}
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() {}
