package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"book-features/internal/config"
	"book-features/internal/features"
	"book-features/internal/market"
	"book-features/internal/model"
	"book-features/internal/storage"
	"book-features/internal/validation"
)

func testApp(t *testing.T, body string) *App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return NewApp(cfg, zerolog.Nop())
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDecodeSnapshots(t *testing.T) {
	dump := `{"timestamp": 1700000000, "bids": [{"price": 100, "amount": 2, "timestamp": 1699999999.5}], "asks": [{"price": 101, "amount": 1, "timestamp": 1699999998}]}
{"_id": 1700000001, "bids": [{"price": "100.5", "amount": "0.25", "timestamp": "1700000000.75"}], "asks": []}
`
	snaps, err := decodeSnapshots(strings.NewReader(dump))
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	assert.Equal(t, int64(1700000000), snaps[0].Timestamp)
	assert.Equal(t, []market.Level{{Price: 100, Amount: 2, Timestamp: 1699999999.5}}, snaps[0].Bids)
	assert.Equal(t, []market.Level{{Price: 101, Amount: 1, Timestamp: 1699999998}}, snaps[0].Asks)

	assert.Equal(t, int64(1700000001), snaps[1].Timestamp)
	assert.Equal(t, []market.Level{{Price: 100.5, Amount: 0.25, Timestamp: 1700000000.75}}, snaps[1].Bids)
	assert.Empty(t, snaps[1].Asks)
}

func TestDecodeSnapshotsErrors(t *testing.T) {
	_, err := decodeSnapshots(strings.NewReader(`{"bids": [], "asks": []}`))
	assert.ErrorIs(t, err, market.ErrStructural)
	assert.ErrorContains(t, err, "record 1 has no timestamp")

	_, err = decodeSnapshots(strings.NewReader(`{"timestamp": 1, "bids": [`))
	assert.ErrorIs(t, err, market.ErrStructural)

	_, err = decodeSnapshots(strings.NewReader(`{"timestamp": 1, "bids": [{"price": "abc"}]}`))
	assert.ErrorIs(t, err, market.ErrStructural)
}

func TestDecodeTrades(t *testing.T) {
	dump := `{"timestamp": "1700000000.25", "price": 100, "amount": "0.5", "type": "buy"}
{"timestamp": 1700000001, "price": "101", "amount": 1, "side": "sell"}
`
	trades, err := decodeTrades(strings.NewReader(dump))
	require.NoError(t, err)
	assert.Equal(t, []market.Trade{
		{Timestamp: 1700000000.25, Price: 100, Amount: 0.5, Side: market.SideBuy},
		{Timestamp: 1700000001, Price: 101, Amount: 1, Side: market.SideSell},
	}, trades)

	_, err = decodeTrades(strings.NewReader(`{"timestamp": 1, "price": 1, "amount": 1, "side": "hold"}`))
	assert.ErrorIs(t, err, market.ErrStructural)
	assert.ErrorContains(t, err, "trade record 1")
}

type recordingStore struct {
	snapshotBatches []int
	tradeBatches    []int
	symbols         []string
}

func (r *recordingStore) InsertSnapshots(_ context.Context, symbol string, snapshots []market.Snapshot) error {
	r.symbols = append(r.symbols, symbol)
	r.snapshotBatches = append(r.snapshotBatches, len(snapshots))
	return nil
}

func (r *recordingStore) CountSnapshots(context.Context, string) (int64, error) {
	return 0, nil
}

func (r *recordingStore) InsertTrades(_ context.Context, symbol string, trades []market.Trade) error {
	r.symbols = append(r.symbols, symbol)
	r.tradeBatches = append(r.tradeBatches, len(trades))
	return nil
}

var _ storage.SnapshotStore = (*recordingStore)(nil)

func TestIngestBatches(t *testing.T) {
	store := &recordingStore{}
	snaps := make([]market.Snapshot, 5)
	trades := make([]market.Trade, 3)

	require.NoError(t, ingestBatches(context.Background(), store, "btcusd", snaps, trades, 2))
	assert.Equal(t, []int{2, 2, 1}, store.snapshotBatches)
	assert.Equal(t, []int{2, 1}, store.tradeBatches)
	for _, s := range store.symbols {
		assert.Equal(t, "btcusd", s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store = &recordingStore{}
	err := ingestBatches(ctx, store, "btcusd", snaps, trades, 2)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, store.snapshotBatches)
}

func TestIngestDryRun(t *testing.T) {
	a := testApp(t, "app:\n  name: test\n")

	snapshots := writeFile(t, "books.jsonl", `{"timestamp": 11, "bids": [{"price": 99, "amount": 1, "timestamp": 10}], "asks": [{"price": 101, "amount": 1, "timestamp": 10}]}
{"timestamp": 10, "bids": [{"price": 99, "amount": 1, "timestamp": 9}], "asks": [{"price": 101, "amount": 1, "timestamp": 9}]}
`)
	trades := writeFile(t, "trades.jsonl", `{"timestamp": 10.5, "price": 100, "amount": 1, "type": "sell"}
{"timestamp": 9.5, "price": 100, "amount": 1, "type": "buy"}
`)

	// Out-of-order dumps are sorted before validation.
	err := a.Ingest(context.Background(), IngestOptions{SnapshotsPath: snapshots, TradesPath: trades, DryRun: true})
	require.NoError(t, err)

	duplicate := writeFile(t, "dup.jsonl", `{"timestamp": 10, "bids": [], "asks": []}
{"timestamp": 10, "bids": [], "asks": []}
`)
	err = a.Ingest(context.Background(), IngestOptions{SnapshotsPath: duplicate, DryRun: true})
	assert.ErrorIs(t, err, market.ErrStructural)

	assert.Error(t, a.Ingest(context.Background(), IngestOptions{DryRun: true}))

	// Without a DSN a real ingest cannot proceed.
	err = a.Ingest(context.Background(), IngestOptions{SnapshotsPath: snapshots})
	assert.ErrorContains(t, err, "database.dsn not configured")
}

func TestFeatureParams(t *testing.T) {
	a := testApp(t, `
features:
  symbol: ethusd
  sample_limit: 500
  mid_offsets: [3]
  trades_offsets: [60]
  crossed_books: drop
  imbalance:
    - kind: weighted
      depth: 4
  adjusted_price:
    - kind: simple
`)
	p, err := a.featureParams()
	require.NoError(t, err)

	assert.Equal(t, "ethusd", p.Symbol)
	assert.Equal(t, 500, p.Limit)
	assert.Equal(t, []int64{3}, p.MidOffsets)
	assert.Equal(t, []int64{60}, p.TradeOffsets)
	assert.True(t, p.DropCrossed)
	assert.Equal(t, []features.ImbalanceEstimator{features.WeightedImbalance{Depth: 4}}, p.Imbalance)
	assert.Equal(t, []features.AdjustedPriceEstimator{features.SimpleAdjustedPrice{Depth: features.DefaultSimpleDepth}}, p.AdjustedPrice)

	a.Config.Features.Imbalance = []config.EstimatorConfig{{Kind: "median"}}
	_, err = a.featureParams()
	assert.ErrorContains(t, err, "features.imbalance")
}

func TestSweepOptions(t *testing.T) {
	a := testApp(t, "validation:\n  targets: [mid5]\n  ridge: 0.5\n")

	opts := a.sweepOptions(nil)
	assert.Equal(t, []string{"mid5"}, opts.Targets)
	assert.Equal(t, []model.Kind{model.KindClassifier, model.KindRegressor}, opts.Kinds)
	assert.Equal(t, 0.5, opts.Ridge)

	assert.Equal(t, []string{"mid20"}, a.sweepOptions([]string{"mid20"}).Targets)
}

func TestBuildRequiresOutput(t *testing.T) {
	a := testApp(t, "app:\n  name: test\n")
	assert.ErrorContains(t, a.Build(context.Background(), BuildOptions{}), "at least one of")
}

func TestInspectSnapshots(t *testing.T) {
	snaps := []market.Snapshot{
		{Timestamp: 100, Bids: []market.Level{{Price: 99, Amount: 1, Timestamp: 98}}, Asks: []market.Level{{Price: 101, Amount: 1, Timestamp: 99}}},
		{Timestamp: 101, Bids: []market.Level{{Price: 100, Amount: 1, Timestamp: 101}}, Asks: []market.Level{{Price: 100, Amount: 1, Timestamp: 97}}},
		{Timestamp: 105, Asks: []market.Level{{Price: 102, Amount: 1, Timestamp: 101}}},
		{Timestamp: 106, Bids: []market.Level{{Price: 99, Amount: 1, Timestamp: 103}}, Asks: []market.Level{{Price: 101, Amount: 1, Timestamp: 103}}},
	}

	r := inspectSnapshots(snaps)
	assert.Equal(t, 4, r.Snapshots)
	assert.Equal(t, 1, r.Crossed)
	assert.Equal(t, 1, r.EmptySide)
	assert.Equal(t, int64(4), r.MaxGap)
	assert.InDelta(t, 2.0, r.MeanGap, 1e-12)
	assert.InDelta(t, 2.0, r.StalenessMean, 1e-12)
	assert.Equal(t, 1.0, r.StalenessP50)
	assert.Equal(t, 4.0, r.StalenessP95)
	assert.Equal(t, 4.0, r.StalenessMax)

	var buf bytes.Buffer
	printInspectReport(&buf, "btcusd", r)
	assert.Contains(t, buf.String(), "Crossed books")
	assert.Contains(t, buf.String(), "2.00 / 4")
}

func TestPrintEvaluations(t *testing.T) {
	evals := []validation.Evaluation{
		{Target: "mid5", Kind: model.KindRegressor, Rows: 120, Result: validation.Result{
			InSample: 0.25, OutSample: 0.125,
			Folds: []validation.FoldScore{{}, {}},
		}},
	}

	var buf bytes.Buffer
	printEvaluations(&buf, evals)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Target"))
	assert.Equal(t, []string{"mid5", "regressor", "120", "2", "0.2500", "0.1250"}, strings.Fields(lines[1]))
}

func TestPrintFeatureRows(t *testing.T) {
	built := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []storage.FeatureRow{
		{Symbol: "btcusd", Timestamp: 1700000000, BuiltAt: built, Features: map[string]float64{"width": 0.5, "mid5": 0.001}},
		{Symbol: "btcusd", Timestamp: 1700000001, BuiltAt: built, Features: map[string]float64{"width": 1.5}},
	}

	var buf bytes.Buffer
	printFeatureRows(&buf, rows)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"Timestamp", "Time", "(UTC)", "mid5", "width"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1700000000", "2023-11-14T22:13:20Z", "0.001", "0.5"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"1700000001", "2023-11-14T22:13:21Z", "-", "1.5"}, strings.Fields(lines[2]))
}

func TestWriteFeatureRowsJSON(t *testing.T) {
	built := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []storage.FeatureRow{
		{Symbol: "btcusd", Timestamp: 1700000000, BuiltAt: built, Features: map[string]float64{"width": 0.5}},
		{Symbol: "btcusd", Timestamp: 1700000001, BuiltAt: built, Features: map[string]float64{}},
	}

	var buf bytes.Buffer
	require.NoError(t, writeFeatureRowsJSON(&buf, rows))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"symbol":"btcusd","timestamp":1700000000,"built_at":"2024-01-01T00:00:00Z","features":{"width":0.5}}`, lines[0])
	assert.JSONEq(t, `{"symbol":"btcusd","timestamp":1700000001,"built_at":"2024-01-01T00:00:00Z","features":{}}`, lines[1])
}
