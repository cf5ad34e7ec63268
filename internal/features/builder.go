package features

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"book-features/internal/market"
	"book-features/internal/source"
)

// Base column names.
const (
	ColumnWidth = "width"
	ColumnMid   = "mid"
)

// LabelColumn names the forward log-return label for offset n.
func LabelColumn(n int64) string { return fmt.Sprintf("mid%d", n) }

// LagColumn names the backward log-return feature for offset n.
func LagColumn(n int64) string { return fmt.Sprintf("prev%d", n) }

// TradesColumn names the log(mid/vwap) feature for look-back n.
func TradesColumn(n int64) string { return fmt.Sprintf("trades%d", n) }

// AggressorColumn names the aggressor imbalance feature for look-back n.
func AggressorColumn(n int64) string { return fmt.Sprintf("aggressor%d", n) }

// TrendColumn names the trade price trend feature for look-back n.
func TrendColumn(n int64) string { return fmt.Sprintf("trend%d", n) }

// IsLabelColumn reports whether name is a forward label column.
func IsLabelColumn(name string) bool {
	if !strings.HasPrefix(name, ColumnMid) || len(name) == len(ColumnMid) {
		return false
	}
	for _, r := range name[len(ColumnMid):] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Params selects the inputs and feature set of one build.
type Params struct {
	Symbol        string
	Limit         int
	MidOffsets    []int64
	TradeOffsets  []int64
	Sensitivity   float64
	Imbalance     []ImbalanceEstimator
	AdjustedPrice []AdjustedPriceEstimator

	// DropCrossed removes snapshots whose best bid is at or above the best ask
	// before any column is computed. By default crossed books are kept.
	DropCrossed bool
}

// DefaultParams mirrors the offsets the feature set was designed around.
func DefaultParams(symbol string, limit int) Params {
	return Params{
		Symbol:       symbol,
		Limit:        limit,
		MidOffsets:   []int64{5, 10, 20},
		TradeOffsets: []int64{30, 120, 300},
		Sensitivity:  1,
		Imbalance: []ImbalanceEstimator{
			SimpleImbalance{Depth: DefaultSimpleDepth},
			WeightedImbalance{Depth: DefaultWeightedDepth},
		},
		AdjustedPrice: []AdjustedPriceEstimator{
			SimpleAdjustedPrice{Depth: DefaultSimpleDepth},
			WeightedAdjustedPrice{Depth: DefaultWeightedDepth},
		},
	}
}

// LabelColumns returns the forward label column names in offset order.
func (p Params) LabelColumns() []string {
	out := make([]string, len(p.MidOffsets))
	for i, n := range p.MidOffsets {
		out[i] = LabelColumn(n)
	}
	return out
}

// Validate checks the parameters before any data is fetched.
func (p Params) Validate() error {
	if p.Symbol == "" {
		return errors.New("symbol is required")
	}
	if p.Limit <= 0 {
		return errors.New("limit must be greater than zero")
	}
	if len(p.MidOffsets) == 0 {
		return errors.New("at least one mid offset is required")
	}
	if p.Sensitivity <= 0 {
		return errors.New("sensitivity must be greater than zero")
	}
	for _, offsets := range [][]int64{p.MidOffsets, p.TradeOffsets} {
		seen := make(map[int64]bool, len(offsets))
		for _, n := range offsets {
			if n <= 0 {
				return fmt.Errorf("offsets must be positive, got %d", n)
			}
			if seen[n] {
				return fmt.Errorf("duplicate offset %d", n)
			}
			seen[n] = true
		}
	}
	names := make(map[string]bool)
	for _, e := range p.Imbalance {
		if names[e.Name()] {
			return fmt.Errorf("duplicate estimator %s", e.Name())
		}
		names[e.Name()] = true
	}
	for _, e := range p.AdjustedPrice {
		if names[e.Name()] {
			return fmt.Errorf("duplicate estimator %s", e.Name())
		}
		names[e.Name()] = true
	}
	return nil
}

// Builder turns stored snapshots and trades into a feature table.
type Builder struct {
	snapshots source.SnapshotSource
	trades    source.TradeSource
	logger    zerolog.Logger
}

// NewBuilder wires the data sources of one run.
func NewBuilder(snapshots source.SnapshotSource, trades source.TradeSource, logger zerolog.Logger) *Builder {
	return &Builder{
		snapshots: snapshots,
		trades:    trades,
		logger:    logger.With().Str("component", "features").Logger(),
	}
}

// Build runs the full feature construction for p.
//
// Rows lacking any forward label are dropped before book and trade features
// are computed. Per-row numeric failures become missing values; structural
// failures (source errors, malformed or unordered records, nothing left to
// label) abort the build and match market.ErrStructural.
func (b *Builder) Build(ctx context.Context, p Params) (*Table, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feature params: %w", err)
	}
	log := b.logger.With().Str("symbol", p.Symbol).Logger()

	snapshots, err := b.snapshots.FetchSnapshots(ctx, p.Symbol, p.Limit)
	if err != nil {
		return nil, market.Structural("fetch snapshots", err)
	}
	if len(snapshots) == 0 {
		return nil, market.Structural(fmt.Sprintf("no snapshots stored for %s", p.Symbol), nil)
	}
	if err := market.ValidateSeries(snapshots); err != nil {
		return nil, err
	}
	if p.DropCrossed {
		kept := snapshots[:0:0]
		for _, s := range snapshots {
			if !s.Crossed() {
				kept = append(kept, s)
			}
		}
		log.Debug().Int("dropped", len(snapshots)-len(kept)).Msg("dropped crossed books")
		snapshots = kept
	}

	books, table, emptyBooks := bookTable(snapshots)
	if emptyBooks > 0 {
		log.Debug().Int("rows", emptyBooks).Msg("snapshots with an empty side")
	}

	mids, _ := table.Column(ColumnMid)
	for _, n := range p.MidOffsets {
		future := FutureMid(table.Timestamps, mids, n, p.Sensitivity)
		if err := table.Set(LabelColumn(n), LogRatio(future, mids)); err != nil {
			return nil, err
		}
		past := FutureMid(table.Timestamps, mids, -n, p.Sensitivity)
		lag := LogRatio(mids, past)
		// No earlier reference: assume no change.
		FillMissing(lag, 0)
		if err := table.Set(LagColumn(n), lag); err != nil {
			return nil, err
		}
	}

	keep := table.MissingMask(p.LabelColumns()...)
	retained := make([]Book, 0, len(books))
	for i, missing := range keep {
		keep[i] = !missing
		if !missing {
			retained = append(retained, books[i])
		}
	}
	table = table.Filter(keep)
	log.Debug().Int("dropped", len(books)-len(retained)).Int("retained", len(retained)).Msg("dropped rows without labels")
	if table.Len() == 0 {
		return nil, market.Structural("no snapshot has every forward label", nil)
	}

	mids, _ = table.Column(ColumnMid)
	if err := addBookColumns(table, retained, mids, p, log); err != nil {
		return nil, err
	}

	if len(p.TradeOffsets) > 0 {
		minTS := float64(table.Timestamps[0] - slices.Max(p.TradeOffsets))
		maxTS := float64(table.Timestamps[table.Len()-1])
		trades, err := b.trades.FetchTrades(ctx, p.Symbol, minTS, maxTS)
		if err != nil {
			return nil, market.Structural("fetch trades", err)
		}
		if err := market.ValidateTrades(trades); err != nil {
			return nil, err
		}
		log.Debug().Int("trades", len(trades)).Float64("min_ts", minTS).Float64("max_ts", maxTS).Msg("fetched trades")
		if err := addTradeColumns(table, trades, mids, p.TradeOffsets); err != nil {
			return nil, err
		}
	}

	out := table.Drop(ColumnMid)
	log.Info().Int("rows", out.Len()).Int("columns", len(out.Names())).Msg("feature table built")
	return out, nil
}

func bookTable(snapshots []market.Snapshot) ([]Book, *Table, int) {
	ts := make([]int64, len(snapshots))
	widths := make([]float64, len(snapshots))
	mids := make([]float64, len(snapshots))
	books := make([]Book, len(snapshots))
	empty := 0
	for i, s := range snapshots {
		ts[i] = s.Timestamp
		book, err := NewBook(s)
		if err != nil {
			empty++
			book.Width, book.Mid = math.NaN(), math.NaN()
		}
		books[i] = book
		widths[i] = book.Width
		mids[i] = book.Mid
	}
	table := NewTable(ts)
	// Lengths match by construction.
	_ = table.Set(ColumnWidth, widths)
	_ = table.Set(ColumnMid, mids)
	return books, table, empty
}

func addBookColumns(table *Table, books []Book, mids []float64, p Params, log zerolog.Logger) error {
	for _, est := range p.Imbalance {
		values := make([]float64, len(books))
		failed := 0
		for i, book := range books {
			v, err := est.EstimateImbalance(book)
			if err != nil {
				v = math.NaN()
				failed++
			}
			values[i] = v
		}
		if failed > 0 {
			log.Debug().Str("column", est.Name()).Int("rows", failed).Msg("estimator degraded to missing")
		}
		if err := table.Set(est.Name(), values); err != nil {
			return err
		}
	}
	for _, est := range p.AdjustedPrice {
		values := make([]float64, len(books))
		failed := 0
		for i, book := range books {
			v, err := est.EstimateAdjustedPrice(book)
			if err != nil {
				v = math.NaN()
				failed++
			}
			values[i] = v
		}
		if failed > 0 {
			log.Debug().Str("column", est.Name()).Int("rows", failed).Msg("estimator degraded to missing")
		}
		if err := table.Set(est.Name(), LogRatio(values, mids)); err != nil {
			return err
		}
	}
	return nil
}

func addTradeColumns(table *Table, trades []market.Trade, mids []float64, offsets []int64) error {
	for _, n := range offsets {
		vwaps := make([]float64, table.Len())
		aggressors := make([]float64, table.Len())
		trends := make([]float64, table.Len())
		for i, ts := range table.Timestamps {
			window := TradesInRange(trades, ts, n)
			vwaps[i], _ = VWAP(window)
			aggressors[i] = Aggressor(window)
			trends[i] = Trend(window)
		}
		avg := LogRatio(mids, vwaps)
		// No trades in range.
		FillMissing(avg, 0)
		if err := table.Set(TradesColumn(n), avg); err != nil {
			return err
		}
		if err := table.Set(AggressorColumn(n), aggressors); err != nil {
			return err
		}
		if err := table.Set(TrendColumn(n), trends); err != nil {
			return err
		}
	}
	return nil
}
