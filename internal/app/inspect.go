package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"

	"book-features/internal/market"
)

// InspectReport describes the quality of a snapshot sample.
type InspectReport struct {
	Snapshots int
	Crossed   int
	EmptySide int

	// Staleness is the collection time minus the newest level update, in seconds.
	StalenessMean float64
	StalenessP50  float64
	StalenessP95  float64
	StalenessMax  float64
	MaxGap        int64
	MeanGap       float64
}

// Inspect prints staleness, gap and crossed-book statistics of the
// configured snapshot sample.
func (a *App) Inspect(ctx context.Context, opts InspectOptions) error {
	limit := opts.Limit
	if limit <= 0 {
		limit = a.Config.Features.SampleLimit
	}

	src, err := a.openSource(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	snapshots, err := src.FetchSnapshots(ctx, a.Config.Features.Symbol, limit)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshots found")
		return nil
	}

	printInspectReport(os.Stdout, a.Config.Features.Symbol, inspectSnapshots(snapshots))
	return nil
}

func inspectSnapshots(snapshots []market.Snapshot) InspectReport {
	report := InspectReport{Snapshots: len(snapshots)}

	staleness := make([]float64, 0, len(snapshots))
	var gapSum int64
	for i, s := range snapshots {
		if s.Crossed() {
			report.Crossed++
		}
		if len(s.Bids) == 0 || len(s.Asks) == 0 {
			report.EmptySide++
		}
		if v, ok := s.Staleness(); ok {
			staleness = append(staleness, v)
		}
		if i > 0 {
			gap := s.Timestamp - snapshots[i-1].Timestamp
			gapSum += gap
			if gap > report.MaxGap {
				report.MaxGap = gap
			}
		}
	}
	if len(snapshots) > 1 {
		report.MeanGap = float64(gapSum) / float64(len(snapshots)-1)
	}

	if len(staleness) > 0 {
		sort.Float64s(staleness)
		report.StalenessMean = stat.Mean(staleness, nil)
		report.StalenessP50 = stat.Quantile(0.5, stat.Empirical, staleness, nil)
		report.StalenessP95 = stat.Quantile(0.95, stat.Empirical, staleness, nil)
		report.StalenessMax = staleness[len(staleness)-1]
	}
	return report
}

func printInspectReport(w io.Writer, symbol string, r InspectReport) {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Symbol\t%s\n", symbol)
	fmt.Fprintf(writer, "Snapshots\t%d\n", r.Snapshots)
	fmt.Fprintf(writer, "Crossed books\t%d\n", r.Crossed)
	fmt.Fprintf(writer, "Empty side\t%d\n", r.EmptySide)
	fmt.Fprintf(writer, "Gap mean / max (s)\t%.2f / %d\n", r.MeanGap, r.MaxGap)
	fmt.Fprintf(writer, "Staleness mean (s)\t%.3f\n", r.StalenessMean)
	fmt.Fprintf(writer, "Staleness p50 / p95 / max (s)\t%.3f / %.3f / %.3f\n", r.StalenessP50, r.StalenessP95, r.StalenessMax)
	writer.Flush()
}
