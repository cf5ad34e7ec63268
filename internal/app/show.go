package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"book-features/internal/storage"
)

// Show prints the most recent persisted feature rows.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show feature rows")
	}
	if closeStore != nil {
		defer closeStore()
	}

	rows, err := store.ListRecentFeatureRows(ctx, a.Config.Features.Symbol, opts.Limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "no feature rows found")
		return nil
	}

	if opts.JSON {
		return writeFeatureRowsJSON(os.Stdout, rows)
	}
	printFeatureRows(os.Stdout, rows)
	return nil
}

type featureRowLine struct {
	Symbol    string             `json:"symbol"`
	Timestamp int64              `json:"timestamp"`
	BuiltAt   time.Time          `json:"built_at"`
	Features  map[string]float64 `json:"features"`
}

// writeFeatureRowsJSON writes one JSON object per row.
func writeFeatureRowsJSON(w io.Writer, rows []storage.FeatureRow) error {
	enc := json.NewEncoder(w)
	for _, row := range rows {
		line := featureRowLine{
			Symbol:    row.Symbol,
			Timestamp: row.Timestamp,
			BuiltAt:   row.BuiltAt.UTC(),
			Features:  row.Features,
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

func printFeatureRows(w io.Writer, rows []storage.FeatureRow) {
	seen := make(map[string]bool)
	var names []string
	for _, row := range rows {
		for name := range row.Features {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(writer, "Timestamp\tTime (UTC)")
	for _, name := range names {
		fmt.Fprintf(writer, "\t%s", name)
	}
	fmt.Fprintln(writer)

	for _, row := range rows {
		fmt.Fprintf(writer, "%d\t%s", row.Timestamp, time.Unix(row.Timestamp, 0).UTC().Format(time.RFC3339))
		for _, name := range names {
			cell := "-"
			if v, ok := row.Features[name]; ok {
				cell = strconv.FormatFloat(v, 'g', 6, 64)
			}
			fmt.Fprintf(writer, "\t%s", cell)
		}
		fmt.Fprintln(writer)
	}
	writer.Flush()
}
