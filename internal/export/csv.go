package export

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"book-features/internal/features"
)

// Downsample keeps at most max rows of tbl, evenly spaced and always
// including the first and last row.
func Downsample(tbl *features.Table, max int) *features.Table {
	n := tbl.Len()
	if max <= 0 || n <= max {
		return tbl
	}

	keep := make([]bool, n)
	if max == 1 {
		keep[0] = true
		return tbl.Filter(keep)
	}
	step := float64(n-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= n {
			idx = n - 1
		}
		keep[idx] = true
	}
	return tbl.Filter(keep)
}

// WriteCSV writes tbl with a leading timestamp column. Missing values are
// written as empty cells.
func WriteCSV(path string, tbl *features.Table) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	names := tbl.Names()
	header := append([]string{"timestamp"}, names...)
	if err := writer.Write(header); err != nil {
		return err
	}

	cols := make([][]float64, len(names))
	for j, name := range names {
		cols[j], _ = tbl.Column(name)
	}

	record := make([]string, len(header))
	for i, ts := range tbl.Timestamps {
		record[0] = strconv.FormatInt(ts, 10)
		for j := range names {
			record[j+1] = formatFloat(cols[j][i])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
