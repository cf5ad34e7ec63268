package features

import (
	"fmt"
	"math"
)

// Table is a feature table: rows keyed by snapshot timestamp and named float
// columns. Missing values are NaN. Column order is insertion order.
type Table struct {
	Timestamps []int64

	names   []string
	columns map[string][]float64
}

// NewTable creates a table with one row per timestamp and no columns.
func NewTable(timestamps []int64) *Table {
	ts := make([]int64, len(timestamps))
	copy(ts, timestamps)
	return &Table{Timestamps: ts, columns: make(map[string][]float64)}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Timestamps) }

// Names returns the column names in insertion order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Set adds or replaces a column. values must have one entry per row.
func (t *Table) Set(name string, values []float64) error {
	if len(values) != t.Len() {
		return fmt.Errorf("column %s has %d values, table has %d rows", name, len(values), t.Len())
	}
	if _, ok := t.columns[name]; !ok {
		t.names = append(t.names, name)
	}
	t.columns[name] = values
	return nil
}

// Column returns the values of a column.
func (t *Table) Column(name string) ([]float64, bool) {
	v, ok := t.columns[name]
	return v, ok
}

// Row returns the feature row at index i. Missing values are left out.
func (t *Table) Row(i int) map[string]float64 {
	row := make(map[string]float64, len(t.names))
	for _, name := range t.names {
		if v := t.columns[name][i]; !math.IsNaN(v) {
			row[name] = v
		}
	}
	return row
}

// Filter returns a new table holding the rows where keep is true.
func (t *Table) Filter(keep []bool) *Table {
	idx := make([]int, 0, len(keep))
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	return t.take(idx)
}

// Slice returns a new table with rows [from, to).
func (t *Table) Slice(from, to int) *Table {
	idx := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		idx = append(idx, i)
	}
	return t.take(idx)
}

func (t *Table) take(idx []int) *Table {
	ts := make([]int64, len(idx))
	for j, i := range idx {
		ts[j] = t.Timestamps[i]
	}
	out := &Table{Timestamps: ts, columns: make(map[string][]float64, len(t.names))}
	for _, name := range t.names {
		src := t.columns[name]
		dst := make([]float64, len(idx))
		for j, i := range idx {
			dst[j] = src[i]
		}
		out.names = append(out.names, name)
		out.columns[name] = dst
	}
	return out
}

// Drop returns a new table without the named columns.
func (t *Table) Drop(names ...string) *Table {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := &Table{Timestamps: append([]int64(nil), t.Timestamps...), columns: make(map[string][]float64)}
	for _, name := range t.names {
		if skip[name] {
			continue
		}
		out.names = append(out.names, name)
		out.columns[name] = append([]float64(nil), t.columns[name]...)
	}
	return out
}

// MissingMask reports, per row, whether any of the named columns is missing.
// With no names every column is checked.
func (t *Table) MissingMask(names ...string) []bool {
	if len(names) == 0 {
		names = t.names
	}
	mask := make([]bool, t.Len())
	for _, name := range names {
		col, ok := t.columns[name]
		if !ok {
			continue
		}
		for i, v := range col {
			if math.IsNaN(v) {
				mask[i] = true
			}
		}
	}
	return mask
}

// DropMissing returns a new table without rows missing any of the named
// columns (all columns when none are named), and the number of rows dropped.
func (t *Table) DropMissing(names ...string) (*Table, int) {
	mask := t.MissingMask(names...)
	keep := make([]bool, len(mask))
	dropped := 0
	for i, missing := range mask {
		keep[i] = !missing
		if missing {
			dropped++
		}
	}
	return t.Filter(keep), dropped
}

// Matrix returns the named columns as row-major observations.
func (t *Table) Matrix(names []string) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for j, name := range names {
		col, ok := t.columns[name]
		if !ok {
			return nil, fmt.Errorf("unknown column %s", name)
		}
		cols[j] = col
	}
	out := make([][]float64, t.Len())
	for i := range out {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = cols[j][i]
		}
		out[i] = row
	}
	return out, nil
}
