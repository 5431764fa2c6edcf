package frame

import (
	"fmt"
	"math"
	"time"
)

// Table is a chronological, timestamp-indexed collection of named float64
// columns of equal length. Missing cells are represented as NaN. Row order is
// semantically meaningful: it defines "previous row" for lagged metrics.
type Table struct {
	dates []time.Time
	order []string
	cols  map[string][]float64
}

// New creates an empty table over the given chronological date index.
func New(dates []time.Time) *Table {
	return &Table{
		dates: dates,
		cols:  make(map[string][]float64),
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.dates)
}

// Dates returns the table's date index. Callers must not mutate it.
func (t *Table) Dates() []time.Time {
	return t.dates
}

// Date returns the timestamp of row i.
func (t *Table) Date(i int) time.Time {
	return t.dates[i]
}

// Columns returns column names in insertion order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// Column returns the named column's values. The slice is the table's backing
// storage; callers treat it as read-only.
func (t *Table) Column(name string) ([]float64, bool) {
	vals, ok := t.cols[name]
	return vals, ok
}

// AddColumn attaches a column to the table. The column must match the row
// count and must not already exist.
func (t *Table) AddColumn(name string, values []float64) error {
	if _, exists := t.cols[name]; exists {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(values) != len(t.dates) {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), len(t.dates))
	}
	t.cols[name] = values
	t.order = append(t.order, name)
	return nil
}

// Missing reports whether a cell value represents a missing observation.
func Missing(v float64) bool {
	return math.IsNaN(v)
}

// missingValue is the sentinel stored in cells with no defined value.
func missingValue() float64 {
	return math.NaN()
}
