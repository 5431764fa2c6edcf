package frame

import (
	"fmt"
	"sort"
	"time"

	"gliregime/internal/series"
)

// Align outer-joins the canonical input series on timestamp, forward-fills
// each column independently, and truncates the leading window where any
// column is not yet populated.
//
// Forward-fill encodes "the last known value remains the best estimate until
// a new one is observed", the standard treatment for stock-like level series
// that report on different native cadences (weekly assets against daily FX).
// Values are never propagated backward.
//
// If the inputs share no overlapping history the result is an empty table, a
// valid terminal state rather than an error; downstream stages must tolerate
// it. Two input series with the same name are an error: one would silently
// shadow the other in the table.
func Align(ss ...series.Series) (*Table, error) {
	names := make([]string, len(ss))
	seen := make(map[string]bool, len(ss))
	for i, s := range ss {
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate series name %q", s.Name)
		}
		seen[s.Name] = true
		names[i] = s.Name
	}

	// Full outer union of timestamps.
	dateSet := make(map[time.Time]struct{})
	for _, s := range ss {
		for _, o := range s.Obs {
			dateSet[o.Date] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	pos := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		pos[d] = i
	}

	cols := make([][]float64, len(ss))
	for i, s := range ss {
		col := make([]float64, len(dates))
		for j := range col {
			col[j] = missingValue()
		}
		for _, o := range s.Obs {
			col[pos[o.Date]] = o.Value
		}
		forwardFill(col)
		cols[i] = col
	}

	// Drop rows preceding the first point where every column is populated.
	start := len(dates)
	for i := range dates {
		complete := true
		for _, col := range cols {
			if Missing(col[i]) {
				complete = false
				break
			}
		}
		if complete {
			start = i
			break
		}
	}

	t := New(dates[start:])
	for i, name := range names {
		if err := t.AddColumn(name, cols[i][start:]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// forwardFill propagates the last non-missing value forward in place.
func forwardFill(col []float64) {
	last := missingValue()
	for i, v := range col {
		if Missing(v) {
			col[i] = last
		} else {
			last = v
		}
	}
}
