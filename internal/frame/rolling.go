package frame

import (
	"fmt"
	"math"
	"sort"
)

// Rolling statistics look strictly backward: the window for row i is rows
// i-w+1..i inclusive. No statistic ever reads past the current row, so the
// feature table is safe for backtest-style consumers.

// RollingZScore adds the trailing-window z-score of a column:
// (x[i] - mean(window)) / populationStddev(window).
//
// The value is missing when fewer than w rows precede the current one, when
// any window value is missing, or when the window's standard deviation is
// exactly zero (a constant window carries no z-score, and must not fault).
func RollingZScore(t *Table, name, column string, window int) error {
	col, err := rollingInput(t, name, column, window)
	if err != nil {
		return err
	}

	out := make([]float64, t.Len())
	for i := range out {
		out[i] = missingValue()
		if i < window-1 {
			continue
		}

		win := col[i-window+1 : i+1]
		mean, ok := windowMean(win)
		if !ok {
			continue
		}

		sumSq := 0.0
		for _, v := range win {
			d := v - mean
			sumSq += d * d
		}
		std := math.Sqrt(sumSq / float64(window)) // population, not sample
		if std == 0 {
			continue
		}

		out[i] = (col[i] - mean) / std
	}

	return t.AddColumn(name, out)
}

// RollingPctRank adds the trailing-window percentile rank of a column: the
// fractional rank of x[i] among the w most recent values including itself,
// normalized to [0,1], with ties taking the average rank position. The rank
// is computed independently per window. It is a scale-invariant regime signal
// retained alongside z-scores for redundancy between the model backends.
func RollingPctRank(t *Table, name, column string, window int) error {
	col, err := rollingInput(t, name, column, window)
	if err != nil {
		return err
	}

	out := make([]float64, t.Len())
	buf := make([]float64, window)
	for i := range out {
		out[i] = missingValue()
		if i < window-1 {
			continue
		}

		win := col[i-window+1 : i+1]
		if windowHasMissing(win) {
			continue
		}

		copy(buf, win)
		sort.Float64s(buf)
		current := col[i]

		// Average-rank convention: rank = (#below) + (#equal + 1)/2,
		// normalized by the window length.
		below := sort.SearchFloat64s(buf, current)
		above := sort.Search(len(buf), func(j int) bool { return buf[j] > current })
		equal := above - below
		rank := float64(below) + (float64(equal)+1)/2

		out[i] = rank / float64(window)
	}

	return t.AddColumn(name, out)
}

func rollingInput(t *Table, name, column string, window int) ([]float64, error) {
	if window < 2 {
		return nil, fmt.Errorf("column %q: window must be >= 2, got %d", name, window)
	}
	col, ok := t.Column(column)
	if !ok {
		return nil, fmt.Errorf("column %q: unknown input column %q", name, column)
	}
	return col, nil
}

func windowMean(win []float64) (float64, bool) {
	sum := 0.0
	for _, v := range win {
		if Missing(v) {
			return 0, false
		}
		sum += v
	}
	return sum / float64(len(win)), true
}

func windowHasMissing(win []float64) bool {
	for _, v := range win {
		if Missing(v) {
			return true
		}
	}
	return false
}
