package frame

import "fmt"

// Term is one weighted column in a linear combination.
type Term struct {
	Column string  `json:"column"`
	Coef   float64 `json:"coef"`
}

// LinearCombine adds a new column computed as the weighted sum of existing
// columns (e.g. net liquidity = +assets −reverse_repo −treasury_account).
// A row where any input is missing yields a missing output.
func LinearCombine(t *Table, name string, terms []Term) error {
	if len(terms) == 0 {
		return fmt.Errorf("combination %q: no terms given", name)
	}

	inputs := make([][]float64, len(terms))
	for i, term := range terms {
		col, ok := t.Column(term.Column)
		if !ok {
			return fmt.Errorf("combination %q: unknown column %q", name, term.Column)
		}
		inputs[i] = col
	}

	out := make([]float64, t.Len())
	for row := 0; row < t.Len(); row++ {
		sum := 0.0
		defined := true
		for i, term := range terms {
			v := inputs[i][row]
			if Missing(v) {
				defined = false
				break
			}
			sum += term.Coef * v
		}
		if defined {
			out[row] = sum
		} else {
			out[row] = missingValue()
		}
	}

	return t.AddColumn(name, out)
}

// Diff adds the lag-k row difference of a column: out[i] = col[i] - col[i-k].
// Lags are row counts, not calendar gaps; rows may be irregular before
// alignment fills them, so a calendar-aware lag would be a false precision.
// The first k rows are missing.
func Diff(t *Table, name, column string, lag int) error {
	col, err := lagInput(t, name, column, lag)
	if err != nil {
		return err
	}

	out := make([]float64, t.Len())
	for i := range out {
		if i < lag || Missing(col[i]) || Missing(col[i-lag]) {
			out[i] = missingValue()
			continue
		}
		out[i] = col[i] - col[i-lag]
	}

	return t.AddColumn(name, out)
}

// PctChange adds the lag-k percent change of a column:
// out[i] = (col[i] - col[i-k]) / col[i-k]. A zero or missing denominator
// yields a missing value, never infinity or a fault.
func PctChange(t *Table, name, column string, lag int) error {
	col, err := lagInput(t, name, column, lag)
	if err != nil {
		return err
	}

	out := make([]float64, t.Len())
	for i := range out {
		if i < lag || Missing(col[i]) || Missing(col[i-lag]) || col[i-lag] == 0 {
			out[i] = missingValue()
			continue
		}
		out[i] = (col[i] - col[i-lag]) / col[i-lag]
	}

	return t.AddColumn(name, out)
}

func lagInput(t *Table, name, column string, lag int) ([]float64, error) {
	if lag < 1 {
		return nil, fmt.Errorf("column %q: lag must be >= 1, got %d", name, lag)
	}
	col, ok := t.Column(column)
	if !ok {
		return nil, fmt.Errorf("column %q: unknown input column %q", name, column)
	}
	return col, nil
}
