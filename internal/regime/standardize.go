package regime

import "math"

// standardize centers each feature column to zero mean and scales it to unit
// variance (population convention). A zero-variance column keeps scale 1 so
// that constant features pass through centered instead of dividing by zero.
func standardize(x [][]float64) [][]float64 {
	n := len(x)
	if n == 0 {
		return nil
	}
	d := len(x[0])

	means := make([]float64, d)
	for _, row := range x {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}

	scales := make([]float64, d)
	for _, row := range x {
		for j, v := range row {
			dv := v - means[j]
			scales[j] += dv * dv
		}
	}
	for j := range scales {
		scales[j] = math.Sqrt(scales[j] / float64(n))
		if scales[j] == 0 {
			scales[j] = 1
		}
	}

	out := make([][]float64, n)
	for i, row := range x {
		o := make([]float64, d)
		for j, v := range row {
			o[j] = (v - means[j]) / scales[j]
		}
		out[i] = o
	}
	return out
}
