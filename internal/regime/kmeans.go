package regime

import "math/rand"

// kmeansInit produces k starting means via k-means++ seeding followed by a
// handful of Lloyd iterations. Both backends initialize their emission means
// this way; on well-separated data it lands one mean per mode, which keeps
// EM and Baum-Welch out of the worst local optima regardless of seed.
func kmeansInit(x [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(x)
	d := len(x[0])

	centers := make([][]float64, k)
	centers[0] = append([]float64(nil), x[rng.Intn(n)]...)

	// k-means++ seeding: each next center is drawn with probability
	// proportional to squared distance from the nearest existing center.
	dist := make([]float64, n)
	for c := 1; c < k; c++ {
		total := 0.0
		for i, row := range x {
			best := sqDist(row, centers[0])
			for _, ctr := range centers[1:c] {
				if v := sqDist(row, ctr); v < best {
					best = v
				}
			}
			dist[i] = best
			total += best
		}
		if total == 0 {
			// All points coincide with existing centers; fall back to a
			// random row.
			centers[c] = append([]float64(nil), x[rng.Intn(n)]...)
			continue
		}
		target := rng.Float64() * total
		idx := 0
		for cum := 0.0; idx < n-1; idx++ {
			cum += dist[idx]
			if cum >= target {
				break
			}
		}
		centers[c] = append([]float64(nil), x[idx]...)
	}

	// A few Lloyd iterations to settle the seeds.
	assign := make([]int, n)
	for iter := 0; iter < 10; iter++ {
		changed := false
		for i, row := range x {
			best := 0
			bestDist := sqDist(row, centers[0])
			for c := 1; c < k; c++ {
				if v := sqDist(row, centers[c]); v < bestDist {
					best = c
					bestDist = v
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		sums := zeros(k, d)
		for i, row := range x {
			counts[assign[i]]++
			for j, v := range row {
				sums[assign[i]][j] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for j := 0; j < d; j++ {
				centers[c][j] = sums[c][j] / float64(counts[c])
			}
		}
	}

	return centers
}

func sqDist(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
