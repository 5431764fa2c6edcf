package regime

import (
	"fmt"
	"math"
	"math/rand"
)

// fitHMM fits a first-order hidden Markov model with diagonal-covariance
// Gaussian emissions by Baum-Welch from an explicit seed. The transition
// matrix is smoothed before scoring and decoding, so the returned fit never
// carries an exactly-zero transition probability.
func fitHMM(x [][]float64, cfg Config, seed int64) (*fit, error) {
	n := len(x)
	d := len(x[0])
	k := cfg.States
	if n < k {
		return nil, &DegenerateFitError{
			Backend: BackendHMM,
			Reason:  fmt.Sprintf("%d rows cannot support %d states", n, k),
		}
	}

	rng := rand.New(rand.NewSource(seed))
	p := initHMM(x, k, cfg.MinCovar, rng)

	prevLL := math.Inf(-1)
	for iter := 0; iter < cfg.MaxIter; iter++ {
		logB := emissionLogProbs(x, p)
		alpha, scale, loglik := hmmForward(p, logB)
		beta := hmmBackward(p, logB, scale)

		// Posterior state and transition statistics.
		gamma := make([][]float64, n)
		for t := 0; t < n; t++ {
			g := make([]float64, k)
			for i := 0; i < k; i++ {
				g[i] = alpha[t][i] * beta[t][i]
			}
			normalize(g)
			gamma[t] = g
		}

		xiSum := zeros(k, k)
		for t := 0; t < n-1; t++ {
			total := 0.0
			xi := zeros(k, k)
			for i := 0; i < k; i++ {
				for j := 0; j < k; j++ {
					v := alpha[t][i] * p.a[i][j] * math.Exp(logB[t+1][j]-logB[t+1][k]) * beta[t+1][j]
					xi[i][j] = v
					total += v
				}
			}
			if total == 0 {
				continue
			}
			for i := 0; i < k; i++ {
				for j := 0; j < k; j++ {
					xiSum[i][j] += xi[i][j] / total
				}
			}
		}

		// M-step.
		copy(p.pi, gamma[0])
		for i := 0; i < k; i++ {
			rowSum := 0.0
			for j := 0; j < k; j++ {
				rowSum += xiSum[i][j]
			}
			if rowSum == 0 {
				// State never transitions out in the posterior; keep a
				// uniform row instead of dividing by zero.
				for j := 0; j < k; j++ {
					p.a[i][j] = 1.0 / float64(k)
				}
				continue
			}
			for j := 0; j < k; j++ {
				p.a[i][j] = xiSum[i][j] / rowSum
			}
		}

		for i := 0; i < k; i++ {
			weight := 0.0
			for t := 0; t < n; t++ {
				weight += gamma[t][i]
			}
			if weight < 1e-10 {
				continue
			}
			for j := 0; j < d; j++ {
				mean := 0.0
				for t := 0; t < n; t++ {
					mean += gamma[t][i] * x[t][j]
				}
				mean /= weight

				variance := 0.0
				for t := 0; t < n; t++ {
					dv := x[t][j] - mean
					variance += gamma[t][i] * dv * dv
				}
				variance /= weight
				if variance < cfg.MinCovar {
					variance = cfg.MinCovar
				}
				p.means[i][j] = mean
				p.vars[i][j] = variance
			}
		}

		if math.Abs(loglik-prevLL) < cfg.Tol {
			break
		}
		prevLL = loglik
	}

	// Smooth the transition matrix, then score, decode and compute
	// posteriors against the smoothed model so every output is consistent.
	p.a = SmoothTransitions(p.a, cfg.TransSmooth)

	logB := emissionLogProbs(x, p)
	alpha, scale, loglik := hmmForward(p, logB)
	beta := hmmBackward(p, logB, scale)

	posteriors := make([][]float64, n)
	for t := 0; t < n; t++ {
		g := make([]float64, k)
		for i := 0; i < k; i++ {
			g[i] = alpha[t][i] * beta[t][i]
		}
		normalize(g)
		posteriors[t] = g
	}

	labels := viterbi(p, logB)

	trans := make([][]float64, k)
	for i := range trans {
		trans[i] = append([]float64(nil), p.a[i]...)
	}

	return &fit{labels: labels, posteriors: posteriors, loglik: loglik, trans: trans}, nil
}

// SmoothTransitions adds a uniform pseudocount to every entry of a transition
// matrix and renormalizes each row to sum to 1. No entry of the result is
// exactly zero, reflecting that unseen transitions in a finite sample are
// improbable rather than impossible, and protecting consumers that take logs.
func SmoothTransitions(a [][]float64, eps float64) [][]float64 {
	out := make([][]float64, len(a))
	for i, row := range a {
		r := make([]float64, len(row))
		sum := 0.0
		for j, v := range row {
			r[j] = v + eps
			sum += r[j]
		}
		for j := range r {
			r[j] /= sum
		}
		out[i] = r
	}
	return out
}

type hmmParams struct {
	pi    []float64
	a     [][]float64
	means [][]float64
	vars  [][]float64 // diagonal covariance per state
}

// initHMM seeds a uniform start distribution and transition matrix, emission
// means by seeded k-means, and pooled column variances floored at minCovar.
func initHMM(x [][]float64, k int, minCovar float64, rng *rand.Rand) *hmmParams {
	n := len(x)
	d := len(x[0])

	pi := make([]float64, k)
	a := zeros(k, k)
	for i := 0; i < k; i++ {
		pi[i] = 1.0 / float64(k)
		for j := 0; j < k; j++ {
			a[i][j] = 1.0 / float64(k)
		}
	}

	colVar := make([]float64, d)
	colMean := make([]float64, d)
	for _, row := range x {
		for j, v := range row {
			colMean[j] += v
		}
	}
	for j := range colMean {
		colMean[j] /= float64(n)
	}
	for _, row := range x {
		for j, v := range row {
			dv := v - colMean[j]
			colVar[j] += dv * dv
		}
	}
	for j := range colVar {
		colVar[j] /= float64(n)
		if colVar[j] < minCovar {
			colVar[j] = minCovar
		}
	}

	means := kmeansInit(x, k, rng)
	vars := make([][]float64, k)
	for i := 0; i < k; i++ {
		vars[i] = append([]float64(nil), colVar...)
	}

	return &hmmParams{pi: pi, a: a, means: means, vars: vars}
}

// emissionLogProbs returns an n×(k+1) matrix: column k holds the per-row max
// used to rescale emissions into a numerically safe range for the scaled
// forward-backward passes.
func emissionLogProbs(x [][]float64, p *hmmParams) [][]float64 {
	n := len(x)
	k := len(p.pi)
	out := make([][]float64, n)
	for t, row := range x {
		lp := make([]float64, k+1)
		max := math.Inf(-1)
		for i := 0; i < k; i++ {
			lp[i] = diagLogProb(row, p.means[i], p.vars[i])
			if lp[i] > max {
				max = lp[i]
			}
		}
		lp[k] = max
		out[t] = lp
	}
	return out
}

func diagLogProb(x, mean, variance []float64) float64 {
	lp := 0.0
	for j := range x {
		dv := x[j] - mean[j]
		lp += -0.5 * (math.Log(2*math.Pi*variance[j]) + dv*dv/variance[j])
	}
	return lp
}

// hmmForward runs the scale-normalized forward pass. alpha rows are
// normalized; scale carries the per-step normalizers; the return value is
// the total data log-likelihood.
func hmmForward(p *hmmParams, logB [][]float64) (alpha [][]float64, scale []float64, loglik float64) {
	n := len(logB)
	k := len(p.pi)
	alpha = make([][]float64, n)
	scale = make([]float64, n)

	for t := 0; t < n; t++ {
		a := make([]float64, k)
		for i := 0; i < k; i++ {
			b := math.Exp(logB[t][i] - logB[t][k])
			if t == 0 {
				a[i] = p.pi[i] * b
			} else {
				sum := 0.0
				for j := 0; j < k; j++ {
					sum += alpha[t-1][j] * p.a[j][i]
				}
				a[i] = sum * b
			}
		}
		c := 0.0
		for _, v := range a {
			c += v
		}
		if c == 0 {
			// All mass underflowed; restart the recursion uniformly so the
			// fit degrades instead of producing NaNs.
			for i := range a {
				a[i] = 1.0 / float64(k)
			}
			c = 1
		}
		for i := range a {
			a[i] /= c
		}
		alpha[t] = a
		scale[t] = c
		loglik += math.Log(c) + logB[t][k]
	}
	return alpha, scale, loglik
}

// hmmBackward runs the backward pass under the forward pass's scaling.
func hmmBackward(p *hmmParams, logB [][]float64, scale []float64) [][]float64 {
	n := len(logB)
	k := len(p.pi)
	beta := make([][]float64, n)

	last := make([]float64, k)
	for i := range last {
		last[i] = 1
	}
	beta[n-1] = last

	for t := n - 2; t >= 0; t-- {
		b := make([]float64, k)
		for i := 0; i < k; i++ {
			sum := 0.0
			for j := 0; j < k; j++ {
				sum += p.a[i][j] * math.Exp(logB[t+1][j]-logB[t+1][k]) * beta[t+1][j]
			}
			b[i] = sum / scale[t+1]
		}
		beta[t] = b
	}
	return beta
}

// viterbi decodes the most likely state path in log space.
func viterbi(p *hmmParams, logB [][]float64) []int {
	n := len(logB)
	k := len(p.pi)

	logA := zeros(k, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			logA[i][j] = math.Log(p.a[i][j])
		}
	}

	delta := zeros(n, k)
	back := make([][]int, n)
	for t := range back {
		back[t] = make([]int, k)
	}

	for i := 0; i < k; i++ {
		delta[0][i] = math.Log(p.pi[i]) + logB[0][i]
	}
	for t := 1; t < n; t++ {
		for j := 0; j < k; j++ {
			best := math.Inf(-1)
			arg := 0
			for i := 0; i < k; i++ {
				v := delta[t-1][i] + logA[i][j]
				if v > best {
					best = v
					arg = i
				}
			}
			delta[t][j] = best + logB[t][j]
			back[t][j] = arg
		}
	}

	path := make([]int, n)
	path[n-1] = argmax(delta[n-1])
	for t := n - 2; t >= 0; t-- {
		path[t] = back[t+1][path[t+1]]
	}
	return path
}

func zeros(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	return out
}
