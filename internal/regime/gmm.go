package regime

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// fitMixture fits a K-component Gaussian mixture with full covariance by
// expectation-maximization from an explicit seed. Rows are i.i.d. given
// their component; no temporal structure is assumed.
func fitMixture(x [][]float64, cfg Config, seed int64) (*fit, error) {
	n := len(x)
	d := len(x[0])
	k := cfg.States
	if n < k {
		return nil, &DegenerateFitError{
			Backend: BackendMixture,
			Reason:  fmt.Sprintf("%d rows cannot support %d states", n, k),
		}
	}

	rng := rand.New(rand.NewSource(seed))

	// Initialize means by seeded k-means, every covariance from the pooled
	// data covariance, weights uniform.
	base := dataCovariance(x, cfg.MinCovar)
	weights := make([]float64, k)
	means := kmeansInit(x, k, rng)
	covs := make([]*mat.SymDense, k)
	for c := 0; c < k; c++ {
		weights[c] = 1.0 / float64(k)
		covs[c] = copySym(base)
	}

	resp := make([][]float64, n)
	for i := range resp {
		resp[i] = make([]float64, k)
	}
	logp := make([]float64, k)

	prevLL := math.Inf(-1)
	var loglik float64

	for iter := 0; iter < cfg.MaxIter; iter++ {
		dens, err := gaussians(means, covs, cfg.MinCovar)
		if err != nil {
			return nil, err
		}

		// E-step: responsibilities and data log-likelihood.
		loglik = 0
		for i, row := range x {
			for c := 0; c < k; c++ {
				logp[c] = math.Log(weights[c]) + dens[c].logProb(row)
			}
			lse := logSumExp(logp)
			loglik += lse
			for c := 0; c < k; c++ {
				resp[i][c] = math.Exp(logp[c] - lse)
			}
		}

		// M-step.
		for c := 0; c < k; c++ {
			nk := 0.0
			for i := 0; i < n; i++ {
				nk += resp[i][c]
			}
			if nk < 1e-10 {
				// Empty component: reseed it on a random row rather than
				// letting its covariance degenerate.
				means[c] = append([]float64(nil), x[rng.Intn(n)]...)
				covs[c] = copySym(base)
				weights[c] = 1e-10
				continue
			}

			weights[c] = nk / float64(n)

			mean := make([]float64, d)
			for i, row := range x {
				for j, v := range row {
					mean[j] += resp[i][c] * v
				}
			}
			for j := range mean {
				mean[j] /= nk
			}
			means[c] = mean

			cov := mat.NewSymDense(d, nil)
			for i, row := range x {
				w := resp[i][c]
				for p := 0; p < d; p++ {
					dp := row[p] - mean[p]
					for q := p; q < d; q++ {
						cov.SetSym(p, q, cov.At(p, q)+w*dp*(row[q]-mean[q]))
					}
				}
			}
			for p := 0; p < d; p++ {
				for q := p; q < d; q++ {
					cov.SetSym(p, q, cov.At(p, q)/nk)
				}
				cov.SetSym(p, p, cov.At(p, p)+cfg.MinCovar)
			}
			covs[c] = cov
		}
		normalize(weights)

		if math.Abs(loglik-prevLL)/float64(n) < cfg.Tol {
			break
		}
		prevLL = loglik
	}

	labels := make([]int, n)
	posteriors := make([][]float64, n)
	for i := range resp {
		posteriors[i] = append([]float64(nil), resp[i]...)
		labels[i] = argmax(resp[i])
	}

	return &fit{labels: labels, posteriors: posteriors, loglik: loglik}, nil
}

// gaussian evaluates a full-covariance multivariate normal log-density via a
// Cholesky factorization of the covariance.
type gaussian struct {
	mean    []float64
	chol    mat.Cholesky
	logNorm float64 // -(d·log2π + logdet)/2
}

// gaussians factorizes one gaussian per component, jittering the diagonal
// until the covariance is positive definite.
func gaussians(means [][]float64, covs []*mat.SymDense, jitter float64) ([]gaussian, error) {
	out := make([]gaussian, len(means))
	for c := range means {
		d := len(means[c])
		cov := copySym(covs[c])

		var chol mat.Cholesky
		ok := chol.Factorize(cov)
		for attempt := 0; !ok && attempt < 8; attempt++ {
			for p := 0; p < d; p++ {
				cov.SetSym(p, p, cov.At(p, p)+jitter)
			}
			ok = chol.Factorize(cov)
		}
		if !ok {
			return nil, &DegenerateFitError{
				Backend: BackendMixture,
				Reason:  fmt.Sprintf("component %d covariance is not positive definite", c),
			}
		}

		out[c] = gaussian{
			mean:    means[c],
			chol:    chol,
			logNorm: -0.5 * (float64(d)*math.Log(2*math.Pi) + chol.LogDet()),
		}
	}
	return out, nil
}

func (g *gaussian) logProb(x []float64) float64 {
	d := len(x)
	diff := mat.NewVecDense(d, nil)
	for j := 0; j < d; j++ {
		diff.SetVec(j, x[j]-g.mean[j])
	}
	solved := mat.NewVecDense(d, nil)
	if err := g.chol.SolveVecTo(solved, diff); err != nil {
		return math.Inf(-1)
	}
	return g.logNorm - 0.5*mat.Dot(diff, solved)
}

// dataCovariance computes the pooled covariance of the data with a floored
// diagonal, used to initialize every component.
func dataCovariance(x [][]float64, floor float64) *mat.SymDense {
	n := len(x)
	d := len(x[0])
	m := mat.NewDense(n, d, nil)
	for i, row := range x {
		m.SetRow(i, row)
	}
	cov := mat.NewSymDense(d, nil)
	stat.CovarianceMatrix(cov, m, nil)
	for p := 0; p < d; p++ {
		cov.SetSym(p, p, cov.At(p, p)+floor)
	}
	return cov
}

func copySym(s *mat.SymDense) *mat.SymDense {
	d := s.SymmetricDim()
	out := mat.NewSymDense(d, nil)
	out.CopySym(s)
	return out
}

func logSumExp(v []float64) float64 {
	max := v[0]
	for _, x := range v[1:] {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	sum := 0.0
	for _, x := range v {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

func normalize(v []float64) {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	if sum == 0 {
		return
	}
	for i := range v {
		v[i] /= sum
	}
}
