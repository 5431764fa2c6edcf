package regime

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"gliregime/internal/frame"
)

// posteriorTolerance is the allowed deviation of a posterior row's sum from 1.
const posteriorTolerance = 1e-6

// Engine fits a regime model over a feature table and produces canonical
// regime assignments.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an Engine. A nil logger falls back to slog.Default().
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Fit selects the configured feature columns from the table, excludes rows
// with any missing selected feature, standardizes the remainder, fits the
// configured backend with bounded multi-restart optimization, and relabels
// the winning fit into canonical economic order.
//
// An empty retained-row set (for instance from an empty aligned table) yields
// an empty Result, not an error. Degenerate fits fail loudly.
func (e *Engine) Fit(ctx context.Context, t *frame.Table, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("regime config: %w", err)
	}

	cols := make([][]float64, len(cfg.Features))
	for i, name := range cfg.Features {
		col, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("feature column %q not in table", name)
		}
		cols[i] = col
	}
	exp1Col, ok := t.Column(cfg.Expansiveness[0])
	if !ok {
		return nil, fmt.Errorf("expansiveness column %q not in table", cfg.Expansiveness[0])
	}
	exp2Col, ok := t.Column(cfg.Expansiveness[1])
	if !ok {
		return nil, fmt.Errorf("expansiveness column %q not in table", cfg.Expansiveness[1])
	}

	// Retain only rows where every selected feature is defined.
	var (
		x     [][]float64
		dates []time.Time
		exp1  []float64
		exp2  []float64
	)
	for row := 0; row < t.Len(); row++ {
		defined := true
		for _, col := range cols {
			if frame.Missing(col[row]) {
				defined = false
				break
			}
		}
		if !defined {
			continue
		}
		vec := make([]float64, len(cols))
		for i, col := range cols {
			vec[i] = col[row]
		}
		x = append(x, vec)
		dates = append(dates, t.Date(row))
		exp1 = append(exp1, exp1Col[row])
		exp2 = append(exp2, exp2Col[row])
	}

	if len(x) == 0 {
		e.logger.WarnContext(ctx, "no rows with complete features, returning empty assignment",
			"backend", cfg.Backend.String(),
			"features", cfg.Features,
		)
		return &Result{}, nil
	}

	e.logger.InfoContext(ctx, "fitting regime model",
		"backend", cfg.Backend.String(),
		"states", cfg.States,
		"restarts", cfg.Restarts,
		"rows", len(x),
		"features", len(cfg.Features),
	)

	best, err := e.fitBest(ctx, standardize(x), cfg)
	if err != nil {
		return nil, err
	}

	mapping, err := CanonicalMapping(cfg.Backend, best.labels, cfg.States, exp1, exp2)
	if err != nil {
		return nil, err
	}
	applyMapping(best, mapping)

	if err := checkPosteriors(best.posteriors, cfg); err != nil {
		return nil, err
	}

	result := &Result{
		Dates:         dates,
		States:        best.labels,
		Posteriors:    best.posteriors,
		LogLikelihood: best.loglik,
	}
	if best.trans != nil {
		result.Transition = &TransitionMatrix{P: best.trans}
	}

	e.logger.InfoContext(ctx, "regime fit completed",
		"backend", cfg.Backend.String(),
		"rows", result.Len(),
		"log_likelihood", result.LogLikelihood,
	)
	return result, nil
}

// fitBest runs the configured number of independent restarts and keeps the
// single highest-scoring fit. Restarts share nothing but the immutable
// standardized matrix, so they run on parallel workers; the reduction is a
// strict greater-than over seed order, so ties keep the first-seen fit and
// the output is reproducible regardless of scheduling.
func (e *Engine) fitBest(ctx context.Context, x [][]float64, cfg Config) (*fit, error) {
	fits := make([]*fit, cfg.Restarts)

	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < cfg.Restarts; r++ {
		r := r
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seed := cfg.Seed + int64(r)
			var (
				f   *fit
				err error
			)
			switch cfg.Backend {
			case BackendMixture:
				f, err = fitMixture(x, cfg, seed)
			case BackendHMM:
				f, err = fitHMM(x, cfg, seed)
			}
			if err != nil {
				return fmt.Errorf("restart %d (seed %d): %w", r, seed, err)
			}
			fits[r] = f
			e.logger.DebugContext(gctx, "restart completed",
				"restart", r,
				"seed", seed,
				"log_likelihood", f.loglik,
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := fits[0]
	for _, f := range fits[1:] {
		if f.loglik > best.loglik {
			best = f
		}
	}
	return best, nil
}

// checkPosteriors verifies every posterior row is a probability vector
// summing to 1 within tolerance.
func checkPosteriors(posteriors [][]float64, cfg Config) error {
	for i, post := range posteriors {
		sum := 0.0
		for _, p := range post {
			sum += p
		}
		if math.Abs(sum-1) > posteriorTolerance {
			return &DegenerateFitError{
				Backend: cfg.Backend,
				Reason:  fmt.Sprintf("posterior at row %d sums to %.9f", i, sum),
			}
		}
	}
	return nil
}
