// Package pipeline sequences the five core stages (normalize, align, derive,
// roll, infer) over one batch run. Each run recomputes every table from the
// current canonical series set; there is no incremental model update, which
// trades a little compute for reproducibility.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"gliregime/internal/config"
	"gliregime/internal/frame"
	"gliregime/internal/regime"
	"gliregime/internal/series"
)

// Output is the core's product for the persistence/reporting collaborators:
// the full feature table, the regime assignment (with transition matrix for
// the sequential backend), and every non-fatal warning raised along the way.
type Output struct {
	RunID    string
	Features *frame.Table
	Regimes  *regime.Result
	Warnings []series.Warning
}

// Runner executes the pipeline under an explicit configuration.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewRunner creates a Runner. A nil logger falls back to slog.Default().
func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run processes the raw series batch end to end. Fatal errors name the
// offending series or column; statistical undefined-ness flows through as
// missing values and surfaces only as excluded rows in the fit.
func (r *Runner) Run(ctx context.Context, raw map[string][]series.RawRecord) (*Output, error) {
	out := &Output{RunID: uuid.NewString()}
	logger := r.logger.With("run_id", out.RunID)

	canonical, warnings, err := r.normalizeAll(ctx, logger, raw)
	if err != nil {
		return nil, err
	}
	out.Warnings = warnings

	aligned, err := frame.Align(canonical...)
	if err != nil {
		return nil, err
	}
	if aligned.Len() == 0 {
		logger.WarnContext(ctx, "no overlapping history across input series, result is empty")
	}
	logger.InfoContext(ctx, "aligned series",
		"series", len(canonical),
		"rows", aligned.Len(),
	)

	if err := r.derive(aligned); err != nil {
		return nil, err
	}
	if err := r.roll(aligned); err != nil {
		return nil, err
	}
	out.Features = aligned
	logger.InfoContext(ctx, "feature table built",
		"rows", aligned.Len(),
		"columns", len(aligned.Columns()),
	)

	modelCfg, err := r.modelConfig()
	if err != nil {
		return nil, err
	}
	result, err := regime.NewEngine(logger).Fit(ctx, aligned, modelCfg)
	if err != nil {
		return nil, err
	}
	out.Regimes = result

	return out, nil
}

// normalizeAll runs stage 1 over every configured series: coercion, unit
// rescaling, and currency conversion. FX series are normalized first so the
// series that depend on them convert against canonical rates.
func (r *Runner) normalizeAll(ctx context.Context, logger *slog.Logger, raw map[string][]series.RawRecord) ([]series.Series, []series.Warning, error) {
	var warnings []series.Warning

	base := make(map[string]series.Series, len(r.cfg.Series))
	for _, spec := range r.cfg.Series {
		records, ok := raw[spec.Name]
		if !ok {
			return nil, nil, &series.DataFormatError{Series: spec.Name, Reason: "series not present in input batch"}
		}

		s, w, err := series.Normalize(spec.Name, records)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, w...)

		mult, recognized := series.MultiplierForUnit(spec.Unit)
		if !recognized && spec.Unit != "" {
			warnings = append(warnings, series.UnitWarning(spec.Name, spec.Unit))
			logger.WarnContext(ctx, "unrecognized unit metadata, using multiplier 1",
				"series", spec.Name,
				"unit", spec.Unit,
			)
		}
		base[spec.Name] = series.Rescale(s, mult)
	}

	canonical := make([]series.Series, 0, len(base))
	for _, spec := range r.cfg.Series {
		s := base[spec.Name]
		if spec.FX != nil {
			dir, err := series.ParseQuoteDirection(spec.FX.Direction)
			if err != nil {
				return nil, nil, fmt.Errorf("series %q: %w", spec.Name, err)
			}
			scale := spec.FX.SubUnitScale
			if scale == 0 {
				scale = 1
			}
			converted, w, err := series.ConvertCurrency(s, base[spec.FX.Series], dir, scale)
			if err != nil {
				return nil, nil, err
			}
			warnings = append(warnings, w...)
			s = converted
		}
		logger.DebugContext(ctx, "normalized series",
			"series", spec.Name,
			"observations", s.Len(),
		)
		canonical = append(canonical, s)
	}

	return canonical, warnings, nil
}

// derive runs stage 3: level combinations, then row-lag differences and
// percent changes for each configured metric.
func (r *Runner) derive(t *frame.Table) error {
	for _, comb := range r.cfg.Derived.Combinations {
		terms := make([]frame.Term, len(comb.Terms))
		for i, ts := range comb.Terms {
			terms[i] = frame.Term{Column: ts.Column, Coef: ts.Coef}
		}
		if err := frame.LinearCombine(t, comb.Name, terms); err != nil {
			return err
		}
	}

	for _, metric := range r.cfg.Derived.Metrics {
		for _, lag := range r.cfg.Derived.DiffLags {
			name := fmt.Sprintf("%s_d%d", metric, lag)
			if err := frame.Diff(t, name, metric, lag); err != nil {
				return err
			}
		}
		for _, lag := range r.cfg.Derived.PctLags {
			name := fmt.Sprintf("%s_d%d_pct", metric, lag)
			if err := frame.PctChange(t, name, metric, lag); err != nil {
				return err
			}
		}
	}
	return nil
}

// roll runs stage 4: windowed z-scores and percentile ranks for every
// configured column and window length.
func (r *Runner) roll(t *frame.Table) error {
	for _, column := range r.cfg.Features.Columns {
		for _, window := range r.cfg.Features.Windows {
			zName := fmt.Sprintf("%s_z%d", column, window)
			if err := frame.RollingZScore(t, zName, column, window); err != nil {
				return err
			}
			rankName := fmt.Sprintf("%s_pct%d", column, window)
			if err := frame.RollingPctRank(t, rankName, column, window); err != nil {
				return err
			}
		}
	}
	return nil
}

// modelConfig translates the configuration section into a regime.Config.
func (r *Runner) modelConfig() (regime.Config, error) {
	m := r.cfg.Model

	backend, err := regime.ParseBackend(m.Backend)
	if err != nil {
		return regime.Config{}, err
	}
	if len(m.Expansiveness) != 2 {
		return regime.Config{}, fmt.Errorf("model expansiveness needs exactly 2 columns, got %d", len(m.Expansiveness))
	}

	cfg := regime.DefaultConfig(backend)
	cfg.States = m.States
	cfg.Restarts = m.Restarts
	cfg.MaxIter = m.MaxIter
	cfg.Tol = m.Tol
	cfg.MinCovar = m.MinCovar
	cfg.TransSmooth = m.TransSmooth
	cfg.Seed = m.Seed
	cfg.Features = m.Features
	cfg.Expansiveness = [2]string{m.Expansiveness[0], m.Expansiveness[1]}
	return cfg, nil
}
