package regime

import (
	"fmt"
	"time"
)

// Backend selects the probabilistic model used for regime inference. Callers
// choose explicitly; there is no capability probing.
type Backend int

const (
	// BackendMixture fits a static full-covariance Gaussian mixture; rows are
	// treated as i.i.d. given their state.
	BackendMixture Backend = iota
	// BackendHMM fits a first-order hidden Markov model with diagonal
	// Gaussian emissions, adding temporal persistence to the states.
	BackendHMM
)

// String returns the configuration spelling of the backend.
func (b Backend) String() string {
	switch b {
	case BackendMixture:
		return "mixture"
	case BackendHMM:
		return "hmm"
	default:
		return "unknown"
	}
}

// ParseBackend maps the configuration spelling onto a Backend.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "mixture":
		return BackendMixture, nil
	case "hmm":
		return BackendHMM, nil
	}
	return 0, fmt.Errorf("unknown regime backend %q", s)
}

// Config carries every knob of a regime fit. All state is explicit, seeds
// included, so that fits are reproducible and restarts are parallelizable
// without shared mutable random state.
type Config struct {
	Backend  Backend `json:"backend"`
	States   int     `json:"states"`
	Restarts int     `json:"restarts"`
	MaxIter  int     `json:"max_iter"`
	Tol      float64 `json:"tol"`
	// MinCovar floors every emission variance during fitting so no state can
	// collapse to a near-zero variance and become pathologically overconfident.
	MinCovar float64 `json:"min_covar"`
	// TransSmooth is the pseudocount added to every transition-matrix entry
	// before row renormalization (HMM backend only).
	TransSmooth float64 `json:"trans_smooth"`
	Seed        int64   `json:"seed"`
	// Features names the feature-table columns the model fits on. Rows with
	// any missing selected feature are excluded from fitting.
	Features []string `json:"features"`
	// Expansiveness names the two feature columns whose per-state means
	// define the canonical economic ordering of the latent states.
	Expansiveness [2]string `json:"expansiveness"`
}

// DefaultConfig returns the standard fit configuration for a backend, with
// hyperparameters matching the production training recipe.
func DefaultConfig(backend Backend) Config {
	cfg := Config{
		Backend:     backend,
		States:      3,
		Restarts:    1,
		MaxIter:     500,
		Tol:         1e-4,
		MinCovar:    1e-2,
		TransSmooth: 1e-3,
		Seed:        42,
	}
	if backend == BackendHMM {
		cfg.Restarts = 10
	}
	return cfg
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.Backend != BackendMixture && c.Backend != BackendHMM {
		return fmt.Errorf("invalid backend %d", int(c.Backend))
	}
	if c.States < 2 {
		return fmt.Errorf("states must be >= 2, got %d", c.States)
	}
	if c.Restarts < 1 {
		return fmt.Errorf("restarts must be >= 1, got %d", c.Restarts)
	}
	if c.MaxIter < 1 {
		return fmt.Errorf("max iterations must be >= 1, got %d", c.MaxIter)
	}
	if c.Tol <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", c.Tol)
	}
	if c.MinCovar <= 0 {
		return fmt.Errorf("covariance floor must be positive, got %g", c.MinCovar)
	}
	if c.TransSmooth <= 0 {
		return fmt.Errorf("transition smoothing must be positive, got %g", c.TransSmooth)
	}
	if len(c.Features) == 0 {
		return fmt.Errorf("no model features configured")
	}
	if c.Expansiveness[0] == "" || c.Expansiveness[1] == "" {
		return fmt.Errorf("two expansiveness columns are required")
	}
	return nil
}

// DegenerateFitError reports a fit that cannot yield a safe canonical label
// mapping: fewer than K distinct states observed, or malformed posteriors.
type DegenerateFitError struct {
	Backend Backend
	Reason  string
}

// Error implements the error interface.
func (e *DegenerateFitError) Error() string {
	return fmt.Sprintf("degenerate %s fit: %s", e.Backend, e.Reason)
}

// Canonical regime labels, ordered by descending expansiveness.
const (
	LabelExpansive   = 0
	LabelNeutral     = 1
	LabelContractive = 2
)

// canonicalName returns the human-readable name of a canonical label. Only a
// three-state model carries economic names; other sizes fall back to indices.
func canonicalName(label, states int) string {
	if states == 3 {
		switch label {
		case LabelExpansive:
			return "expansive"
		case LabelNeutral:
			return "neutral"
		case LabelContractive:
			return "contractive"
		}
	}
	return fmt.Sprintf("state_%d", label)
}

// TransitionMatrix is a K×K row-stochastic matrix in canonical-label space:
// P[i][j] is the probability of moving from canonical state i to canonical
// state j. Entries are smoothed, so none is ever exactly zero.
type TransitionMatrix struct {
	P [][]float64 `json:"p"`
}

// States returns the dimension K.
func (m *TransitionMatrix) States() int {
	return len(m.P)
}

// RowLabels returns human-readable row labels ("from_expansive", ...).
func (m *TransitionMatrix) RowLabels() []string {
	labels := make([]string, len(m.P))
	for i := range labels {
		labels[i] = "from_" + canonicalName(i, len(m.P))
	}
	return labels
}

// ColLabels returns human-readable column labels ("to_expansive", ...).
func (m *TransitionMatrix) ColLabels() []string {
	labels := make([]string, len(m.P))
	for i := range labels {
		labels[i] = "to_" + canonicalName(i, len(m.P))
	}
	return labels
}

// Result is the output of a regime fit over the retained feature rows.
// States and Posteriors are in canonical-label space; Transition is nil for
// the mixture backend. An empty Result (zero rows) is the valid outcome of
// an empty feature table, not an error.
type Result struct {
	Dates         []time.Time       `json:"dates"`
	States        []int             `json:"states"`
	Posteriors    [][]float64       `json:"posteriors"`
	LogLikelihood float64           `json:"log_likelihood"`
	Transition    *TransitionMatrix `json:"transition,omitempty"`
}

// Len returns the number of assigned rows.
func (r *Result) Len() int {
	return len(r.States)
}

// StateName returns the human-readable name of the canonical state at row i.
func (r *Result) StateName(i int) string {
	k := 0
	if len(r.Posteriors) > 0 {
		k = len(r.Posteriors[0])
	}
	return canonicalName(r.States[i], k)
}

// fit is a backend's raw output before canonical relabeling. labels are
// arbitrary model-internal indices in [0, K).
type fit struct {
	labels     []int
	posteriors [][]float64
	loglik     float64
	trans      [][]float64 // nil for the mixture backend
}
