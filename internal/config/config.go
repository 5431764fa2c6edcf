package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete pipeline configuration, threaded explicitly into
// each component. No component reads ambient global state.
type Config struct {
	Series   []SeriesSpec `yaml:"series" validate:"required,min=2,dive"`
	Derived  DerivedSpec  `yaml:"derived"`
	Features FeatureSpec  `yaml:"features" validate:"required"`
	Model    ModelSpec    `yaml:"model" validate:"required"`
	Ingest   IngestSpec   `yaml:"ingest"`
	Logging  LoggingSpec  `yaml:"logging"`
}

// SeriesSpec describes one raw input series and how to normalize it.
type SeriesSpec struct {
	Name string `yaml:"name" validate:"required"`
	// Unit is the source unit metadata (e.g. "Billions of Dollars"). An
	// unrecognized unit is a warning with multiplier 1, never a failure.
	Unit string `yaml:"unit"`
	// FX, when set, converts the series to the common currency.
	FX *FXRef `yaml:"fx"`
}

// FXRef names the FX series used to convert a native-currency series, with
// an explicit quote direction. Direction is configuration, never inference.
type FXRef struct {
	Series    string `yaml:"series" validate:"required"`
	Direction string `yaml:"direction" validate:"required,oneof=target_per_source source_per_target"`
	// SubUnitScale handles sub-unit quotations ("100-million yen" → 100).
	SubUnitScale float64 `yaml:"sub_unit_scale"`
}

// DerivedSpec configures level combinations and lagged change metrics.
type DerivedSpec struct {
	Combinations []CombinationSpec `yaml:"combinations" validate:"dive"`
	// Metrics are the columns to difference and percent-change.
	Metrics  []string `yaml:"metrics"`
	DiffLags []int    `yaml:"diff_lags" validate:"dive,min=1"`
	PctLags  []int    `yaml:"pct_change_lags" validate:"dive,min=1"`
}

// CombinationSpec is a named linear combination of aligned columns.
type CombinationSpec struct {
	Name  string     `yaml:"name" validate:"required"`
	Terms []TermSpec `yaml:"terms" validate:"required,min=1,dive"`
}

// TermSpec is one weighted column of a combination.
type TermSpec struct {
	Column string  `yaml:"column" validate:"required"`
	Coef   float64 `yaml:"coef" validate:"required"`
}

// FeatureSpec configures the rolling feature stage.
type FeatureSpec struct {
	// Columns are z-scored and percentile-ranked over each window.
	Columns []string `yaml:"columns" validate:"required,min=1"`
	Windows []int    `yaml:"windows" validate:"required,min=1,dive,min=2"`
}

// ModelSpec configures the regime inference engine.
type ModelSpec struct {
	Backend       string   `yaml:"backend" validate:"oneof=mixture hmm"`
	States        int      `yaml:"states" validate:"min=2"`
	Restarts      int      `yaml:"restarts" validate:"min=1"`
	MaxIter       int      `yaml:"max_iter" validate:"min=1"`
	Tol           float64  `yaml:"tol" validate:"gt=0"`
	MinCovar      float64  `yaml:"min_covar" validate:"gt=0"`
	TransSmooth   float64  `yaml:"trans_smooth" validate:"gt=0"`
	Seed          int64    `yaml:"seed"`
	Features      []string `yaml:"features" validate:"required,min=1"`
	Expansiveness []string `yaml:"expansiveness" validate:"required,len=2"`
}

// IngestSpec configures the collaborator-facing ingestion contract.
type IngestSpec struct {
	DataDir     string        `yaml:"data_dir"`
	MaxAttempts int           `yaml:"max_attempts" validate:"min=1"`
	Backoff     time.Duration `yaml:"backoff"`
}

// LoggingSpec configures structured logging output.
type LoggingSpec struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// Default returns the configuration preloaded with the production training
// recipe's hyperparameters. Load layers file and environment overrides on
// top of it.
func Default() *Config {
	return &Config{
		Model: ModelSpec{
			Backend:     "hmm",
			States:      3,
			Restarts:    10,
			MaxIter:     500,
			Tol:         1e-4,
			MinCovar:    1e-2,
			TransSmooth: 1e-3,
			Seed:        42,
		},
		Features: FeatureSpec{
			Windows: []int{90, 252},
		},
		Derived: DerivedSpec{
			DiffLags: []int{1, 7},
			PctLags:  []int{1, 7},
		},
		Ingest: IngestSpec{
			DataDir:     "data",
			MaxAttempts: 3,
			Backoff:     2 * time.Second,
		},
		Logging: LoggingSpec{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty), then GLI_-prefixed environment
// variables, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("GLI", cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration, including cross-references between
// sections (FX refs, expansiveness columns).
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	names := make(map[string]bool, len(c.Series))
	for _, s := range c.Series {
		if names[s.Name] {
			return fmt.Errorf("duplicate series name %q", s.Name)
		}
		names[s.Name] = true
	}
	fxCapable := make(map[string]bool, len(c.Series))
	for _, s := range c.Series {
		if s.FX == nil {
			fxCapable[s.Name] = true
		}
	}
	for _, s := range c.Series {
		if s.FX == nil {
			continue
		}
		if !names[s.FX.Series] {
			return fmt.Errorf("series %q references unknown fx series %q", s.Name, s.FX.Series)
		}
		// An FX series cannot itself require conversion.
		if !fxCapable[s.FX.Series] {
			return fmt.Errorf("series %q uses fx series %q which itself declares an fx conversion", s.Name, s.FX.Series)
		}
	}
	return nil
}
