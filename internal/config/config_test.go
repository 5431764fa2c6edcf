package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a minimal configuration that passes Validate, for tests
// to break one field at a time.
func validConfig() *Config {
	cfg := Default()
	cfg.Series = []SeriesSpec{
		{Name: "fed_assets", Unit: "Millions of U.S. Dollars"},
		{Name: "tga", Unit: "Billions of U.S. Dollars"},
	}
	cfg.Features.Columns = []string{"net_liquidity"}
	cfg.Derived.Metrics = []string{"net_liquidity"}
	cfg.Derived.Combinations = []CombinationSpec{
		{Name: "net_liquidity", Terms: []TermSpec{
			{Column: "fed_assets", Coef: 1},
			{Column: "tga", Coef: -1},
		}},
	}
	cfg.Model.Features = []string{"net_liquidity_z252"}
	cfg.Model.Expansiveness = []string{"net_liquidity_z252", "net_liquidity_z90"}
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "hmm", cfg.Model.Backend)
	assert.Equal(t, 3, cfg.Model.States)
	assert.Equal(t, 10, cfg.Model.Restarts)
	assert.Equal(t, 500, cfg.Model.MaxIter)
	assert.Equal(t, 1e-4, cfg.Model.Tol)
	assert.Equal(t, 1e-2, cfg.Model.MinCovar)
	assert.Equal(t, 1e-3, cfg.Model.TransSmooth)
	assert.Equal(t, int64(42), cfg.Model.Seed)
	assert.Equal(t, []int{90, 252}, cfg.Features.Windows)
	assert.Equal(t, []int{1, 7}, cfg.Derived.DiffLags)
	assert.Equal(t, 3, cfg.Ingest.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Ingest.Backoff)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "duplicate series name",
			mutate:  func(c *Config) { c.Series[1].Name = "fed_assets" },
			wantErr: "duplicate series name",
		},
		{
			name: "unknown fx reference",
			mutate: func(c *Config) {
				c.Series[0].FX = &FXRef{Series: "eurusd", Direction: "target_per_source"}
			},
			wantErr: "unknown fx series",
		},
		{
			name: "fx series declaring its own fx",
			mutate: func(c *Config) {
				c.Series = append(c.Series, SeriesSpec{
					Name: "usdjpy",
					FX:   &FXRef{Series: "tga", Direction: "source_per_target"},
				})
				c.Series[0].FX = &FXRef{Series: "usdjpy", Direction: "source_per_target"}
			},
			wantErr: "itself declares an fx conversion",
		},
		{
			name: "invalid fx direction",
			mutate: func(c *Config) {
				c.Series[0].FX = &FXRef{Series: "tga", Direction: "upside_down"}
			},
			wantErr: "validate config",
		},
		{
			name:    "single series",
			mutate:  func(c *Config) { c.Series = c.Series[:1] },
			wantErr: "validate config",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Model.Backend = "neural" },
			wantErr: "validate config",
		},
		{
			name:    "too few states",
			mutate:  func(c *Config) { c.Model.States = 1 },
			wantErr: "validate config",
		},
		{
			name:    "expansiveness needs exactly two columns",
			mutate:  func(c *Config) { c.Model.Expansiveness = []string{"only_one"} },
			wantErr: "validate config",
		},
		{
			name:    "window below two",
			mutate:  func(c *Config) { c.Features.Windows = []int{1} },
			wantErr: "validate config",
		},
		{
			name:    "bad logging level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "validate config",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	yaml := `
series:
  - name: fed_assets
    unit: Millions of U.S. Dollars
  - name: jpy_per_usd
  - name: boj_assets
    unit: 100 Million Yen
    fx:
      series: jpy_per_usd
      direction: source_per_target
      sub_unit_scale: 100
derived:
  combinations:
    - name: net_liquidity
      terms:
        - column: fed_assets
          coef: 1
        - column: boj_assets
          coef: 1
  metrics: [net_liquidity]
features:
  columns: [net_liquidity]
  windows: [90, 252]
model:
  backend: mixture
  restarts: 4
  features: [net_liquidity_z252]
  expansiveness: [net_liquidity_z252, net_liquidity_z90]
logging:
  level: debug
  format: text
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// File values override defaults.
	assert.Equal(t, "mixture", cfg.Model.Backend)
	assert.Equal(t, 4, cfg.Model.Restarts)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched defaults survive the merge.
	assert.Equal(t, 500, cfg.Model.MaxIter)
	assert.Equal(t, int64(42), cfg.Model.Seed)

	require.Len(t, cfg.Series, 3)
	boj := cfg.Series[2]
	require.NotNil(t, boj.FX)
	assert.Equal(t, "jpy_per_usd", boj.FX.Series)
	assert.Equal(t, "source_per_target", boj.FX.Direction)
	assert.Equal(t, 100.0, boj.FX.SubUnitScale)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "read config file")
}

func TestLoadInvalidConfigFails(t *testing.T) {
	yaml := `
series:
  - name: only_one
features:
  columns: [x]
model:
  features: [x_z90]
  expansiveness: [x_z90, x_z90]
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
