package regime

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gliregime/internal/frame"
)

// clusterTable builds a 2-column table of three well-separated clusters of
// rowsPerCluster rows each, in descending order of level. Deterministic jitter
// keeps each cluster tight without depending on a random source.
func clusterTable(t *testing.T, rowsPerCluster int) *frame.Table {
	t.Helper()

	centers := []float64{10, 0, -10}
	n := rowsPerCluster * len(centers)

	dates := make([]time.Time, n)
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		dates[i] = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		c := centers[i/rowsPerCluster]
		jitter := 0.1 * float64(i%7-3)
		a[i] = c + jitter
		b[i] = c - jitter
	}

	tbl := frame.New(dates)
	require.NoError(t, tbl.AddColumn("a", a))
	require.NoError(t, tbl.AddColumn("b", b))
	return tbl
}

func mixtureConfig() Config {
	cfg := DefaultConfig(BackendMixture)
	cfg.Features = []string{"a", "b"}
	cfg.Expansiveness = [2]string{"a", "b"}
	return cfg
}

func TestEngineFitMixture(t *testing.T) {
	tbl := clusterTable(t, 20)
	engine := NewEngine(nil)

	res, err := engine.Fit(context.Background(), tbl, mixtureConfig())
	require.NoError(t, err)
	require.Equal(t, 60, res.Len())
	assert.Nil(t, res.Transition)

	// Canonical relabeling puts the high-level cluster at 0 and the low-level
	// cluster at 2 no matter which internal index each cluster was fit under.
	for i := 0; i < 20; i++ {
		assert.Equal(t, LabelExpansive, res.States[i], "row %d", i)
	}
	for i := 20; i < 40; i++ {
		assert.Equal(t, LabelNeutral, res.States[i], "row %d", i)
	}
	for i := 40; i < 60; i++ {
		assert.Equal(t, LabelContractive, res.States[i], "row %d", i)
	}

	for i, post := range res.Posteriors {
		require.Len(t, post, 3)
		sum := 0.0
		for _, p := range post {
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, posteriorTolerance, "row %d", i)
	}
}

func TestEngineFitReproducible(t *testing.T) {
	tbl := clusterTable(t, 15)
	engine := NewEngine(nil)

	first, err := engine.Fit(context.Background(), tbl, mixtureConfig())
	require.NoError(t, err)
	second, err := engine.Fit(context.Background(), tbl, mixtureConfig())
	require.NoError(t, err)

	assert.Equal(t, first.States, second.States)
	assert.Equal(t, first.LogLikelihood, second.LogLikelihood)
}

func TestEngineFitSkipsIncompleteRows(t *testing.T) {
	tbl := clusterTable(t, 20)
	col, ok := tbl.Column("a")
	require.True(t, ok)
	col[30] = math.NaN()

	engine := NewEngine(nil)
	res, err := engine.Fit(context.Background(), tbl, mixtureConfig())
	require.NoError(t, err)

	assert.Equal(t, 59, res.Len())
	for _, d := range res.Dates {
		assert.NotEqual(t, tbl.Date(30), d)
	}
}

func TestEngineFitExpansivenessGaps(t *testing.T) {
	// Rows are retained by the model features alone, so an expansiveness
	// column may be missing on a retained row; the canonical ordering must
	// hold regardless.
	tbl := clusterTable(t, 20)
	col, ok := tbl.Column("b")
	require.True(t, ok)
	col[5] = math.NaN()
	col[45] = math.NaN()

	cfg := mixtureConfig()
	cfg.Features = []string{"a"}

	res, err := NewEngine(nil).Fit(context.Background(), tbl, cfg)
	require.NoError(t, err)
	require.Equal(t, 60, res.Len())
	assert.Equal(t, LabelExpansive, res.States[0])
	assert.Equal(t, LabelNeutral, res.States[30])
	assert.Equal(t, LabelContractive, res.States[59])
}

func TestEngineFitEmptyRetainedSet(t *testing.T) {
	dates := []time.Time{
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC),
	}
	tbl := frame.New(dates)
	require.NoError(t, tbl.AddColumn("a", []float64{math.NaN(), math.NaN()}))
	require.NoError(t, tbl.AddColumn("b", []float64{1, 2}))

	engine := NewEngine(nil)
	res, err := engine.Fit(context.Background(), tbl, mixtureConfig())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())
	assert.Nil(t, res.Transition)
}

func TestEngineFitUnknownColumns(t *testing.T) {
	tbl := clusterTable(t, 5)
	engine := NewEngine(nil)

	cfg := mixtureConfig()
	cfg.Features = []string{"a", "nope"}
	_, err := engine.Fit(context.Background(), tbl, cfg)
	assert.ErrorContains(t, err, "nope")

	cfg = mixtureConfig()
	cfg.Expansiveness = [2]string{"a", "nope"}
	_, err = engine.Fit(context.Background(), tbl, cfg)
	assert.ErrorContains(t, err, "nope")
}

func TestEngineFitInvalidConfig(t *testing.T) {
	tbl := clusterTable(t, 5)
	cfg := mixtureConfig()
	cfg.States = 1

	_, err := NewEngine(nil).Fit(context.Background(), tbl, cfg)
	assert.ErrorContains(t, err, "states")
}

func TestEngineFitHMM(t *testing.T) {
	// Three long homogeneous blocks: a persistent chain should recover one
	// state per block and a strongly diagonal transition matrix.
	tbl := clusterTable(t, 30)
	engine := NewEngine(nil)

	cfg := DefaultConfig(BackendHMM)
	cfg.Features = []string{"a"}
	cfg.Expansiveness = [2]string{"a", "b"}

	res, err := engine.Fit(context.Background(), tbl, cfg)
	require.NoError(t, err)
	require.Equal(t, 90, res.Len())
	require.NotNil(t, res.Transition)

	for i := 0; i < 30; i++ {
		assert.Equal(t, LabelExpansive, res.States[i], "row %d", i)
	}
	for i := 30; i < 60; i++ {
		assert.Equal(t, LabelNeutral, res.States[i], "row %d", i)
	}
	for i := 60; i < 90; i++ {
		assert.Equal(t, LabelContractive, res.States[i], "row %d", i)
	}

	p := res.Transition.P
	require.Len(t, p, 3)
	for i, row := range p {
		require.Len(t, row, 3)
		sum := 0.0
		for j, v := range row {
			assert.Greater(t, v, 0.0, "entry (%d,%d)", i, j)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "row %d", i)
		// Long blocks imply strong persistence.
		assert.Greater(t, p[i][i], 0.5, "diagonal %d", i)
	}

	for i, post := range res.Posteriors {
		sum := 0.0
		for _, v := range post {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, posteriorTolerance, "row %d", i)
	}
}
