package exporter

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gliregime/internal/frame"
	"gliregime/internal/regime"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteFeatureTable(t *testing.T) {
	dates := []time.Time{
		time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC),
	}
	tbl := frame.New(dates)
	require.NoError(t, tbl.AddColumn("net_liquidity", []float64{1234.5, 1230}))
	require.NoError(t, tbl.AddColumn("net_liquidity_z90", []float64{math.NaN(), 0.25}))

	dir := t.TempDir()
	w := NewCSVWriter(dir, nil)
	require.NoError(t, w.WriteFeatureTable(tbl, "features.csv"))

	rows := readCSV(t, filepath.Join(dir, "features.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"date", "net_liquidity", "net_liquidity_z90"}, rows[0])
	// Missing cells export as empty strings, not NaN text.
	assert.Equal(t, []string{"2024-01-02", "1234.5", ""}, rows[1])
	assert.Equal(t, []string{"2024-01-03", "1230", "0.25"}, rows[2])
}

func TestWriteRegimes(t *testing.T) {
	res := &regime.Result{
		Dates: []time.Time{
			time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, time.February, 2, 0, 0, 0, 0, time.UTC),
		},
		States: []int{0, 2},
		Posteriors: [][]float64{
			{0.9, 0.05, 0.05},
			{0.01, 0.04, 0.95},
		},
	}

	dir := t.TempDir()
	w := NewCSVWriter(dir, nil)
	require.NoError(t, w.WriteRegimes(res, "regimes.csv"))

	rows := readCSV(t, filepath.Join(dir, "regimes.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"date", "regime", "regime_name", "p_regime_0", "p_regime_1", "p_regime_2"}, rows[0])
	assert.Equal(t, []string{"2024-02-01", "0", "expansive", "0.900000", "0.050000", "0.050000"}, rows[1])
	assert.Equal(t, []string{"2024-02-02", "2", "contractive", "0.010000", "0.040000", "0.950000"}, rows[2])
}

func TestWriteRegimesEmptyResult(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, nil)
	require.NoError(t, w.WriteRegimes(&regime.Result{}, "regimes.csv"))

	rows := readCSV(t, filepath.Join(dir, "regimes.csv"))
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"date", "regime", "regime_name"}, rows[0])
}

func TestWriteTransitionMatrix(t *testing.T) {
	m := &regime.TransitionMatrix{P: [][]float64{
		{0.90, 0.06, 0.04},
		{0.10, 0.85, 0.05},
		{0.02, 0.08, 0.90},
	}}

	dir := t.TempDir()
	w := NewCSVWriter(dir, nil)
	require.NoError(t, w.WriteTransitionMatrix(m, "transitions.csv"))

	rows := readCSV(t, filepath.Join(dir, "transitions.csv"))
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"", "to_expansive", "to_neutral", "to_contractive"}, rows[0])
	assert.Equal(t, []string{"from_expansive", "0.900000", "0.060000", "0.040000"}, rows[1])
	assert.Equal(t, "from_neutral", rows[2][0])
	assert.Equal(t, "from_contractive", rows[3][0])
}

func TestWriteTransitionMatrixNil(t *testing.T) {
	w := NewCSVWriter(t.TempDir(), nil)
	assert.Error(t, w.WriteTransitionMatrix(nil, "transitions.csv"))
}

func TestWriteCreatesNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, nil)

	tbl := frame.New([]time.Time{time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, tbl.AddColumn("x", []float64{1}))
	require.NoError(t, w.WriteFeatureTable(tbl, filepath.Join("run-1", "features.csv")))

	_, err := os.Stat(filepath.Join(dir, "run-1", "features.csv"))
	assert.NoError(t, err)
}
