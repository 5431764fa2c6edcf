// Package exporter writes the core's output structures to CSV for the
// reporting collaborators. It consumes feature tables and regime assignments;
// it never reaches back into the pipeline.
package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gliregime/internal/frame"
	"gliregime/internal/regime"
)

const dateFormat = "2006-01-02"

// CSVWriter exports pipeline outputs as CSV files under a directory.
type CSVWriter struct {
	dir    string
	logger *slog.Logger
}

// NewCSVWriter creates a writer rooted at dir.
func NewCSVWriter(dir string, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{dir: dir, logger: logger}
}

// WriteFeatureTable writes the full feature table, one row per timestamp,
// with missing cells left empty.
func (w *CSVWriter) WriteFeatureTable(t *frame.Table, filename string) error {
	columns := t.Columns()
	header := append([]string{"date"}, columns...)

	records := make([][]string, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		record := make([]string, 0, len(header))
		record = append(record, t.Date(i).Format(dateFormat))
		for _, name := range columns {
			col, _ := t.Column(name)
			record = append(record, formatCell(col[i]))
		}
		records = append(records, record)
	}

	return w.write(filename, header, records)
}

// WriteRegimes writes the canonical regime assignment: date, state label,
// state name, and the reordered posterior vector.
func (w *CSVWriter) WriteRegimes(r *regime.Result, filename string) error {
	k := 0
	if r.Len() > 0 {
		k = len(r.Posteriors[0])
	}

	header := []string{"date", "regime", "regime_name"}
	for c := 0; c < k; c++ {
		header = append(header, fmt.Sprintf("p_regime_%d", c))
	}

	records := make([][]string, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		record := []string{
			r.Dates[i].Format(dateFormat),
			strconv.Itoa(r.States[i]),
			r.StateName(i),
		}
		for _, p := range r.Posteriors[i] {
			record = append(record, strconv.FormatFloat(p, 'f', 6, 64))
		}
		records = append(records, record)
	}

	return w.write(filename, header, records)
}

// WriteTransitionMatrix writes the smoothed transition matrix with
// human-readable row and column labels.
func (w *CSVWriter) WriteTransitionMatrix(m *regime.TransitionMatrix, filename string) error {
	if m == nil {
		return fmt.Errorf("no transition matrix to write (mixture backend?)")
	}

	header := append([]string{""}, m.ColLabels()...)
	rowLabels := m.RowLabels()

	records := make([][]string, 0, m.States())
	for i, row := range m.P {
		record := make([]string, 0, len(header))
		record = append(record, rowLabels[i])
		for _, p := range row {
			record = append(record, strconv.FormatFloat(p, 'f', 6, 64))
		}
		records = append(records, record)
	}

	return w.write(filename, header, records)
}

func (w *CSVWriter) write(filename string, header []string, records [][]string) error {
	path := filepath.Join(w.dir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, record := range records {
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}

	w.logger.Info("wrote CSV file",
		slog.String("path", path),
		slog.Int("rows", len(records)),
	)
	return nil
}

func formatCell(v float64) string {
	if frame.Missing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
