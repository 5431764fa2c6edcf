// Package ingest defines the collaborator contracts through which raw series
// reach the core: a Provider either delivers a series' raw records or fails,
// and a bounded RetryPolicy governs how hard callers try before giving up.
// Network clients for statistical agencies live behind the Provider interface
// in collaborator code, never inside the core.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gliregime/internal/series"
)

// Provider delivers the raw records of a named series.
type Provider interface {
	Fetch(ctx context.Context, name string) ([]series.RawRecord, error)
}

// RetryPolicy bounds retries with a fixed backoff. The outcome of Do is
// always "succeeded" or "failed after MaxAttempts", never unbounded polling.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Do runs op up to MaxAttempts times, sleeping Backoff between attempts and
// honoring context cancellation.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = op(ctx); lastErr == nil {
			return nil
		}
		if attempt < attempts {
			select {
			case <-time.After(p.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

// FetchAll fetches every named series under the retry policy. A series that
// fails all attempts fails the whole batch: the aligner assumes a complete
// canonical series set, so proceeding with partial data would be worse than
// stopping.
func FetchAll(ctx context.Context, p Provider, names []string, policy RetryPolicy) (map[string][]series.RawRecord, error) {
	out := make(map[string][]series.RawRecord, len(names))
	for _, name := range names {
		var records []series.RawRecord
		err := policy.Do(ctx, func(ctx context.Context) error {
			var fetchErr error
			records, fetchErr = p.Fetch(ctx, name)
			return fetchErr
		})
		if err != nil {
			return nil, fmt.Errorf("fetch series %q: %w", name, err)
		}
		out[name] = records
	}
	return out, nil
}

// CSVProvider reads {date,value} series from CSV files named <series>.csv in
// a directory. It is the reference collaborator used by the CLI; records are
// returned in wire form and coercion is left to the normalizer.
type CSVProvider struct {
	dir    string
	logger *slog.Logger
}

// NewCSVProvider creates a provider over the given directory.
func NewCSVProvider(dir string, logger *slog.Logger) *CSVProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVProvider{dir: dir, logger: logger}
}

// Fetch implements Provider.
func (p *CSVProvider) Fetch(ctx context.Context, name string) ([]series.RawRecord, error) {
	path := filepath.Join(p.dir, name+".csv")

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open series file: %w", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read series file %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("series file %s is empty", path)
	}

	start := 0
	if isHeaderRow(rows[0]) {
		start = 1
	}

	records := make([]series.RawRecord, 0, len(rows)-start)
	for _, row := range rows[start:] {
		if len(row) < 2 {
			continue
		}
		records = append(records, series.RawRecord{Date: row[0], Value: row[1]})
	}

	p.logger.DebugContext(ctx, "loaded series file",
		"series", name,
		"path", path,
		"records", len(records),
	)
	return records, nil
}

func isHeaderRow(row []string) bool {
	if len(row) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(row[0]))
	return strings.Contains(first, "date") || strings.Contains(first, "time")
}
