package series

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RawRecord is a single observation as delivered by an upstream collaborator
// (CSV row, API payload), with fields still in wire form. Coercion into typed
// observations is the normalizer's job, not the provider's.
type RawRecord struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

// Observation is one typed, timezone-normalized data point.
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is a named canonical time series: unit-normalized, deduplicated by
// timestamp, and sorted ascending. A Series is never mutated after the
// normalizer produces it; downstream stages build new structures instead.
type Series struct {
	Name string        `json:"name"`
	Obs  []Observation `json:"observations"`
}

// Len returns the number of observations.
func (s Series) Len() int {
	return len(s.Obs)
}

// DataFormatError reports a raw series whose required fields are missing or
// entirely uncoercible. It is fatal to that series' processing: alignment
// assumes well-formed canonical inputs, so garbage is never passed through.
type DataFormatError struct {
	Series string
	Reason string
}

// Error implements the error interface.
func (e *DataFormatError) Error() string {
	return fmt.Sprintf("series %q: %s", e.Series, e.Reason)
}

// Warning is a non-fatal data condition surfaced to the caller rather than
// swallowed into logs, so that callers can decide how loudly to complain.
type Warning struct {
	Series  string `json:"series"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes produced by this package.
const (
	WarnUnitUnrecognized = "unit_unrecognized"
	WarnRowsDropped      = "rows_dropped"
	WarnRatesMissing     = "fx_rates_missing"
)

// Normalize validates and coerces raw records into a canonical Series.
//
// Rules, in order:
//  1. every record must carry date and value fields; rows where either fails
//     to coerce are dropped and counted (surfaced as a rows_dropped warning)
//  2. zero coercible rows is a DataFormatError, not an empty series
//  3. duplicate timestamps keep the LAST occurrence, because sources republish
//     revised observations for the same date
//  4. output is sorted ascending by date, timestamps normalized to UTC midnight
func Normalize(name string, records []RawRecord) (Series, []Warning, error) {
	if len(records) == 0 {
		return Series{}, nil, &DataFormatError{Series: name, Reason: "no records provided"}
	}

	byDate := make(map[time.Time]float64, len(records))
	order := make([]time.Time, 0, len(records))
	dropped := 0

	for _, rec := range records {
		date, err := parseDate(strings.TrimSpace(rec.Date))
		if err != nil {
			dropped++
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(rec.Value), 64)
		if err != nil {
			dropped++
			continue
		}

		if _, seen := byDate[date]; !seen {
			order = append(order, date)
		}
		byDate[date] = value // last occurrence wins
	}

	if len(byDate) == 0 {
		return Series{}, nil, &DataFormatError{
			Series: name,
			Reason: fmt.Sprintf("no coercible rows out of %d records (need parseable date and numeric value)", len(records)),
		}
	}

	obs := make([]Observation, 0, len(byDate))
	for _, date := range order {
		obs = append(obs, Observation{Date: date, Value: byDate[date]})
	}
	sort.Slice(obs, func(i, j int) bool {
		return obs[i].Date.Before(obs[j].Date)
	})

	var warnings []Warning
	if dropped > 0 {
		warnings = append(warnings, Warning{
			Series:  name,
			Code:    WarnRowsDropped,
			Message: fmt.Sprintf("dropped %d of %d rows with uncoercible date or value", dropped, len(records)),
		})
	}

	return Series{Name: name, Obs: obs}, warnings, nil
}

// parseDate attempts to parse date strings in multiple formats and pins the
// result to UTC midnight.
func parseDate(dateStr string) (time.Time, error) {
	dateFormats := []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		time.RFC3339,
		"2006/01/02",
		"01/02/2006",
	}

	for _, format := range dateFormats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}
