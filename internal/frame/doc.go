// Package frame implements the tabular middle of the pipeline: multi-series
// alignment, derived level metrics, and rolling window features.
//
// The central type is Table, a chronological timestamp index with named
// float64 columns where NaN marks a missing cell. Stages compose by adding
// columns to a Table:
//
//   - align.go: outer-join + forward-fill + leading-gap truncation of
//     canonical series into an aligned table
//   - derive.go: linear combinations, row-lag differences and percent changes
//   - rolling.go: trailing-window z-scores and percentile ranks
//
// Statistical undefined-ness (insufficient history, zero variance, zero
// denominator) is always represented as a missing value and propagates as
// missingness; it is never an error.
package frame
