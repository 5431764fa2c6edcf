package series

import "fmt"

// QuoteDirection states how an FX series is quoted relative to the conversion
// being performed. The direction is always declared by the caller and never
// inferred from series names: a wrong multiply/divide direction silently
// produces values off by the square of the true rate.
type QuoteDirection int

const (
	// TargetPerSource means the quote is "target-currency units per 1
	// source-currency unit" (e.g. USD per EUR when converting EUR values to
	// USD). Conversion multiplies by the rate.
	TargetPerSource QuoteDirection = iota
	// SourcePerTarget means the quote is "source-currency units per 1
	// target-currency unit" (e.g. JPY per USD when converting JPY values to
	// USD). Conversion divides by the rate.
	SourcePerTarget
)

// String returns the configuration spelling of the direction.
func (d QuoteDirection) String() string {
	switch d {
	case TargetPerSource:
		return "target_per_source"
	case SourcePerTarget:
		return "source_per_target"
	default:
		return "unknown"
	}
}

// ParseQuoteDirection maps the configuration spelling onto a QuoteDirection.
func ParseQuoteDirection(s string) (QuoteDirection, error) {
	switch s {
	case "target_per_source":
		return TargetPerSource, nil
	case "source_per_target":
		return SourcePerTarget, nil
	}
	return 0, fmt.Errorf("unknown fx quote direction %q", s)
}

// ConvertCurrency converts a native-currency series to the target currency
// using an FX rate series, returning a new Series in the target currency.
//
// subUnitScale handles series quoted in sub-units of their currency: a series
// in "100-million yen" units converting to a millions base is scaled by 100
// BEFORE the FX step. Pass 1 when the series is already in base units.
//
// The rate applied to each observation is the last FX quote at or before the
// observation's date (forward-fill semantics; assets report weekly while FX
// reports daily). Observations preceding the first quote, or falling on a
// zero rate, are dropped and counted in a fx_rates_missing warning, never a
// division fault.
func ConvertCurrency(s Series, fx Series, dir QuoteDirection, subUnitScale float64) (Series, []Warning, error) {
	if fx.Len() == 0 {
		return Series{}, nil, &DataFormatError{Series: fx.Name, Reason: "fx series has no observations"}
	}
	if subUnitScale <= 0 {
		return Series{}, nil, fmt.Errorf("series %q: sub-unit scale must be positive, got %g", s.Name, subUnitScale)
	}
	if dir != TargetPerSource && dir != SourcePerTarget {
		return Series{}, nil, fmt.Errorf("series %q: invalid fx quote direction %d", s.Name, int(dir))
	}

	obs := make([]Observation, 0, len(s.Obs))
	dropped := 0
	fxIdx := -1 // index of last fx quote at or before the current observation

	for _, o := range s.Obs {
		for fxIdx+1 < len(fx.Obs) && !fx.Obs[fxIdx+1].Date.After(o.Date) {
			fxIdx++
		}
		if fxIdx < 0 {
			dropped++
			continue
		}

		rate := fx.Obs[fxIdx].Value
		if rate == 0 {
			dropped++
			continue
		}

		v := o.Value * subUnitScale
		if dir == TargetPerSource {
			v *= rate
		} else {
			v /= rate
		}
		obs = append(obs, Observation{Date: o.Date, Value: v})
	}

	var warnings []Warning
	if dropped > 0 {
		warnings = append(warnings, Warning{
			Series:  s.Name,
			Code:    WarnRatesMissing,
			Message: fmt.Sprintf("dropped %d observations with no usable %s rate", dropped, fx.Name),
		})
	}

	return Series{Name: s.Name, Obs: obs}, warnings, nil
}
