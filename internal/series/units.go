package series

import "strings"

// The common magnitude base for all canonical series is MILLIONS. Every raw
// series is rescaled onto that base before alignment so that linear
// combinations across series are dimensionally meaningful.

// MultiplierForUnit maps a source unit description (e.g. FRED metadata
// "Billions of Dollars") onto the multiplier that rescales values to the
// millions base. The second return value reports whether the unit was
// recognized; an unrecognized unit yields multiplier 1 and false, and the
// caller must surface a UnitWarning rather than fail. A silent wrong-scale
// conversion would corrupt every downstream derived level.
func MultiplierForUnit(units string) (float64, bool) {
	u := strings.ToLower(strings.TrimSpace(units))
	if u == "" {
		return 1.0, false
	}

	switch {
	case strings.Contains(u, "billions"):
		return 1000.0, true
	case strings.Contains(u, "millions"):
		return 1.0, true
	case strings.Contains(u, "thousands"):
		return 0.001, true
	}

	return 1.0, false
}

// UnitWarning builds the warning surfaced when a series' unit metadata is
// unrecognized and the multiplier defaulted to 1.
func UnitWarning(name, units string) Warning {
	return Warning{
		Series:  name,
		Code:    WarnUnitUnrecognized,
		Message: "unrecognized units '" + units + "', using multiplier 1",
	}
}

// Rescale returns a copy of s with every value multiplied by mult. A
// multiplier of 1 still copies, preserving the immutability of the input.
func Rescale(s Series, mult float64) Series {
	obs := make([]Observation, len(s.Obs))
	for i, o := range s.Obs {
		obs[i] = Observation{Date: o.Date, Value: o.Value * mult}
	}
	return Series{Name: s.Name, Obs: obs}
}
