package consumption

import "errors"

var (
	// ErrInvalidPeriod signals an unrecognized period name or an inverted
	// custom range.
	ErrInvalidPeriod = errors.New("consumption: invalid period")

	// ErrInsufficientData signals that the meter has fewer readings than a
	// last_30min query needs.
	ErrInsufficientData = errors.New("consumption: insufficient data")

	// ErrNoDataInPeriod signals that no reading falls inside the resolved
	// range. Callers must not treat this as zero usage.
	ErrNoDataInPeriod = errors.New("consumption: no data in period")
)
