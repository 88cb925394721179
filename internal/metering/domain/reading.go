package metering

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reading is a single cumulative meter counter value on the half-hour grid.
// Readings are immutable once accepted.
type Reading struct {
	MeterID   string
	Timestamp time.Time
	Value     decimal.Decimal
}

// NewReading builds a normalized reading. The timestamp must sit on the
// half-hour grid or be the 23:59 end-of-day sentinel, which is rewritten
// to 00:00 of the following day before any further use.
func NewReading(meterID string, ts time.Time, value decimal.Decimal) (Reading, error) {
	if meterID == "" {
		return Reading{}, ErrEmptyMeterID
	}
	normalized, err := NormalizeTimestamp(ts)
	if err != nil {
		return Reading{}, err
	}
	if value.IsNegative() {
		return Reading{}, ErrNegativeValue
	}
	return Reading{MeterID: meterID, Timestamp: normalized, Value: value}, nil
}

// NormalizeTimestamp validates grid alignment and rewrites the 23:59
// sentinel to next-day 00:00. The rewrite is part of the reading's
// canonical identity, not a query-time adjustment.
func NormalizeTimestamp(ts time.Time) (time.Time, error) {
	if ts.IsZero() {
		return time.Time{}, ErrMisalignedTimestamp
	}
	ts = ts.UTC()
	if ts.Second() != 0 || ts.Nanosecond() != 0 {
		return time.Time{}, ErrMisalignedTimestamp
	}
	if ts.Hour() == 23 && ts.Minute() == 59 {
		return ts.Add(time.Minute), nil
	}
	if ts.Minute() != 0 && ts.Minute() != 30 {
		return time.Time{}, ErrMisalignedTimestamp
	}
	return ts, nil
}

// OnGrid reports whether ts is an exact half-hour grid point.
func OnGrid(ts time.Time) bool {
	return ts.Second() == 0 && ts.Nanosecond() == 0 && (ts.Minute() == 0 || ts.Minute() == 30)
}
