package archive

import "errors"

var (
	// ErrInvalidPeriod is returned when a period start is zero.
	ErrInvalidPeriod = errors.New("archive: invalid period")
	// ErrEmptyBillPeriod is returned when a bill is derived from no readings.
	ErrEmptyBillPeriod = errors.New("archive: no readings in bill period")
	// ErrPersistence marks a failed partition or bill write. The archival
	// unit that hit it must leave the reading store unmodified.
	ErrPersistence = errors.New("archive: persistence failure")
)
