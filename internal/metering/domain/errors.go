package metering

import "errors"

var (
	// ErrEmptyMeterID is returned when the meter id is empty.
	ErrEmptyMeterID = errors.New("metering: empty meter id")
	// ErrNegativeValue is returned when a reading value is negative.
	ErrNegativeValue = errors.New("metering: negative reading value")
	// ErrMisalignedTimestamp is returned when a timestamp is off the half-hour grid.
	ErrMisalignedTimestamp = errors.New("metering: timestamp off half-hour grid")
	// ErrUnknownMeter is returned when the meter is not registered.
	ErrUnknownMeter = errors.New("metering: unknown meter")
	// ErrNonMonotonicReading is returned when a value does not strictly increase.
	ErrNonMonotonicReading = errors.New("metering: reading value not strictly increasing")
	// ErrOutOfOrderTimestamp is returned when a timestamp is not after the last accepted one.
	ErrOutOfOrderTimestamp = errors.New("metering: timestamp not after last reading")
)
