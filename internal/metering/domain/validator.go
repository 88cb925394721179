package metering

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RegistryChecker answers whether a meter is pre-registered. Lookups go to
// the account registry; validation never mutates it.
type RegistryChecker interface {
	IsRegistered(ctx context.Context, meterID string) (bool, error)
}

// Validator checks a candidate reading against grid alignment, meter
// registration and per-meter monotonicity. It is pure: the caller commits
// to the store only after validation succeeds.
type Validator struct {
	registry RegistryChecker
}

// NewValidator constructs a Validator.
func NewValidator(registry RegistryChecker) (*Validator, error) {
	if registry == nil {
		return nil, errors.New("metering: nil registry")
	}
	return &Validator{registry: registry}, nil
}

// Validate normalizes and checks a candidate reading. last is the meter's
// most recent accepted reading, nil if none exists yet.
func (v *Validator) Validate(ctx context.Context, meterID string, ts time.Time, value decimal.Decimal, last *Reading) (Reading, error) {
	reading, err := NewReading(meterID, ts, value)
	if err != nil {
		return Reading{}, err
	}

	registered, err := v.registry.IsRegistered(ctx, meterID)
	if err != nil {
		return Reading{}, err
	}
	if !registered {
		return Reading{}, ErrUnknownMeter
	}

	if last != nil {
		if !reading.Timestamp.After(last.Timestamp) {
			return Reading{}, ErrOutOfOrderTimestamp
		}
		if reading.Value.Cmp(last.Value) <= 0 {
			return Reading{}, ErrNonMonotonicReading
		}
	}
	return reading, nil
}
