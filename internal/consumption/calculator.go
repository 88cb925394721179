// Package consumption answers read-only usage queries over the reading
// store, falling back to archived partitions for ranges that have already
// been drained.
package consumption

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	archive "metering-cloud/internal/archive/domain"
	metering "metering-cloud/internal/metering/domain"
)

// Clock supplies the current time. Queries resolve their ranges against
// it so tests can pin "now".
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// ReadingSource is the slice of the reading store queries need.
type ReadingSource interface {
	Range(meterID string, from, to time.Time) []metering.Reading
}

// Result is the outcome of a consumption query.
type Result struct {
	MeterID      string          `json:"meter_id"`
	Period       string          `json:"period"`
	StartReading decimal.Decimal `json:"start_reading"`
	EndReading   decimal.Decimal `json:"end_reading"`
	Consumption  decimal.Decimal `json:"consumption"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
}

// Calculator computes consumption over store and archive.
type Calculator struct {
	store      ReadingSource
	partitions archive.PartitionStore
	bills      archive.BillStore
	registry   metering.RegistryChecker
	clock      Clock
	logger     *log.Logger
}

// Option configures the calculator.
type Option func(*Calculator)

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(c *Calculator) { c.clock = clock }
}

// NewCalculator constructs a calculator.
func NewCalculator(store ReadingSource, partitions archive.PartitionStore, bills archive.BillStore, registry metering.RegistryChecker, logger *log.Logger, opts ...Option) (*Calculator, error) {
	if store == nil {
		return nil, errors.New("consumption: nil reading source")
	}
	if partitions == nil {
		return nil, errors.New("consumption: nil partition store")
	}
	if bills == nil {
		return nil, errors.New("consumption: nil bill store")
	}
	if registry == nil {
		return nil, errors.New("consumption: nil registry")
	}
	if logger == nil {
		logger = log.Default()
	}
	c := &Calculator{
		store:      store,
		partitions: partitions,
		bills:      bills,
		registry:   registry,
		clock:      ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Consumption resolves the period against the current clock and computes
// end minus start over the readings in range. A persisted bill answers
// last_month queries for months that have already rolled over.
func (c *Calculator) Consumption(ctx context.Context, meterID string, period Period) (Result, error) {
	registered, err := c.registry.IsRegistered(ctx, meterID)
	if err != nil {
		return Result{}, fmt.Errorf("consumption: check meter %s: %w", meterID, err)
	}
	if !registered {
		return Result{}, fmt.Errorf("consumption: meter %s: %w", meterID, metering.ErrUnknownMeter)
	}

	from, to, err := period.Resolve(c.clock.Now())
	if err != nil {
		return Result{}, err
	}

	if period.Name == PeriodLastMonth {
		if result, ok, err := c.fromBill(ctx, meterID, from); err != nil {
			return Result{}, err
		} else if ok {
			return result, nil
		}
	}

	readings, err := c.readingsInRange(ctx, meterID, from, to)
	if err != nil {
		return Result{}, err
	}

	if period.Name == PeriodLast30Min {
		if len(readings) < 2 {
			return Result{}, fmt.Errorf("consumption: meter %s, period %s: %w", meterID, period.Name, ErrInsufficientData)
		}
	} else if len(readings) == 0 {
		return Result{}, fmt.Errorf("consumption: meter %s, period %s: %w", meterID, period.Name, ErrNoDataInPeriod)
	}

	first, last := readings[0], readings[len(readings)-1]
	return Result{
		MeterID:      meterID,
		Period:       period.Name,
		StartReading: first.Value,
		EndReading:   last.Value,
		Consumption:  last.Value.Sub(first.Value),
		StartTime:    first.Timestamp,
		EndTime:      last.Timestamp,
	}, nil
}

// fromBill answers a last_month query from the persisted bill when the
// month has already been archived.
func (c *Calculator) fromBill(ctx context.Context, meterID string, monthStart time.Time) (Result, bool, error) {
	bill, err := c.bills.ReadBill(ctx, monthStart, meterID)
	if err != nil {
		return Result{}, false, fmt.Errorf("consumption: read bill for %s: %w", meterID, err)
	}
	if bill == nil {
		return Result{}, false, nil
	}
	return Result{
		MeterID:      meterID,
		Period:       PeriodLastMonth,
		StartReading: bill.StartReading,
		EndReading:   bill.EndReading,
		Consumption:  bill.Consumption,
		StartTime:    bill.StartTime,
		EndTime:      bill.EndTime,
	}, true, nil
}

// readingsInRange merges the live store with archived partitions over the
// inclusive [from, to] range, deduplicated by timestamp and sorted.
func (c *Calculator) readingsInRange(ctx context.Context, meterID string, from, to time.Time) ([]metering.Reading, error) {
	byTS := make(map[int64]metering.Reading)
	add := func(r metering.Reading) {
		if r.MeterID != meterID || r.Timestamp.Before(from) || r.Timestamp.After(to) {
			return
		}
		byTS[r.Timestamp.Unix()] = r
	}

	for _, r := range c.store.Range(meterID, from, to) {
		add(r)
	}

	for _, month := range monthsIn(from, to) {
		dates, err := c.partitions.ListDailyDates(ctx, month)
		if err != nil {
			return nil, fmt.Errorf("consumption: list daily partitions: %w", err)
		}
		for _, date := range dates {
			if date.AddDate(0, 0, 1).Before(from) || date.After(to) {
				continue
			}
			records, err := c.partitions.ReadDaily(ctx, date)
			if err != nil {
				return nil, fmt.Errorf("consumption: read daily partition %s: %w", date.Format("2006-01-02"), err)
			}
			for _, r := range records {
				add(r)
			}
		}

		records, err := c.partitions.ReadMonthly(ctx, month)
		if err != nil {
			return nil, fmt.Errorf("consumption: read monthly partition %s: %w", month.Format("2006-01"), err)
		}
		for _, r := range records {
			add(r)
		}
	}

	out := make([]metering.Reading, 0, len(byTS))
	for _, r := range byTS {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// monthsIn lists the first-of-month instants covering [from, to].
func monthsIn(from, to time.Time) []time.Time {
	var months []time.Time
	for m := monthStart(from); !m.After(to); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}
