package archive

import (
	"time"

	"github.com/shopspring/decimal"

	metering "metering-cloud/internal/metering/domain"
)

// Bill is the derived monthly summary for a meter: first and last counter
// values of the month and their difference.
type Bill struct {
	MeterID      string          `json:"meter_id"`
	Period       time.Time       `json:"period"`
	StartReading decimal.Decimal `json:"start_reading"`
	EndReading   decimal.Decimal `json:"end_reading"`
	Consumption  decimal.Decimal `json:"consumption"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
}

// NewBill derives a bill from a meter's readings of one month. The
// readings must be in timestamp order and non-empty.
func NewBill(meterID string, month time.Time, readings []metering.Reading) (Bill, error) {
	if meterID == "" {
		return Bill{}, metering.ErrEmptyMeterID
	}
	if month.IsZero() {
		return Bill{}, ErrInvalidPeriod
	}
	if len(readings) == 0 {
		return Bill{}, ErrEmptyBillPeriod
	}

	first := readings[0]
	last := readings[len(readings)-1]
	return Bill{
		MeterID:      meterID,
		Period:       MonthStart(month),
		StartReading: first.Value,
		EndReading:   last.Value,
		Consumption:  last.Value.Sub(first.Value),
		StartTime:    first.Timestamp,
		EndTime:      last.Timestamp,
	}, nil
}

// MonthStart truncates t to the first instant of its month, UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DayStart truncates t to the first instant of its day, UTC.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
