package consumption

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	archive "metering-cloud/internal/archive/domain"
	archivememory "metering-cloud/internal/archive/infrastructure/memory"
	metering "metering-cloud/internal/metering/domain"
	readingstore "metering-cloud/internal/metering/store"
)

type stubRegistry map[string]bool

func (r stubRegistry) IsRegistered(_ context.Context, meterID string) (bool, error) {
	return r[meterID], nil
}

type fixture struct {
	store      *readingstore.Store
	partitions *archivememory.PartitionStore
	bills      *archivememory.BillStore
	calc       *Calculator
}

func newFixture(t *testing.T, now time.Time, meters ...string) *fixture {
	t.Helper()
	registry := stubRegistry{}
	for _, m := range meters {
		registry[m] = true
	}
	f := &fixture{
		store:      readingstore.New(),
		partitions: archivememory.NewPartitionStore(),
		bills:      archivememory.NewBillStore(),
	}
	calc, err := NewCalculator(f.store, f.partitions, f.bills, registry, log.New(discard{}, "", 0),
		WithClock(ClockFunc(func() time.Time { return now })))
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	f.calc = calc
	return f
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func (f *fixture) append(t *testing.T, meterID string, ts time.Time, value int64) {
	t.Helper()
	err := f.store.Append(metering.Reading{MeterID: meterID, Timestamp: ts, Value: decimal.NewFromInt(value)})
	if err != nil {
		t.Fatalf("append %s %v: %v", meterID, ts, err)
	}
}

func TestConsumption_Last30MinAndToday(t *testing.T) {
	t0 := time.Date(2025, 2, 8, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, t0.Add(time.Hour), "m-1")
	f.append(t, "m-1", t0, 100)
	f.append(t, "m-1", t0.Add(30*time.Minute), 105)
	f.append(t, "m-1", t0.Add(time.Hour), 112)

	period, _ := NamedPeriod(PeriodLast30Min)
	result, err := f.calc.Consumption(context.Background(), "m-1", period)
	if err != nil {
		t.Fatalf("last_30min: %v", err)
	}
	if !result.Consumption.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("last_30min consumption = %s, want 7", result.Consumption)
	}

	period, _ = NamedPeriod(PeriodToday)
	result, err = f.calc.Consumption(context.Background(), "m-1", period)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if !result.Consumption.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("today consumption = %s, want 12", result.Consumption)
	}
	if !result.StartReading.Equal(decimal.NewFromInt(100)) || !result.EndReading.Equal(decimal.NewFromInt(112)) {
		t.Fatalf("today bounds = %s..%s, want 100..112", result.StartReading, result.EndReading)
	}
}

func TestConsumption_ClockClampsToGrid(t *testing.T) {
	t0 := time.Date(2025, 2, 8, 10, 0, 0, 0, time.UTC)
	// 10:47 clamps to 10:30, so last_30min covers [10:00, 10:30].
	f := newFixture(t, time.Date(2025, 2, 8, 10, 47, 12, 0, time.UTC), "m-1")
	f.append(t, "m-1", t0, 100)
	f.append(t, "m-1", t0.Add(30*time.Minute), 106)

	period, _ := NamedPeriod(PeriodLast30Min)
	result, err := f.calc.Consumption(context.Background(), "m-1", period)
	if err != nil {
		t.Fatalf("last_30min: %v", err)
	}
	if !result.Consumption.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("consumption = %s, want 6", result.Consumption)
	}
}

func TestConsumption_InsufficientData(t *testing.T) {
	now := time.Date(2025, 2, 8, 10, 30, 0, 0, time.UTC)
	f := newFixture(t, now, "m-1")
	f.append(t, "m-1", now, 100)

	period, _ := NamedPeriod(PeriodLast30Min)
	_, err := f.calc.Consumption(context.Background(), "m-1", period)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestConsumption_NoDataInPeriod(t *testing.T) {
	now := time.Date(2025, 2, 8, 10, 30, 0, 0, time.UTC)
	f := newFixture(t, now, "m-1")

	period, _ := NamedPeriod(PeriodToday)
	_, err := f.calc.Consumption(context.Background(), "m-1", period)
	if !errors.Is(err, ErrNoDataInPeriod) {
		t.Fatalf("expected ErrNoDataInPeriod, got %v", err)
	}
}

func TestConsumption_UnknownMeter(t *testing.T) {
	f := newFixture(t, time.Date(2025, 2, 8, 10, 0, 0, 0, time.UTC), "m-1")

	period, _ := NamedPeriod(PeriodToday)
	_, err := f.calc.Consumption(context.Background(), "nope", period)
	if !errors.Is(err, metering.ErrUnknownMeter) {
		t.Fatalf("expected ErrUnknownMeter, got %v", err)
	}
}

func TestConsumption_SingleReadingIsZero(t *testing.T) {
	now := time.Date(2025, 2, 8, 10, 30, 0, 0, time.UTC)
	f := newFixture(t, now, "m-1")
	f.append(t, "m-1", now, 100)

	period, _ := NamedPeriod(PeriodToday)
	result, err := f.calc.Consumption(context.Background(), "m-1", period)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if !result.Consumption.IsZero() {
		t.Fatalf("single reading should yield zero consumption, got %s", result.Consumption)
	}
	if !result.StartTime.Equal(result.EndTime) {
		t.Fatalf("single reading should have start == end, got %v..%v", result.StartTime, result.EndTime)
	}
}

func TestConsumption_MergesArchivedDays(t *testing.T) {
	dayOne := time.Date(2025, 2, 7, 8, 0, 0, 0, time.UTC)
	now := time.Date(2025, 2, 8, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now, "m-1")

	// Day one was archived and drained; only the partition has it.
	archived := []metering.Reading{
		{MeterID: "m-1", Timestamp: dayOne, Value: decimal.NewFromInt(100)},
		{MeterID: "m-1", Timestamp: dayOne.Add(30 * time.Minute), Value: decimal.NewFromInt(104)},
	}
	if _, err := f.partitions.WriteDaily(context.Background(), dayOne, archived); err != nil {
		t.Fatalf("write daily: %v", err)
	}
	f.append(t, "m-1", now, 120)

	period, _ := NamedPeriod(PeriodThisWeek)
	result, err := f.calc.Consumption(context.Background(), "m-1", period)
	if err != nil {
		t.Fatalf("this_week: %v", err)
	}
	if !result.StartReading.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("start must come from the archived day, got %s", result.StartReading)
	}
	if !result.Consumption.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("consumption = %s, want 20", result.Consumption)
	}
}

func TestConsumption_LastMonthFromBill(t *testing.T) {
	now := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	lastMonth := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now, "m-1")

	bill := archive.Bill{
		MeterID:      "m-1",
		Period:       lastMonth,
		StartReading: decimal.NewFromInt(100),
		EndReading:   decimal.NewFromInt(340),
		Consumption:  decimal.NewFromInt(240),
		StartTime:    lastMonth.Add(time.Hour),
		EndTime:      lastMonth.AddDate(0, 1, 0).Add(-30 * time.Minute),
	}
	if _, err := f.bills.WriteBills(context.Background(), lastMonth, []archive.Bill{bill}); err != nil {
		t.Fatalf("write bills: %v", err)
	}

	period, _ := NamedPeriod(PeriodLastMonth)
	result, err := f.calc.Consumption(context.Background(), "m-1", period)
	if err != nil {
		t.Fatalf("last_month: %v", err)
	}
	if !result.Consumption.Equal(decimal.NewFromInt(240)) {
		t.Fatalf("consumption = %s, want 240 from the bill", result.Consumption)
	}
}

func TestConsumption_LastMonthLiveWhenNoBill(t *testing.T) {
	now := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, now, "m-1")
	f.append(t, "m-1", feb, 100)
	f.append(t, "m-1", feb.Add(30*time.Minute), 117)

	period, _ := NamedPeriod(PeriodLastMonth)
	result, err := f.calc.Consumption(context.Background(), "m-1", period)
	if err != nil {
		t.Fatalf("last_month: %v", err)
	}
	if !result.Consumption.Equal(decimal.NewFromInt(17)) {
		t.Fatalf("consumption = %s, want 17", result.Consumption)
	}
}

func TestCustomPeriod_Inverted(t *testing.T) {
	to := time.Date(2025, 2, 8, 10, 0, 0, 0, time.UTC)
	if _, err := CustomPeriod(to.Add(time.Hour), to); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestNamedPeriod_Unknown(t *testing.T) {
	if _, err := NamedPeriod("fortnight"); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestPeriodResolve_Week(t *testing.T) {
	// 2025-02-08 is a Saturday; the week starts Monday 2025-02-03.
	now := time.Date(2025, 2, 8, 11, 0, 0, 0, time.UTC)
	period, _ := NamedPeriod(PeriodThisWeek)
	from, to, err := period.Resolve(now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	wantFrom := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	if !from.Equal(wantFrom) {
		t.Fatalf("week start = %v, want %v", from, wantFrom)
	}
	if !to.Equal(now) {
		t.Fatalf("week end = %v, want %v", to, now)
	}
}
