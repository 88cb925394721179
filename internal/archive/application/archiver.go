// Package application implements the archival state transitions: moving
// readings from the in-memory store into durable daily and monthly
// partitions without ever dropping data that has not been persisted.
package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	archive "metering-cloud/internal/archive/domain"
	metering "metering-cloud/internal/metering/domain"
)

// ReadingStore is the slice of the reading store archival needs. The
// drain is bounded to the window that was just persisted; readings of
// other days, such as a day whose own archival never ran, must survive.
type ReadingStore interface {
	SnapshotRange(from, to time.Time) map[string][]metering.Reading
	DrainRange(from, cutoff time.Time) map[string][]metering.Reading
}

// Publisher publishes archival events.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Archiver moves readings from the store into the archive. Persistence is
// durable before anything is drained; a failed write aborts the unit and
// leaves the store untouched.
type Archiver struct {
	store      ReadingStore
	partitions archive.PartitionStore
	bills      archive.BillStore
	bus        Publisher
	logger     *log.Logger
}

// Option configures the archiver.
type Option func(*Archiver)

// WithPublisher attaches an event publisher.
func WithPublisher(bus Publisher) Option {
	return func(a *Archiver) { a.bus = bus }
}

// NewArchiver constructs an archiver.
func NewArchiver(store ReadingStore, partitions archive.PartitionStore, bills archive.BillStore, logger *log.Logger, opts ...Option) (*Archiver, error) {
	if store == nil {
		return nil, errors.New("archiver: nil reading store")
	}
	if partitions == nil {
		return nil, errors.New("archiver: nil partition store")
	}
	if bills == nil {
		return nil, errors.New("archiver: nil bill store")
	}
	if logger == nil {
		logger = log.Default()
	}
	a := &Archiver{store: store, partitions: partitions, bills: bills, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ArchiveDaily persists the given date's readings as a daily partition and
// drains exactly that window from the store, keeping each meter's most
// recent reading resident as the monotonicity anchor for the next day.
// Readings of other days stay untouched until their own archival runs.
// Re-running for an already archived date does not duplicate the partition.
func (a *Archiver) ArchiveDaily(ctx context.Context, date time.Time) error {
	dayStart := archive.DayStart(date)
	dayEnd := dayStart.AddDate(0, 0, 1)

	snapshot := a.store.SnapshotRange(dayStart, dayEnd.Add(-time.Nanosecond))
	records := flatten(snapshot)
	if len(records) == 0 {
		a.logger.Printf("archive daily %s: no readings", dayStart.Format("2006-01-02"))
		return nil
	}

	written, err := a.partitions.WriteDaily(ctx, dayStart, records)
	if err != nil {
		return fmt.Errorf("archive daily %s: %w: %v", dayStart.Format("2006-01-02"), archive.ErrPersistence, err)
	}
	if !written {
		a.logger.Printf("archive daily %s: partition exists, skipping write", dayStart.Format("2006-01-02"))
	}

	drained := a.store.DrainRange(dayStart, dayEnd)
	a.logger.Printf("archive daily %s: %d readings from %d meters, %d drained",
		dayStart.Format("2006-01-02"), len(records), len(snapshot), countReadings(drained))

	a.publish(ctx, ArchiveCompleted{
		Scope:      ScopeDaily,
		Period:     dayStart,
		Meters:     len(snapshot),
		Records:    len(records),
		Drained:    countReadings(drained),
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

// ArchiveMonthly persists the month's remaining readings as a monthly
// partition, derives and persists each meter's bill over the whole month
// (daily partitions included), then clears the month's history down to the
// per-meter anchor reading.
func (a *Archiver) ArchiveMonthly(ctx context.Context, month time.Time) error {
	monthStart := archive.MonthStart(month)
	nextMonth := monthStart.AddDate(0, 1, 0)

	snapshot := a.store.SnapshotRange(monthStart, nextMonth.Add(-time.Nanosecond))
	remaining := flatten(snapshot)

	full, err := a.monthReadings(ctx, monthStart, nextMonth, snapshot)
	if err != nil {
		return fmt.Errorf("archive monthly %s: %w: %v", monthStart.Format("2006-01"), archive.ErrPersistence, err)
	}
	if len(full) == 0 {
		a.logger.Printf("archive monthly %s: no readings", monthStart.Format("2006-01"))
		return nil
	}

	bills := make([]archive.Bill, 0, len(full))
	for _, meterID := range sortedMeters(full) {
		bill, err := archive.NewBill(meterID, monthStart, full[meterID])
		if err != nil {
			return fmt.Errorf("archive monthly %s: meter %s: %w", monthStart.Format("2006-01"), meterID, err)
		}
		bills = append(bills, bill)
	}

	if _, err := a.partitions.WriteMonthly(ctx, monthStart, remaining); err != nil {
		return fmt.Errorf("archive monthly %s: %w: %v", monthStart.Format("2006-01"), archive.ErrPersistence, err)
	}
	writtenBills, err := a.bills.WriteBills(ctx, monthStart, bills)
	if err != nil {
		return fmt.Errorf("archive monthly %s: bills: %w: %v", monthStart.Format("2006-01"), archive.ErrPersistence, err)
	}
	if !writtenBills {
		a.logger.Printf("archive monthly %s: bills exist, skipping write", monthStart.Format("2006-01"))
	}

	drained := a.store.DrainRange(monthStart, nextMonth)
	a.logger.Printf("archive monthly %s: %d remaining readings, %d bills, %d drained",
		monthStart.Format("2006-01"), len(remaining), len(bills), countReadings(drained))

	a.publish(ctx, ArchiveCompleted{
		Scope:      ScopeMonthly,
		Period:     monthStart,
		Meters:     len(snapshot),
		Records:    len(remaining),
		Drained:    countReadings(drained),
		OccurredAt: time.Now().UTC(),
	})
	if writtenBills {
		a.publish(ctx, BillsGenerated{Period: monthStart, Bills: len(bills), OccurredAt: time.Now().UTC()})
	}
	return nil
}

// monthReadings merges the month's daily partitions with the store
// snapshot, deduplicated by (meter, timestamp), ordered per meter.
func (a *Archiver) monthReadings(ctx context.Context, monthStart, nextMonth time.Time, snapshot map[string][]metering.Reading) (map[string][]metering.Reading, error) {
	merged := make(map[string]map[int64]metering.Reading)
	add := func(r metering.Reading) {
		if r.Timestamp.Before(monthStart) || !r.Timestamp.Before(nextMonth) {
			return
		}
		byTS := merged[r.MeterID]
		if byTS == nil {
			byTS = make(map[int64]metering.Reading)
			merged[r.MeterID] = byTS
		}
		byTS[r.Timestamp.Unix()] = r
	}

	dates, err := a.partitions.ListDailyDates(ctx, monthStart)
	if err != nil {
		return nil, err
	}
	for _, date := range dates {
		records, err := a.partitions.ReadDaily(ctx, date)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			add(r)
		}
	}
	for _, readings := range snapshot {
		for _, r := range readings {
			add(r)
		}
	}

	out := make(map[string][]metering.Reading, len(merged))
	for meterID, byTS := range merged {
		out[meterID] = sortByTimestamp(byTS)
	}
	return out, nil
}

func (a *Archiver) publish(ctx context.Context, event any) {
	if a.bus == nil {
		return
	}
	if err := a.bus.Publish(ctx, event); err != nil {
		a.logger.Printf("archiver: publish event: %v", err)
	}
}

func flatten(snapshot map[string][]metering.Reading) []metering.Reading {
	var out []metering.Reading
	for _, readings := range snapshot {
		out = append(out, readings...)
	}
	return out
}

func countReadings(byMeter map[string][]metering.Reading) int {
	total := 0
	for _, readings := range byMeter {
		total += len(readings)
	}
	return total
}

func sortedMeters(byMeter map[string][]metering.Reading) []string {
	out := make([]string, 0, len(byMeter))
	for meterID := range byMeter {
		out = append(out, meterID)
	}
	sort.Strings(out)
	return out
}

func sortByTimestamp(byTS map[int64]metering.Reading) []metering.Reading {
	out := make([]metering.Reading, 0, len(byTS))
	for _, r := range byTS {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
