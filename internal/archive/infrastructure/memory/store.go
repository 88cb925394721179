// Package memory provides in-memory archive stores for demos/tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	archive "metering-cloud/internal/archive/domain"
	metering "metering-cloud/internal/metering/domain"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// PartitionStore keeps daily and monthly partitions in maps.
type PartitionStore struct {
	mu      sync.RWMutex
	daily   map[string][]metering.Reading
	monthly map[string][]metering.Reading
}

// NewPartitionStore constructs an empty store.
func NewPartitionStore() *PartitionStore {
	return &PartitionStore{
		daily:   make(map[string][]metering.Reading),
		monthly: make(map[string][]metering.Reading),
	}
}

// WriteDaily persists a daily partition unless present.
func (s *PartitionStore) WriteDaily(ctx context.Context, date time.Time, records []metering.Reading) (bool, error) {
	_ = ctx
	key := date.UTC().Format(dayLayout)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.daily[key]; ok {
		return false, nil
	}
	s.daily[key] = copyReadings(records)
	return true, nil
}

// WriteMonthly persists a monthly partition unless present.
func (s *PartitionStore) WriteMonthly(ctx context.Context, month time.Time, records []metering.Reading) (bool, error) {
	_ = ctx
	key := month.UTC().Format(monthLayout)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.monthly[key]; ok {
		return false, nil
	}
	s.monthly[key] = copyReadings(records)
	return true, nil
}

// ReadDaily loads a daily partition, nil when absent.
func (s *PartitionStore) ReadDaily(ctx context.Context, date time.Time) ([]metering.Reading, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyReadings(s.daily[date.UTC().Format(dayLayout)]), nil
}

// ReadMonthly loads a monthly partition, nil when absent.
func (s *PartitionStore) ReadMonthly(ctx context.Context, month time.Time) ([]metering.Reading, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyReadings(s.monthly[month.UTC().Format(monthLayout)]), nil
}

// ListDailyDates returns existing daily partition dates in the month.
func (s *PartitionStore) ListDailyDates(ctx context.Context, month time.Time) ([]time.Time, error) {
	_ = ctx
	monthStart := archive.MonthStart(month)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var dates []time.Time
	for key := range s.daily {
		date, err := time.Parse(dayLayout, key)
		if err != nil {
			continue
		}
		if date.Year() == monthStart.Year() && date.Month() == monthStart.Month() {
			dates = append(dates, date.UTC())
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// BillStore keeps monthly bill batches in a map.
type BillStore struct {
	mu    sync.RWMutex
	bills map[string][]archive.Bill
}

// NewBillStore constructs an empty store.
func NewBillStore() *BillStore {
	return &BillStore{bills: make(map[string][]archive.Bill)}
}

// WriteBills persists the month's bills unless present.
func (s *BillStore) WriteBills(ctx context.Context, month time.Time, bills []archive.Bill) (bool, error) {
	_ = ctx
	key := month.UTC().Format(monthLayout)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bills[key]; ok {
		return false, nil
	}
	copied := make([]archive.Bill, len(bills))
	copy(copied, bills)
	s.bills[key] = copied
	return true, nil
}

// ReadBill returns the meter's bill, nil when absent.
func (s *BillStore) ReadBill(ctx context.Context, month time.Time, meterID string) (*archive.Bill, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, bill := range s.bills[month.UTC().Format(monthLayout)] {
		if bill.MeterID == meterID {
			b := bill
			return &b, nil
		}
	}
	return nil, nil
}

// ReadBills loads the month's bills.
func (s *BillStore) ReadBills(ctx context.Context, month time.Time) ([]archive.Bill, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	bills := s.bills[month.UTC().Format(monthLayout)]
	copied := make([]archive.Bill, len(bills))
	copy(copied, bills)
	return copied, nil
}

func copyReadings(records []metering.Reading) []metering.Reading {
	if records == nil {
		return nil
	}
	out := make([]metering.Reading, len(records))
	copy(out, records)
	return out
}
