package application

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

func seedStore(t *testing.T, s *readingstore.Store, meterID string, start time.Time, values ...int64) {
	t.Helper()
	ts := start
	for _, value := range values {
		err := s.Append(metering.Reading{MeterID: meterID, Timestamp: ts, Value: decimal.NewFromInt(value)})
		if err != nil {
			t.Fatalf("seed %s %v: %v", meterID, ts, err)
		}
		ts = ts.Add(30 * time.Minute)
	}
}

func newTestArchiver(t *testing.T, s *readingstore.Store) (*Archiver, *archivememory.PartitionStore, *archivememory.BillStore) {
	t.Helper()
	partitions := archivememory.NewPartitionStore()
	bills := archivememory.NewBillStore()
	a, err := NewArchiver(s, partitions, bills, log.New(testWriter{t}, "", 0))
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}
	return a, partitions, bills
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestArchiveDaily_PersistsAndKeepsAnchor(t *testing.T) {
	s := readingstore.New()
	day := time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC)
	seedStore(t, s, "m-1", day.Add(time.Hour), 100, 105, 112)

	a, partitions, _ := newTestArchiver(t, s)
	if err := a.ArchiveDaily(context.Background(), day); err != nil {
		t.Fatalf("archive daily: %v", err)
	}

	records, err := partitions.ReadDaily(context.Background(), day)
	if err != nil {
		t.Fatalf("read daily: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 persisted records, got %d", len(records))
	}

	last, ok := s.Last("m-1")
	if !ok || !last.Value.Equal(decimal.NewFromInt(112)) {
		t.Fatalf("anchor must remain after daily archival, got %+v ok=%v", last, ok)
	}
	if _, readings := s.Counts(); readings != 1 {
		t.Fatalf("expected only the anchor to remain, got %d readings", readings)
	}
}

func TestArchiveDaily_LeavesOtherDaysInStore(t *testing.T) {
	s := readingstore.New()
	dayOne := time.Date(2025, 2, 7, 0, 0, 0, 0, time.UTC)
	dayTwo := dayOne.AddDate(0, 0, 1)

	// Day one's archival never ran; day two gets archived directly.
	seedStore(t, s, "m-1", dayOne.Add(time.Hour), 100, 105)
	seedStore(t, s, "m-1", dayTwo.Add(time.Hour), 110, 115)

	a, partitions, bills := newTestArchiver(t, s)
	if err := a.ArchiveDaily(context.Background(), dayTwo); err != nil {
		t.Fatalf("archive daily: %v", err)
	}

	if got := s.Range("m-1", dayOne, dayTwo.Add(-time.Nanosecond)); len(got) != 2 {
		t.Fatalf("day-one readings must survive day-two archival, got %d", len(got))
	}
	if records, err := partitions.ReadDaily(context.Background(), dayOne); err != nil || len(records) != 0 {
		t.Fatalf("no day-one partition must appear: %d records, err %v", len(records), err)
	}
	if records, err := partitions.ReadDaily(context.Background(), dayTwo); err != nil || len(records) != 2 {
		t.Fatalf("day-two partition must hold its 2 readings, got %d, err %v", len(records), err)
	}

	// Monthly archival still sees day one live and bills the whole month.
	month := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	if err := a.ArchiveMonthly(context.Background(), month); err != nil {
		t.Fatalf("archive monthly: %v", err)
	}
	bill, err := bills.ReadBill(context.Background(), month, "m-1")
	if err != nil || bill == nil {
		t.Fatalf("read bill: %+v, err %v", bill, err)
	}
	if !bill.StartReading.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("bill start must be the true first reading of the month, got %s", bill.StartReading)
	}
	if !bill.EndReading.Equal(decimal.NewFromInt(115)) {
		t.Fatalf("bill end = %s, want 115", bill.EndReading)
	}
}

func TestArchiveDaily_Idempotent(t *testing.T) {
	s := readingstore.New()
	day := time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC)
	seedStore(t, s, "m-1", day.Add(time.Hour), 100, 105)

	a, partitions, _ := newTestArchiver(t, s)
	if err := a.ArchiveDaily(context.Background(), day); err != nil {
		t.Fatalf("first archive: %v", err)
	}
	firstLast, _ := s.Last("m-1")

	if err := a.ArchiveDaily(context.Background(), day); err != nil {
		t.Fatalf("second archive: %v", err)
	}

	records, err := partitions.ReadDaily(context.Background(), day)
	if err != nil {
		t.Fatalf("read daily: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("re-run must not duplicate records, got %d", len(records))
	}
	secondLast, _ := s.Last("m-1")
	if !secondLast.Timestamp.Equal(firstLast.Timestamp) || !secondLast.Value.Equal(firstLast.Value) {
		t.Fatalf("re-run changed store state: %+v vs %+v", firstLast, secondLast)
	}
}

type failingPartitionStore struct {
	archive.PartitionStore
	failDaily   bool
	failMonthly bool
}

var errDiskFull = errors.New("disk full")

func (f failingPartitionStore) WriteDaily(ctx context.Context, date time.Time, records []metering.Reading) (bool, error) {
	if f.failDaily {
		return false, errDiskFull
	}
	return f.PartitionStore.WriteDaily(ctx, date, records)
}

func (f failingPartitionStore) WriteMonthly(ctx context.Context, month time.Time, records []metering.Reading) (bool, error) {
	if f.failMonthly {
		return false, errDiskFull
	}
	return f.PartitionStore.WriteMonthly(ctx, month, records)
}

func TestArchiveDaily_PersistenceFailureLeavesStoreUntouched(t *testing.T) {
	s := readingstore.New()
	day := time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC)
	seedStore(t, s, "m-1", day.Add(time.Hour), 100, 105, 112)
	seedStore(t, s, "m-2", day.Add(time.Hour), 50, 51)

	failing := failingPartitionStore{PartitionStore: archivememory.NewPartitionStore(), failDaily: true}
	a, err := NewArchiver(s, failing, archivememory.NewBillStore(), log.New(testWriter{t}, "", 0))
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}

	metersBefore, readingsBefore := s.Counts()
	err = a.ArchiveDaily(context.Background(), day)
	if !errors.Is(err, archive.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}

	metersAfter, readingsAfter := s.Counts()
	if metersBefore != metersAfter || readingsBefore != readingsAfter {
		t.Fatalf("store changed on failed archival: %d/%d vs %d/%d", metersBefore, readingsBefore, metersAfter, readingsAfter)
	}
	if got := s.Range("m-1", day, day.AddDate(0, 0, 1)); len(got) != 3 {
		t.Fatalf("m-1 readings must survive failed archival, got %d", len(got))
	}
}

func TestArchiveMonthly_BillSpansDailyPartitions(t *testing.T) {
	s := readingstore.New()
	month := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	// Day 1 gets archived daily; only the anchor remains in the store.
	seedStore(t, s, "m-1", month.Add(time.Hour), 100, 110, 120)
	a, partitions, bills := newTestArchiver(t, s)
	if err := a.ArchiveDaily(context.Background(), month); err != nil {
		t.Fatalf("archive daily: %v", err)
	}

	// Day 2 readings stay in the store.
	seedStore(t, s, "m-1", month.AddDate(0, 0, 1).Add(time.Hour), 130, 145)

	if err := a.ArchiveMonthly(context.Background(), month); err != nil {
		t.Fatalf("archive monthly: %v", err)
	}

	bill, err := bills.ReadBill(context.Background(), month, "m-1")
	if err != nil {
		t.Fatalf("read bill: %v", err)
	}
	if bill == nil {
		t.Fatal("expected bill")
	}
	if !bill.StartReading.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("bill start must be the first reading of the month, got %s", bill.StartReading)
	}
	if !bill.EndReading.Equal(decimal.NewFromInt(145)) {
		t.Fatalf("bill end must be the last reading of the month, got %s", bill.EndReading)
	}
	if !bill.Consumption.Equal(decimal.NewFromInt(45)) {
		t.Fatalf("expected consumption 45, got %s", bill.Consumption)
	}

	records, err := partitions.ReadMonthly(context.Background(), month)
	if err != nil {
		t.Fatalf("read monthly: %v", err)
	}
	// Remaining = anchor of day 1 + the two day-2 readings.
	if len(records) != 3 {
		t.Fatalf("expected 3 remaining readings persisted, got %d", len(records))
	}

	last, ok := s.Last("m-1")
	if !ok || !last.Value.Equal(decimal.NewFromInt(145)) {
		t.Fatalf("anchor must remain after monthly archival, got %+v ok=%v", last, ok)
	}
	if _, readings := s.Counts(); readings != 1 {
		t.Fatalf("expected only the anchor to remain, got %d readings", readings)
	}
}

func TestArchiveMonthly_BillFailureLeavesStoreUntouched(t *testing.T) {
	s := readingstore.New()
	month := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	seedStore(t, s, "m-1", month.Add(time.Hour), 100, 110)

	bills := failingBillStore{}
	a, err := NewArchiver(s, archivememory.NewPartitionStore(), bills, log.New(testWriter{t}, "", 0))
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}

	_, readingsBefore := s.Counts()
	err = a.ArchiveMonthly(context.Background(), month)
	if !errors.Is(err, archive.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if _, readingsAfter := s.Counts(); readingsAfter != readingsBefore {
		t.Fatalf("store changed on failed bill write: %d vs %d", readingsBefore, readingsAfter)
	}
}

type failingBillStore struct{}

func (failingBillStore) WriteBills(context.Context, time.Time, []archive.Bill) (bool, error) {
	return false, errDiskFull
}

func (failingBillStore) ReadBill(context.Context, time.Time, string) (*archive.Bill, error) {
	return nil, nil
}

func (failingBillStore) ReadBills(context.Context, time.Time) ([]archive.Bill, error) {
	return nil, nil
}

func TestArchiveMonthly_Idempotent(t *testing.T) {
	s := readingstore.New()
	month := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	seedStore(t, s, "m-1", month.Add(time.Hour), 100, 110, 125)

	a, _, bills := newTestArchiver(t, s)
	if err := a.ArchiveMonthly(context.Background(), month); err != nil {
		t.Fatalf("first archive: %v", err)
	}
	first, err := bills.ReadBill(context.Background(), month, "m-1")
	if err != nil || first == nil {
		t.Fatalf("read first bill: %v %v", first, err)
	}

	if err := a.ArchiveMonthly(context.Background(), month); err != nil {
		t.Fatalf("second archive: %v", err)
	}
	second, err := bills.ReadBill(context.Background(), month, "m-1")
	if err != nil || second == nil {
		t.Fatalf("read second bill: %v %v", second, err)
	}
	if !first.Consumption.Equal(second.Consumption) || !first.StartReading.Equal(second.StartReading) {
		t.Fatalf("re-run altered the bill: %+v vs %+v", first, second)
	}
}
