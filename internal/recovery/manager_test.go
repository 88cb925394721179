package recovery

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	archivememory "metering-cloud/internal/archive/infrastructure/memory"
	metering "metering-cloud/internal/metering/domain"
	readingstore "metering-cloud/internal/metering/store"
	"metering-cloud/internal/wal"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func reading(meterID string, ts time.Time, value int64) metering.Reading {
	return metering.Reading{MeterID: meterID, Timestamp: ts, Value: decimal.NewFromInt(value)}
}

func newManager(t *testing.T, partitions *archivememory.PartitionStore, replay ReplayLog, store *readingstore.Store, now time.Time) *Manager {
	t.Helper()
	m, err := NewManager(partitions, replay, store, log.New(discard{}, "", 0),
		WithClock(ClockFunc(func() time.Time { return now })))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestRecover_ReplaysPartitionsAndLog(t *testing.T) {
	now := time.Date(2025, 2, 9, 8, 0, 0, 0, time.UTC)
	dayOne := time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC)

	partitions := archivememory.NewPartitionStore()
	archived := []metering.Reading{
		reading("m-1", dayOne.Add(time.Hour), 100),
		reading("m-1", dayOne.Add(90*time.Minute), 105),
	}
	if _, err := partitions.WriteDaily(context.Background(), dayOne, archived); err != nil {
		t.Fatalf("write daily: %v", err)
	}

	walLog, err := wal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	defer walLog.Close()
	todayReading := reading("m-1", now.Truncate(time.Hour), 112)
	if err := walLog.Append(todayReading); err != nil {
		t.Fatalf("append wal: %v", err)
	}

	store := readingstore.New()
	m := newManager(t, partitions, walLog, store, now)

	report, err := m.Recover(context.Background())
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if report.MetersRestored != 1 || report.ReadingsRestored != 3 {
		t.Fatalf("report = %+v, want 1 meter / 3 readings", report)
	}
	if report.CorruptRecords != 0 {
		t.Fatalf("unexpected corrupt records: %d", report.CorruptRecords)
	}

	last, ok := store.Last("m-1")
	if !ok || !last.Value.Equal(decimal.NewFromInt(112)) {
		t.Fatalf("last after recovery = %+v ok=%v, want value 112", last, ok)
	}
}

func TestRecover_DeduplicatesOverlap(t *testing.T) {
	now := time.Date(2025, 2, 9, 8, 0, 0, 0, time.UTC)
	dayOne := time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC)

	partitions := archivememory.NewPartitionStore()
	shared := reading("m-1", dayOne.Add(time.Hour), 100)
	if _, err := partitions.WriteDaily(context.Background(), dayOne, []metering.Reading{shared}); err != nil {
		t.Fatalf("write daily: %v", err)
	}

	// The same reading also sits in the append log.
	walLog, err := wal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	defer walLog.Close()
	if err := walLog.Append(shared); err != nil {
		t.Fatalf("append wal: %v", err)
	}

	store := readingstore.New()
	m := newManager(t, partitions, walLog, store, now)

	report, err := m.Recover(context.Background())
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if report.ReadingsRestored != 1 {
		t.Fatalf("duplicate must collapse to one reading, got %d", report.ReadingsRestored)
	}
}

func TestRecover_SkipsCorruptRecords(t *testing.T) {
	now := time.Date(2025, 2, 9, 8, 0, 0, 0, time.UTC)
	dayOne := time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC)

	partitions := archivememory.NewPartitionStore()
	records := []metering.Reading{
		reading("m-1", dayOne.Add(time.Hour), 100),
		// Value regression relative to the previous record.
		reading("m-1", dayOne.Add(90*time.Minute), 90),
		reading("m-1", dayOne.Add(2*time.Hour), 110),
		// Off-grid timestamp.
		reading("m-2", dayOne.Add(time.Hour+7*time.Minute), 50),
	}
	if _, err := partitions.WriteDaily(context.Background(), dayOne, records); err != nil {
		t.Fatalf("write daily: %v", err)
	}

	walLog, err := wal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	defer walLog.Close()

	store := readingstore.New()
	m := newManager(t, partitions, walLog, store, now)

	report, err := m.Recover(context.Background())
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if report.ReadingsRestored != 2 {
		t.Fatalf("restored = %d, want 2", report.ReadingsRestored)
	}
	if report.CorruptRecords != 2 {
		t.Fatalf("corrupt = %d, want 2", report.CorruptRecords)
	}
	if report.MetersRestored != 1 {
		t.Fatalf("meters = %d, want 1 (m-2 had only a corrupt record)", report.MetersRestored)
	}
}

func TestRecover_RoundTripMatchesPreRestartState(t *testing.T) {
	now := time.Date(2025, 2, 9, 8, 0, 0, 0, time.UTC)
	base := time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC)

	// Build the pre-restart store through the durable log, as the live
	// ingestion path would.
	dir := t.TempDir()
	walLog, err := wal.Open(dir)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	before := readingstore.New()
	for i := 0; i < 10; i++ {
		r := reading("m-1", base.Add(time.Duration(i)*30*time.Minute), int64(100+3*i))
		if err := walLog.Append(r); err != nil {
			t.Fatalf("append wal: %v", err)
		}
		if err := before.Append(r); err != nil {
			t.Fatalf("append store: %v", err)
		}
	}
	wantLast, _ := before.Last("m-1")
	walLog.Close()

	// Restart: fresh store, same log directory.
	reopened, err := wal.Open(dir)
	if err != nil {
		t.Fatalf("reopen wal: %v", err)
	}
	defer reopened.Close()

	after := readingstore.New()
	m := newManager(t, archivememory.NewPartitionStore(), reopened, after, now)
	report, err := m.Recover(context.Background())
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if report.ReadingsRestored != 10 {
		t.Fatalf("restored = %d, want 10", report.ReadingsRestored)
	}

	gotLast, ok := after.Last("m-1")
	if !ok || !gotLast.Timestamp.Equal(wantLast.Timestamp) || !gotLast.Value.Equal(wantLast.Value) {
		t.Fatalf("last after recovery = %+v, want %+v", gotLast, wantLast)
	}
}

func TestRecover_IgnoresTodayPartition(t *testing.T) {
	now := time.Date(2025, 2, 9, 8, 0, 0, 0, time.UTC)
	today := time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC)

	// A partition dated today is not replayed; today's data comes from
	// the append log alone.
	partitions := archivememory.NewPartitionStore()
	if _, err := partitions.WriteDaily(context.Background(), today, []metering.Reading{
		reading("m-1", today.Add(time.Hour), 100),
	}); err != nil {
		t.Fatalf("write daily: %v", err)
	}

	walLog, err := wal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	defer walLog.Close()

	store := readingstore.New()
	m := newManager(t, partitions, walLog, store, now)
	report, err := m.Recover(context.Background())
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if report.ReadingsRestored != 0 {
		t.Fatalf("restored = %d, want 0", report.ReadingsRestored)
	}
}
