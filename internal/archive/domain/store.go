package archive

import (
	"context"
	"time"

	metering "metering-cloud/internal/metering/domain"
)

// PartitionStore is the durable, append-only partition storage behind the
// archive: one partition per calendar day per collection cycle and one per
// calendar month. Writes are write-if-absent; a write against an existing
// partition reports written=false and leaves the partition untouched,
// which is what makes archival idempotent.
type PartitionStore interface {
	WriteDaily(ctx context.Context, date time.Time, records []metering.Reading) (written bool, err error)
	WriteMonthly(ctx context.Context, month time.Time, records []metering.Reading) (written bool, err error)
	ReadDaily(ctx context.Context, date time.Time) ([]metering.Reading, error)
	ReadMonthly(ctx context.Context, month time.Time) ([]metering.Reading, error)
	// ListDailyDates returns the dates of existing daily partitions within
	// the given month, sorted ascending.
	ListDailyDates(ctx context.Context, month time.Time) ([]time.Time, error)
}

// BillStore persists the derived monthly bills, one batch per month.
// Writes are write-if-absent like partitions.
type BillStore interface {
	WriteBills(ctx context.Context, month time.Time, bills []Bill) (written bool, err error)
	// ReadBill returns nil when no bill exists for the meter and month.
	ReadBill(ctx context.Context, month time.Time, meterID string) (*Bill, error)
	ReadBills(ctx context.Context, month time.Time) ([]Bill, error)
}
