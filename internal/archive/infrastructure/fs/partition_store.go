// Package fs implements the archive stores on flat files: CSV partitions
// in the layout the recovery path replays (header meter_id,timestamp,
// reading) and one JSON document per month of bills. All writes are
// write-if-absent and go through a temp file + rename so a partition is
// either fully present or absent.
package fs

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	archive "metering-cloud/internal/archive/domain"
	metering "metering-cloud/internal/metering/domain"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"

	dailyPrefix   = "daily_"
	monthlyPrefix = "monthly_"
	csvSuffix     = ".csv"
)

var csvHeader = []string{"meter_id", "timestamp", "reading"}

// PartitionStore stores daily and monthly CSV partitions under one root
// directory.
type PartitionStore struct {
	dir string
}

// NewPartitionStore prepares the partition root, creating it if needed.
func NewPartitionStore(dir string) (*PartitionStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("partition store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("partition store: create dir: %w", err)
	}
	return &PartitionStore{dir: dir}, nil
}

// WriteDaily persists a daily partition unless it already exists.
func (s *PartitionStore) WriteDaily(ctx context.Context, date time.Time, records []metering.Reading) (bool, error) {
	return s.write(ctx, s.dailyPath(date), records)
}

// WriteMonthly persists a monthly partition unless it already exists.
func (s *PartitionStore) WriteMonthly(ctx context.Context, month time.Time, records []metering.Reading) (bool, error) {
	return s.write(ctx, s.monthlyPath(month), records)
}

// ReadDaily loads a daily partition; a missing partition yields an empty
// slice.
func (s *PartitionStore) ReadDaily(ctx context.Context, date time.Time) ([]metering.Reading, error) {
	return s.read(ctx, s.dailyPath(date))
}

// ReadMonthly loads a monthly partition; a missing partition yields an
// empty slice.
func (s *PartitionStore) ReadMonthly(ctx context.Context, month time.Time) ([]metering.Reading, error) {
	return s.read(ctx, s.monthlyPath(month))
}

// ListDailyDates returns the dates of existing daily partitions in the
// month, ascending.
func (s *PartitionStore) ListDailyDates(ctx context.Context, month time.Time) ([]time.Time, error) {
	_ = ctx
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("partition store: list: %w", err)
	}

	monthStart := archive.MonthStart(month)
	var dates []time.Time
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, dailyPrefix) || !strings.HasSuffix(name, csvSuffix) {
			continue
		}
		date, err := time.Parse(dayLayout, strings.TrimSuffix(strings.TrimPrefix(name, dailyPrefix), csvSuffix))
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

func (s *PartitionStore) write(ctx context.Context, path string, records []metering.Reading) (bool, error) {
	_ = ctx
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("partition store: stat %s: %w", path, err)
	}

	sorted := make([]metering.Reading, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].MeterID != sorted[j].MeterID {
			return sorted[i].MeterID < sorted[j].MeterID
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-")
	if err != nil {
		return false, fmt.Errorf("partition store: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	writer := csv.NewWriter(tmp)
	if err := writer.Write(csvHeader); err != nil {
		tmp.Close()
		return false, fmt.Errorf("partition store: write header: %w", err)
	}
	for _, record := range sorted {
		row := []string{record.MeterID, record.Timestamp.UTC().Format(time.RFC3339), record.Value.String()}
		if err := writer.Write(row); err != nil {
			tmp.Close()
			return false, fmt.Errorf("partition store: write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return false, fmt.Errorf("partition store: flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return false, fmt.Errorf("partition store: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("partition store: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return false, fmt.Errorf("partition store: rename: %w", err)
	}
	return true, nil
}

func (s *PartitionStore) read(ctx context.Context, path string) ([]metering.Reading, error) {
	_ = ctx
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("partition store: open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("partition store: read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]metering.Reading, 0, len(rows)-1)
	for i, row := range rows {
		if i == 0 {
			// Header row.
			continue
		}
		if len(row) != 3 {
			return nil, fmt.Errorf("partition store: malformed row %d in %s", i, path)
		}
		ts, err := time.Parse(time.RFC3339, row[1])
		if err != nil {
			return nil, fmt.Errorf("partition store: row %d timestamp: %w", i, err)
		}
		value, err := decimal.NewFromString(row[2])
		if err != nil {
			return nil, fmt.Errorf("partition store: row %d value: %w", i, err)
		}
		records = append(records, metering.Reading{MeterID: row[0], Timestamp: ts.UTC(), Value: value})
	}
	return records, nil
}

func (s *PartitionStore) dailyPath(date time.Time) string {
	return filepath.Join(s.dir, dailyPrefix+date.UTC().Format(dayLayout)+csvSuffix)
}

func (s *PartitionStore) monthlyPath(month time.Time) string {
	return filepath.Join(s.dir, monthlyPrefix+month.UTC().Format(monthLayout)+csvSuffix)
}
