package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	archive "metering-cloud/internal/archive/domain"
)

const (
	billPrefix = "bill_"
	jsonSuffix = ".json"
)

// BillStore stores one JSON document of bills per month.
type BillStore struct {
	dir string
}

// NewBillStore prepares the bill root, creating it if needed.
func NewBillStore(dir string) (*BillStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("bill store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("bill store: create dir: %w", err)
	}
	return &BillStore{dir: dir}, nil
}

// WriteBills persists the month's bills unless a document already exists.
func (s *BillStore) WriteBills(ctx context.Context, month time.Time, bills []archive.Bill) (bool, error) {
	_ = ctx
	path := s.path(month)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("bill store: stat %s: %w", path, err)
	}

	sorted := make([]archive.Bill, len(bills))
	copy(sorted, bills)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MeterID < sorted[j].MeterID })

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return false, fmt.Errorf("bill store: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-")
	if err != nil {
		return false, fmt.Errorf("bill store: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("bill store: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return false, fmt.Errorf("bill store: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("bill store: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return false, fmt.Errorf("bill store: rename: %w", err)
	}
	return true, nil
}

// ReadBill returns the meter's bill for the month, nil when absent.
func (s *BillStore) ReadBill(ctx context.Context, month time.Time, meterID string) (*archive.Bill, error) {
	bills, err := s.ReadBills(ctx, month)
	if err != nil {
		return nil, err
	}
	for i := range bills {
		if bills[i].MeterID == meterID {
			return &bills[i], nil
		}
	}
	return nil, nil
}

// ReadBills loads all bills of the month; a missing document yields nil.
func (s *BillStore) ReadBills(ctx context.Context, month time.Time) ([]archive.Bill, error) {
	_ = ctx
	path := s.path(month)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bill store: read %s: %w", path, err)
	}

	var bills []archive.Bill
	if err := json.Unmarshal(data, &bills); err != nil {
		return nil, fmt.Errorf("bill store: unmarshal %s: %w", path, err)
	}
	return bills, nil
}

func (s *BillStore) path(month time.Time) string {
	return filepath.Join(s.dir, billPrefix+month.UTC().Format(monthLayout)+jsonSuffix)
}
