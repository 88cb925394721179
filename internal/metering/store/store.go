// Package store holds the in-memory per-meter reading series. It is the
// single source of truth for readings until they are archived.
package store

import (
	"sort"
	"sync"
	"time"

	metering "metering-cloud/internal/metering/domain"
)

// Store maps meter ids to ordered reading sequences. Appends to different
// meters proceed independently; a drain takes the store exclusively so
// concurrent readers see either the pre-drain or post-drain state, never a
// partially drained one.
type Store struct {
	mu     sync.RWMutex
	series map[string]*series
}

type series struct {
	mu       sync.Mutex
	readings []metering.Reading
}

// New constructs an empty store.
func New() *Store {
	return &Store{series: make(map[string]*series)}
}

// Append adds a validated reading. The reading must be strictly newer in
// timestamp and value than the meter's current last reading; the invariant
// is re-checked here so the store can never hold a non-monotonic sequence.
func (s *Store) Append(reading metering.Reading) error {
	if reading.MeterID == "" {
		return metering.ErrEmptyMeterID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ser := s.series[reading.MeterID]
	if ser == nil {
		// Upgrade to create the series, then retake the read lock.
		s.mu.RUnlock()
		s.mu.Lock()
		if s.series[reading.MeterID] == nil {
			s.series[reading.MeterID] = &series{}
		}
		s.mu.Unlock()
		s.mu.RLock()
		ser = s.series[reading.MeterID]
	}

	ser.mu.Lock()
	defer ser.mu.Unlock()
	if n := len(ser.readings); n > 0 {
		last := ser.readings[n-1]
		if !reading.Timestamp.After(last.Timestamp) {
			return metering.ErrOutOfOrderTimestamp
		}
		if reading.Value.Cmp(last.Value) <= 0 {
			return metering.ErrNonMonotonicReading
		}
	}
	ser.readings = append(ser.readings, reading)
	return nil
}

// Last returns the meter's most recent reading.
func (s *Store) Last(meterID string) (metering.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser := s.series[meterID]
	if ser == nil {
		return metering.Reading{}, false
	}
	ser.mu.Lock()
	defer ser.mu.Unlock()
	if len(ser.readings) == 0 {
		return metering.Reading{}, false
	}
	return ser.readings[len(ser.readings)-1], true
}

// Range returns the meter's readings with from <= timestamp <= to, in
// timestamp order. The result is a copy.
func (s *Store) Range(meterID string, from, to time.Time) []metering.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser := s.series[meterID]
	if ser == nil {
		return nil
	}
	ser.mu.Lock()
	defer ser.mu.Unlock()
	return inWindow(ser.readings, from, to)
}

// SnapshotRange returns, for every meter, a copy of readings with
// from <= timestamp <= to. Used by archival to persist before draining.
func (s *Store) SnapshotRange(from, to time.Time) map[string][]metering.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]metering.Reading, len(s.series))
	for meterID, ser := range s.series {
		ser.mu.Lock()
		window := inWindow(ser.readings, from, to)
		ser.mu.Unlock()
		if len(window) > 0 {
			out[meterID] = window
		}
	}
	return out
}

// DrainRange removes and returns, per meter, readings with
// from <= timestamp < cutoff. Readings outside the window stay resident,
// so archiving one day never drops another day that was not persisted.
// The meter's single most recent reading is always retained as the anchor
// so Last keeps answering and monotonicity checks keep working across the
// archival boundary.
func (s *Store) DrainRange(from, cutoff time.Time) map[string][]metering.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := make(map[string][]metering.Reading)
	for meterID, ser := range s.series {
		n := len(ser.readings)
		if n == 0 {
			continue
		}
		// Never drain the newest reading; it anchors the next day/month.
		limit := n - 1
		lo := sort.Search(limit, func(i int) bool {
			return !ser.readings[i].Timestamp.Before(from)
		})
		hi := sort.Search(limit, func(i int) bool {
			return !ser.readings[i].Timestamp.Before(cutoff)
		})
		if lo >= hi {
			continue
		}
		removed := make([]metering.Reading, hi-lo)
		copy(removed, ser.readings[lo:hi])
		remaining := make([]metering.Reading, 0, n-(hi-lo))
		remaining = append(remaining, ser.readings[:lo]...)
		remaining = append(remaining, ser.readings[hi:]...)
		ser.readings = remaining
		drained[meterID] = removed
	}
	return drained
}

// DrainBefore removes and returns, per meter, readings with timestamp
// strictly before cutoff, keeping the anchor like DrainRange.
func (s *Store) DrainBefore(cutoff time.Time) map[string][]metering.Reading {
	return s.DrainRange(time.Time{}, cutoff)
}

// Meters returns all meter ids with at least one reading, sorted.
func (s *Store) Meters() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.series))
	for meterID, ser := range s.series {
		ser.mu.Lock()
		n := len(ser.readings)
		ser.mu.Unlock()
		if n > 0 {
			out = append(out, meterID)
		}
	}
	sort.Strings(out)
	return out
}

// Counts reports the number of meters and total readings held.
func (s *Store) Counts() (meters, readings int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ser := range s.series {
		ser.mu.Lock()
		n := len(ser.readings)
		ser.mu.Unlock()
		if n > 0 {
			meters++
			readings += n
		}
	}
	return meters, readings
}

func inWindow(readings []metering.Reading, from, to time.Time) []metering.Reading {
	start := sort.Search(len(readings), func(i int) bool {
		return !readings[i].Timestamp.Before(from)
	})
	end := sort.Search(len(readings), func(i int) bool {
		return readings[i].Timestamp.After(to)
	})
	if start >= end {
		return nil
	}
	out := make([]metering.Reading, end-start)
	copy(out, readings[start:end])
	return out
}
