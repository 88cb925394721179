// Package wal implements the durable raw append log of accepted readings.
// Every accepted reading is written and fsync'd here before it is committed
// to the in-memory store, so the recovery manager can replay the current
// day after a crash.
package wal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	metering "metering-cloud/internal/metering/domain"
)

const (
	fileLayout = "2006-01-02"
	fileSuffix = ".wal"
	separator  = ";"
)

// Log appends readings to per-day segment files. One line per reading:
// meter_id;timestamp(RFC3339);value.
type Log struct {
	dir string

	mu   sync.Mutex
	day  string
	file *os.File
}

// Open prepares a log rooted at dir, creating it if needed.
func Open(dir string) (*Log, error) {
	if dir == "" {
		return nil, errors.New("wal: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}
	return &Log{dir: dir}, nil
}

// Append durably writes one reading. The segment file is chosen by the
// reading's timestamp day so replay by date stays deterministic.
func (l *Log) Append(reading metering.Reading) error {
	if reading.MeterID == "" {
		return metering.ErrEmptyMeterID
	}

	day := reading.Timestamp.UTC().Format(fileLayout)
	line := strings.Join([]string{
		reading.MeterID,
		reading.Timestamp.UTC().Format(time.RFC3339),
		reading.Value.String(),
	}, separator) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil || l.day != day {
		if l.file != nil {
			_ = l.file.Close()
			l.file = nil
		}
		file, err := os.OpenFile(l.segmentPath(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("wal: open segment: %w", err)
		}
		l.file = file
		l.day = day
	}

	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	return nil
}

// ReadRange replays all segments with day in [from, to], in day and line
// order. Malformed lines are skipped and counted rather than failing the
// replay; a missing segment is not an error.
func (l *Log) ReadRange(from, to time.Time) ([]metering.Reading, int, error) {
	var readings []metering.Reading
	var malformed int

	for day := truncateToDay(from); !day.After(truncateToDay(to)); day = day.AddDate(0, 0, 1) {
		dayReadings, dayMalformed, err := l.readSegment(day.Format(fileLayout))
		if err != nil {
			return nil, 0, err
		}
		readings = append(readings, dayReadings...)
		malformed += dayMalformed
	}
	return readings, malformed, nil
}

// Close releases the current segment file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.day = ""
	return err
}

func (l *Log) readSegment(day string) ([]metering.Reading, int, error) {
	file, err := os.Open(l.segmentPath(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("wal: open segment %s: %w", day, err)
	}
	defer file.Close()

	var readings []metering.Reading
	var malformed int
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reading, err := parseLine(line)
		if err != nil {
			malformed++
			continue
		}
		readings = append(readings, reading)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("wal: read segment %s: %w", day, err)
	}
	return readings, malformed, nil
}

func (l *Log) segmentPath(day string) string {
	return filepath.Join(l.dir, day+fileSuffix)
}

func parseLine(line string) (metering.Reading, error) {
	parts := strings.Split(line, separator)
	if len(parts) != 3 {
		return metering.Reading{}, fmt.Errorf("wal: malformed line %q", line)
	}
	ts, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return metering.Reading{}, fmt.Errorf("wal: malformed timestamp %q: %w", parts[1], err)
	}
	value, err := decimal.NewFromString(parts[2])
	if err != nil {
		return metering.Reading{}, fmt.Errorf("wal: malformed value %q: %w", parts[2], err)
	}
	return metering.Reading{MeterID: parts[0], Timestamp: ts.UTC(), Value: value}, nil
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
