// Package application implements the ingestion use case: gate, validate,
// persist to the append log, then admit into the reading store.
package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	metering "metering-cloud/internal/metering/domain"
	"metering-cloud/internal/observability/metrics"
)

// ErrNotAccepting is returned while ingestion is gated off, for example
// during maintenance or before startup recovery has finished.
var ErrNotAccepting = errors.New("ingest: not accepting data")

// Gate reports whether ingestion is currently allowed.
type Gate interface {
	Accepting() bool
}

// ReadingStore is the slice of the store ingestion needs.
type ReadingStore interface {
	Append(reading metering.Reading) error
	Last(meterID string) (metering.Reading, bool)
}

// AppendLog persists accepted readings before they enter the store.
type AppendLog interface {
	Append(reading metering.Reading) error
}

// Publisher publishes ingestion events.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// IngestService validates and admits meter readings. Requests for the
// same meter are serialized so the monotonicity check and the append are
// one atomic step per meter.
type IngestService struct {
	validator *metering.Validator
	store     ReadingStore
	wal       AppendLog
	gate      Gate
	bus       Publisher
	logger    *log.Logger

	mu     sync.Mutex
	meters map[string]*sync.Mutex
}

// Option configures the service.
type Option func(*IngestService)

// WithPublisher attaches an event publisher.
func WithPublisher(bus Publisher) Option {
	return func(s *IngestService) { s.bus = bus }
}

// WithAppendLog attaches a durable append log.
func WithAppendLog(wal AppendLog) Option {
	return func(s *IngestService) { s.wal = wal }
}

// NewIngestService constructs the service.
func NewIngestService(validator *metering.Validator, store ReadingStore, gate Gate, logger *log.Logger, opts ...Option) (*IngestService, error) {
	if validator == nil {
		return nil, errors.New("ingest: nil validator")
	}
	if store == nil {
		return nil, errors.New("ingest: nil store")
	}
	if gate == nil {
		return nil, errors.New("ingest: nil gate")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &IngestService{
		validator: validator,
		store:     store,
		gate:      gate,
		logger:    logger,
		meters:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ingest validates the reading and, on success, appends it durably to the
// log and then to the store. The store is never touched when validation
// or the log write fails.
func (s *IngestService) Ingest(ctx context.Context, meterID string, ts time.Time, value decimal.Decimal) (metering.Reading, error) {
	start := time.Now()
	reading, err := s.ingest(ctx, meterID, ts, value)
	if err != nil {
		metrics.IncIngestError(rejectReason(err))
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		return metering.Reading{}, err
	}
	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))
	return reading, nil
}

func (s *IngestService) ingest(ctx context.Context, meterID string, ts time.Time, value decimal.Decimal) (metering.Reading, error) {
	if !s.gate.Accepting() {
		return metering.Reading{}, ErrNotAccepting
	}

	lock := s.meterLock(meterID)
	lock.Lock()
	defer lock.Unlock()

	var last *metering.Reading
	if prev, ok := s.store.Last(meterID); ok {
		last = &prev
	}

	reading, err := s.validator.Validate(ctx, meterID, ts, value, last)
	if err != nil {
		return metering.Reading{}, err
	}

	if s.wal != nil {
		if err := s.wal.Append(reading); err != nil {
			return metering.Reading{}, fmt.Errorf("ingest: append log: %w", err)
		}
	}
	if err := s.store.Append(reading); err != nil {
		return metering.Reading{}, err
	}

	s.logger.Printf("ingest: meter %s reading %s at %s", reading.MeterID, reading.Value, reading.Timestamp.Format(time.RFC3339))
	if s.bus != nil {
		event := ReadingAccepted{
			MeterID:    reading.MeterID,
			Timestamp:  reading.Timestamp,
			Value:      reading.Value,
			OccurredAt: time.Now().UTC(),
		}
		if err := s.bus.Publish(ctx, event); err != nil {
			s.logger.Printf("ingest: publish event: %v", err)
		}
	}
	return reading, nil
}

func (s *IngestService) meterLock(meterID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.meters[meterID]
	if !ok {
		lock = &sync.Mutex{}
		s.meters[meterID] = lock
	}
	return lock
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotAccepting):
		return "not_accepting"
	case errors.Is(err, metering.ErrUnknownMeter):
		return "unknown_meter"
	case errors.Is(err, metering.ErrEmptyMeterID):
		return "empty_meter_id"
	case errors.Is(err, metering.ErrMisalignedTimestamp):
		return "misaligned_timestamp"
	case errors.Is(err, metering.ErrOutOfOrderTimestamp):
		return "out_of_order"
	case errors.Is(err, metering.ErrNonMonotonicReading):
		return "non_monotonic"
	case errors.Is(err, metering.ErrNegativeValue):
		return "negative_value"
	default:
		return "internal"
	}
}
