// Package maintenance owns the process operating mode. Every other
// component reads the mode through the Accepting gate; only the state
// machine's transitions mutate it.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"metering-cloud/internal/observability/metrics"
)

// Mode is the process-wide operating mode.
type Mode string

// Operating modes.
const (
	ModeNormal      Mode = "NORMAL"
	ModeMaintenance Mode = "MAINTENANCE"
)

// Type selects which archival operations a maintenance run performs.
type Type string

// Maintenance types.
const (
	TypeDaily   Type = "daily"
	TypeMonthly Type = "monthly"
	TypeBoth    Type = "both"
)

// ParseType validates a maintenance type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeDaily, TypeMonthly, TypeBoth:
		return Type(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

// Archiver runs the archival operations a maintenance run triggers.
type Archiver interface {
	ArchiveDaily(ctx context.Context, date time.Time) error
	ArchiveMonthly(ctx context.Context, month time.Time) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Status is a read-only snapshot of the operating mode.
type Status struct {
	Mode      Mode      `json:"mode"`
	Accepting bool      `json:"accepting_data"`
	Timestamp time.Time `json:"timestamp"`
	LastError string    `json:"last_error,omitempty"`
}

// StateMachine serializes mode transitions. It starts not accepting;
// ingestion opens only after startup recovery calls Resume.
type StateMachine struct {
	archiver Archiver
	clock    Clock
	logger   *log.Logger

	mu        sync.Mutex
	mode      Mode
	accepting bool
	lastError error
}

// Option configures the state machine.
type Option func(*StateMachine)

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(m *StateMachine) { m.clock = clock }
}

// NewStateMachine constructs the state machine in NORMAL mode with
// ingestion gated off.
func NewStateMachine(archiver Archiver, logger *log.Logger, opts ...Option) (*StateMachine, error) {
	if archiver == nil {
		return nil, errors.New("maintenance: nil archiver")
	}
	if logger == nil {
		logger = log.Default()
	}
	m := &StateMachine{
		archiver: archiver,
		clock:    ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:   logger,
		mode:     ModeNormal,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Accepting reports whether ingestion is currently admitted.
func (m *StateMachine) Accepting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accepting && m.mode == ModeNormal
}

// Status returns a snapshot of the current mode.
func (m *StateMachine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := Status{
		Mode:      m.mode,
		Accepting: m.accepting && m.mode == ModeNormal,
		Timestamp: m.clock.Now(),
	}
	if m.lastError != nil {
		status.LastError = m.lastError.Error()
	}
	return status
}

// StartMaintenance switches to MAINTENANCE, runs the requested archival
// operations, and returns to NORMAL accepting on success. On failure the
// machine stays in MAINTENANCE with the error recorded; an operator must
// intervene and re-run.
func (m *StateMachine) StartMaintenance(ctx context.Context, typ Type) error {
	if _, err := ParseType(string(typ)); err != nil {
		return err
	}

	m.mu.Lock()
	if m.mode == ModeMaintenance {
		m.mu.Unlock()
		return ErrMaintenanceActive
	}
	m.mode = ModeMaintenance
	m.accepting = false
	m.mu.Unlock()

	metrics.IncMaintenanceTransition(string(ModeMaintenance))
	m.logger.Printf("maintenance: starting %s run", typ)

	now := m.clock.Now()
	err := m.runArchival(ctx, typ, now)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.lastError = err
		m.logger.Printf("maintenance: %s run failed: %v", typ, err)
		return err
	}
	m.mode = ModeNormal
	m.accepting = true
	m.lastError = nil
	metrics.IncMaintenanceTransition(string(ModeNormal))
	m.logger.Printf("maintenance: %s run completed", typ)
	return nil
}

func (m *StateMachine) runArchival(ctx context.Context, typ Type, now time.Time) error {
	start := time.Now()
	if typ == TypeDaily || typ == TypeBoth {
		if err := m.archiver.ArchiveDaily(ctx, now); err != nil {
			metrics.ObserveArchive("daily", metrics.ResultError, time.Since(start))
			return fmt.Errorf("maintenance: daily archival: %w", err)
		}
		metrics.ObserveArchive("daily", metrics.ResultSuccess, time.Since(start))
	}
	if typ == TypeMonthly || typ == TypeBoth {
		start = time.Now()
		if err := m.archiver.ArchiveMonthly(ctx, now); err != nil {
			metrics.ObserveArchive("monthly", metrics.ResultError, time.Since(start))
			return fmt.Errorf("maintenance: monthly archival: %w", err)
		}
		metrics.ObserveArchive("monthly", metrics.ResultSuccess, time.Since(start))
	}
	return nil
}

// RecordFailure notes a failure that happened outside a maintenance run,
// such as startup recovery, so Status surfaces it. Mode and gating are
// left as they are.
func (m *StateMachine) RecordFailure(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = err
}

// Shutdown stops ingestion. Queries keep being served.
func (m *StateMachine) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.accepting {
		return ErrAlreadyStopped
	}
	m.accepting = false
	m.logger.Printf("maintenance: ingestion stopped")
	return nil
}

// Resume reopens ingestion after a shutdown or after startup recovery.
func (m *StateMachine) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == ModeMaintenance {
		return ErrMaintenanceActive
	}
	if m.accepting {
		return ErrAlreadyAccepting
	}
	m.accepting = true
	m.lastError = nil
	m.logger.Printf("maintenance: ingestion resumed")
	return nil
}
