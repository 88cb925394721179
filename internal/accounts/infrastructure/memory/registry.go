// Package memory provides an in-memory account registry for single-node
// deployments and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	accounts "metering-cloud/internal/accounts/domain"
)

// Registry keeps accounts keyed by meter id.
type Registry struct {
	mu      sync.RWMutex
	byMeter map[string]accounts.Account
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{byMeter: make(map[string]accounts.Account)}
}

// Register stores the account unless the meter is taken.
func (r *Registry) Register(ctx context.Context, account accounts.Account) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byMeter[account.MeterID]; ok {
		return accounts.ErrDuplicateMeter
	}
	r.byMeter[account.MeterID] = account
	return nil
}

// FindByMeter returns the meter's account, nil when absent.
func (r *Registry) FindByMeter(ctx context.Context, meterID string) (*accounts.Account, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.byMeter[meterID]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

// IsRegistered reports whether the meter has an account.
func (r *Registry) IsRegistered(ctx context.Context, meterID string) (bool, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byMeter[meterID]
	return ok, nil
}

// Meters lists all registered meter ids in order.
func (r *Registry) Meters(ctx context.Context) ([]string, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	meters := make([]string, 0, len(r.byMeter))
	for meterID := range r.byMeter {
		meters = append(meters, meterID)
	}
	sort.Strings(meters)
	return meters, nil
}
