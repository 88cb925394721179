// Package accounts holds the registry of electricity accounts. A meter
// must belong to a registered account before its readings are accepted.
package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account ties an owner to a meter.
type Account struct {
	ID        uuid.UUID `json:"id"`
	OwnerName string    `json:"owner_name"`
	Address   string    `json:"address"`
	MeterID   string    `json:"meter_id"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	// ErrEmptyOwner signals a registration without an owner name.
	ErrEmptyOwner = errors.New("accounts: empty owner name")

	// ErrEmptyAddress signals a registration without an address.
	ErrEmptyAddress = errors.New("accounts: empty address")

	// ErrEmptyMeterID signals a registration without a meter id.
	ErrEmptyMeterID = errors.New("accounts: empty meter id")

	// ErrDuplicateMeter signals that the meter already has an account.
	ErrDuplicateMeter = errors.New("accounts: meter already registered")
)

// NewAccount validates the fields and mints an account.
func NewAccount(ownerName, address, meterID string) (Account, error) {
	ownerName = strings.TrimSpace(ownerName)
	address = strings.TrimSpace(address)
	meterID = strings.TrimSpace(meterID)
	if ownerName == "" {
		return Account{}, ErrEmptyOwner
	}
	if address == "" {
		return Account{}, ErrEmptyAddress
	}
	if meterID == "" {
		return Account{}, ErrEmptyMeterID
	}
	return Account{
		ID:        uuid.New(),
		OwnerName: ownerName,
		Address:   address,
		MeterID:   meterID,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Registry manages account persistence. IsRegistered doubles as the
// pre-registration check the ingestion validator consults.
type Registry interface {
	Register(ctx context.Context, account Account) error
	FindByMeter(ctx context.Context, meterID string) (*Account, error)
	IsRegistered(ctx context.Context, meterID string) (bool, error)
	Meters(ctx context.Context) ([]string, error)
}
