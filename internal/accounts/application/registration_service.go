// Package application implements account registration.
package application

import (
	"context"
	"errors"
	"log"

	accounts "metering-cloud/internal/accounts/domain"
)

// RegistrationService creates accounts in the registry.
type RegistrationService struct {
	registry accounts.Registry
	logger   *log.Logger
}

// NewRegistrationService constructs the service.
func NewRegistrationService(registry accounts.Registry, logger *log.Logger) (*RegistrationService, error) {
	if registry == nil {
		return nil, errors.New("registration: nil registry")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RegistrationService{registry: registry, logger: logger}, nil
}

// Register validates the input and stores a new account.
func (s *RegistrationService) Register(ctx context.Context, ownerName, address, meterID string) (accounts.Account, error) {
	account, err := accounts.NewAccount(ownerName, address, meterID)
	if err != nil {
		return accounts.Account{}, err
	}
	if err := s.registry.Register(ctx, account); err != nil {
		return accounts.Account{}, err
	}
	s.logger.Printf("accounts: registered meter %s for %s", account.MeterID, account.OwnerName)
	return account, nil
}
