// Package postgres persists accounts in Postgres.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	accounts "metering-cloud/internal/accounts/domain"
)

const defaultAccountsTable = "accounts"

// DBTX abstracts *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AccountRepository is a Postgres implementation of the account registry.
type AccountRepository struct {
	db    DBTX
	table string
}

// AccountOption configures the repository.
type AccountOption func(*AccountRepository)

// WithAccountsTable overrides the default table name.
func WithAccountsTable(table string) AccountOption {
	return func(repo *AccountRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewAccountRepository constructs a repository.
func NewAccountRepository(db DBTX, opts ...AccountOption) *AccountRepository {
	repo := &AccountRepository{db: db, table: defaultAccountsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Register inserts the account; a second account for the same meter is
// rejected with ErrDuplicateMeter.
func (r *AccountRepository) Register(ctx context.Context, account accounts.Account) error {
	if r == nil || r.db == nil {
		return errors.New("account repo: nil db")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, owner_name, address, meter_id, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (meter_id) DO NOTHING`, r.table)

	result, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.OwnerName,
		account.Address,
		account.MeterID,
		account.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return accounts.ErrDuplicateMeter
	}
	return nil
}

// FindByMeter loads the account owning the meter, nil when absent.
func (r *AccountRepository) FindByMeter(ctx context.Context, meterID string) (*accounts.Account, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("account repo: nil db")
	}
	if meterID == "" {
		return nil, accounts.ErrEmptyMeterID
	}

	query := fmt.Sprintf(`
SELECT id, owner_name, address, meter_id, created_at
FROM %s
WHERE meter_id = $1
LIMIT 1`, r.table)

	var account accounts.Account
	if err := r.db.QueryRowContext(ctx, query, meterID).Scan(
		&account.ID,
		&account.OwnerName,
		&account.Address,
		&account.MeterID,
		&account.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	account.CreatedAt = account.CreatedAt.UTC()
	return &account, nil
}

// IsRegistered reports whether the meter has an account.
func (r *AccountRepository) IsRegistered(ctx context.Context, meterID string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("account repo: nil db")
	}
	if meterID == "" {
		return false, nil
	}

	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE meter_id = $1)`, r.table)

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, meterID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Meters lists all registered meter ids.
func (r *AccountRepository) Meters(ctx context.Context) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("account repo: nil db")
	}

	query := fmt.Sprintf(`SELECT meter_id FROM %s ORDER BY meter_id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meters []string
	for rows.Next() {
		var meterID string
		if err := rows.Scan(&meterID); err != nil {
			return nil, err
		}
		meters = append(meters, meterID)
	}
	return meters, rows.Err()
}
