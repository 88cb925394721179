package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	accounts "metering-cloud/internal/accounts/domain"
	"metering-cloud/internal/accounts/infrastructure/postgres"
)

func TestAccountRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "accounts") {
		t.Skip("missing accounts table; run migrations")
	}

	ctx := context.Background()
	repo := postgres.NewAccountRepository(db)

	meterID := fmt.Sprintf("it-%d", time.Now().UnixNano())
	account, err := accounts.NewAccount("Integration Test", "Nowhere 1", meterID)
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	if err := repo.Register(ctx, account); err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, "DELETE FROM accounts WHERE meter_id = $1", meterID)
	})

	registered, err := repo.IsRegistered(ctx, meterID)
	if err != nil || !registered {
		t.Fatalf("is registered = %v, %v", registered, err)
	}

	found, err := repo.FindByMeter(ctx, meterID)
	if err != nil {
		t.Fatalf("find by meter: %v", err)
	}
	if found == nil || found.ID != account.ID {
		t.Fatalf("found = %+v, want id %s", found, account.ID)
	}

	dup, err := accounts.NewAccount("Someone Else", "Nowhere 2", meterID)
	if err != nil {
		t.Fatalf("new duplicate account: %v", err)
	}
	if err := repo.Register(ctx, dup); !errors.Is(err, accounts.ErrDuplicateMeter) {
		t.Fatalf("expected ErrDuplicateMeter, got %v", err)
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow("SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
	return err == nil && exists
}
