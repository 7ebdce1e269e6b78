package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// ledgerTables in child-first order
var ledgerTables = []string{
	"account_balances",
	"portfolios",
	"transactions",
	"orders",
	"stock_prices",
	"stocks",
	"companies",
	"users",
}

// testStore is a migrated Store backed by a throwaway Postgres container.
type testStore struct {
	*DB
}

// setupTestStore starts Postgres, applies the ledger schema and registers
// teardown with t.Cleanup.
func setupTestStore(t *testing.T) *testStore {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := New(connStr)
	if err != nil {
		t.Fatalf("failed to connect to ledger database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(migrationsDir()); err != nil {
		t.Fatalf("failed to migrate ledger schema: %v", err)
	}
	return &testStore{DB: db}
}

func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "db", "migrations")
}

// reset empties every ledger table and restarts the id sequences.
func (s *testStore) reset(t *testing.T) {
	t.Helper()
	stmt := "TRUNCATE TABLE " + strings.Join(ledgerTables, ", ") + " RESTART IDENTITY CASCADE"
	if _, err := s.conn.Exec(stmt); err != nil {
		t.Fatalf("failed to reset ledger tables: %v", err)
	}
}

func (s *testStore) raw() *sql.DB {
	return s.conn
}
