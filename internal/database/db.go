// Package database is the Postgres implementation of repository.Store.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	"github.com/trogers1052/brokerage-ledger/internal/models"
	"github.com/trogers1052/brokerage-ledger/internal/repository"
)

// Postgres error codes the store translates
const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeForeignKeyViolation  = "23503"
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps the Postgres connection. Inside a unit of work tx is set and every
// query runs in that transaction.
type DB struct {
	conn        *sql.DB
	tx          *sql.Tx
	lockTimeout time.Duration
}

var _ repository.Store = (*DB)(nil)

// New opens and pings a Postgres connection
func New(connStr string) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn, lockTimeout: 5 * time.Second}, nil
}

// SetLockTimeout bounds how long WithinUserLock waits for a user's lock
func (db *DB) SetLockTimeout(d time.Duration) {
	if d > 0 {
		db.lockTimeout = d
	}
}

// Close closes the underlying connection pool
func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate applies every pending migration found under migrationsPath
func (db *DB) Migrate(migrationsPath string) error {
	driver, err := postgres.WithInstance(db.conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (db *DB) q() querier {
	if db.tx != nil {
		return db.tx
	}
	return db.conn
}

// WithinUserLock runs fn in one database transaction holding a transaction-scoped
// advisory lock keyed by userID.
func (db *DB) WithinUserLock(ctx context.Context, userID int64, fn func(repo repository.Repository) error) error {
	if db.tx != nil {
		return fmt.Errorf("nested unit of work for user %d: %w", userID, models.ErrPersistence)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", db.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, timeout); err != nil {
		return classify("set lock timeout", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
		return classify(fmt.Sprintf("lock user %d", userID), err)
	}

	if err := fn(&DB{conn: db.conn, tx: tx, lockTimeout: db.lockTimeout}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	committed = true
	return nil
}

// classify maps driver errors onto the ledger's error taxonomy
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure:
			return fmt.Errorf("failed to %s: %w: %s", op, models.ErrConcurrencyConflict, pqErr.Message)
		case codeUniqueViolation:
			return &models.ValidationError{Field: pqErr.Constraint, Reason: "already exists"}
		case codeCheckViolation, codeForeignKeyViolation:
			return &models.ValidationError{Field: pqErr.Constraint, Reason: pqErr.Message}
		}
	}
	return fmt.Errorf("failed to %s: %w: %w", op, models.ErrPersistence, err)
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}
