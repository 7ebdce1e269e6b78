package database

import (
	"context"
	"fmt"
	"time"

	"github.com/trogers1052/brokerage-ledger/internal/models"
)

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (name, email, role, kyc_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := db.q().QueryRowContext(ctx, query,
		u.Name, u.Email, u.Role, u.KYCStatus, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		return classify("create user", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, name, email, role, kyc_status, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var u models.User
	err := db.q().QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.Role, &u.KYCStatus, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, classify(fmt.Sprintf("get user %d", id), err)
	}
	return &u, nil
}

// UpdateKYCStatus records a KYC decision
func (db *DB) UpdateKYCStatus(ctx context.Context, id int64, status models.KYCStatus) error {
	result, err := db.q().ExecContext(ctx,
		`UPDATE users SET kyc_status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now())
	if err != nil {
		return classify(fmt.Sprintf("update kyc status for user %d", id), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	return nil
}
