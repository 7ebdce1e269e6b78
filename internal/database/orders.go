package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trogers1052/brokerage-ledger/internal/models"
)

const orderColumns = `id, order_number, user_id, company_id, type, quantity, price_per_share, total_amount,
	status, approved_by, approved_at, executed_by, executed_at, cancelled_by, cancelled_at,
	notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var approvedBy, executedBy, cancelledBy sql.NullInt64
	var approvedAt, executedAt, cancelledAt sql.NullTime
	var notes sql.NullString

	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.CompanyID, &o.Type, &o.Quantity, &o.PricePerShare, &o.TotalAmount,
		&o.Status, &approvedBy, &approvedAt, &executedBy, &executedAt, &cancelledBy, &cancelledAt,
		&notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.ApprovedBy = int64Ptr(approvedBy)
	o.ApprovedAt = timePtr(approvedAt)
	o.ExecutedBy = int64Ptr(executedBy)
	o.ExecutedAt = timePtr(executedAt)
	o.CancelledBy = int64Ptr(cancelledBy)
	o.CancelledAt = timePtr(cancelledAt)
	o.Notes = notes.String
	return &o, nil
}

// CreateOrder inserts a new order
func (db *DB) CreateOrder(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO orders (order_number, user_id, company_id, type, quantity, price_per_share, total_amount,
			status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err := db.q().QueryRowContext(ctx, query,
		o.OrderNumber, o.UserID, o.CompanyID, o.Type, o.Quantity, o.PricePerShare, o.TotalAmount,
		o.Status, nullString(o.Notes), o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return classify("create order", err)
	}
	return nil
}

// GetOrder retrieves an order by ID
func (db *DB) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if db.tx != nil {
		query += ` FOR UPDATE`
	}
	o, err := scanOrder(db.q().QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, classify(fmt.Sprintf("get order %d", id), err)
	}
	return o, nil
}

// GetOrderByNumber retrieves an order by its external reference
func (db *DB) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	o, err := scanOrder(db.q().QueryRowContext(ctx, query, number))
	if err != nil {
		return nil, classify(fmt.Sprintf("get order %s", number), err)
	}
	return o, nil
}

// OrderNumberExists reports whether an order number is taken
func (db *DB) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := db.q().QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, classify("check order number", err)
	}
	return exists, nil
}

// UpdateOrderStatus writes the status and the approval, execution and cancellation stamps
func (db *DB) UpdateOrderStatus(ctx context.Context, o *models.Order) error {
	query := `
		UPDATE orders SET
			status = $2,
			approved_by = $3, approved_at = $4,
			executed_by = $5, executed_at = $6,
			cancelled_by = $7, cancelled_at = $8,
			notes = $9,
			updated_at = $10
		WHERE id = $1
	`
	result, err := db.q().ExecContext(ctx, query,
		o.ID, o.Status,
		nullInt64(o.ApprovedBy), nullTime(o.ApprovedAt),
		nullInt64(o.ExecutedBy), nullTime(o.ExecutedAt),
		nullInt64(o.CancelledBy), nullTime(o.CancelledAt),
		nullString(o.Notes), o.UpdatedAt,
	)
	if err != nil {
		return classify(fmt.Sprintf("update order %d", o.ID), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("order %d: %w", o.ID, models.ErrNotFound)
	}
	return nil
}

// ListOrdersByUser returns a user's orders, optionally filtered by status, oldest first
func (db *DB) ListOrdersByUser(ctx context.Context, userID int64, status *models.OrderStatus) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`
	args := []any{userID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY id ASC`

	rows, err := db.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list orders", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, classify("scan order", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list orders", err)
	}
	return orders, nil
}
