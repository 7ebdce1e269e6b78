package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/trogers1052/brokerage-ledger/internal/models"
)

const transactionColumns = `id, transaction_id, user_id, order_id, type, status, amount, adjusted_amount, fees,
	description, comments, admin_notes, metadata, processed_by, processed_at, created_at, updated_at`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var orderID, processedBy sql.NullInt64
	var processedAt sql.NullTime
	var description, comments, adminNotes sql.NullString
	var metadata []byte

	err := row.Scan(
		&tx.ID, &tx.TransactionID, &tx.UserID, &orderID, &tx.Type, &tx.Status, &tx.Amount, &tx.AdjustedAmount, &tx.Fees,
		&description, &comments, &adminNotes, &metadata, &processedBy, &processedAt, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.OrderID = int64Ptr(orderID)
	tx.ProcessedBy = int64Ptr(processedBy)
	tx.ProcessedAt = timePtr(processedAt)
	tx.Description = description.String
	tx.Comments = comments.String
	tx.AdminNotes = adminNotes.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		if len(tx.Metadata) == 0 {
			tx.Metadata = nil
		}
	}
	return &tx, nil
}

func encodeMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// CreateTransaction inserts a new ledger entry
func (db *DB) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	metadata, err := encodeMetadata(tx.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO transactions (transaction_id, user_id, order_id, type, status, amount, adjusted_amount, fees,
			description, comments, admin_notes, metadata, processed_by, processed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`
	err = db.q().QueryRowContext(ctx, query,
		tx.TransactionID, tx.UserID, nullInt64(tx.OrderID), tx.Type, tx.Status, tx.Amount, tx.AdjustedAmount, tx.Fees,
		nullString(tx.Description), nullString(tx.Comments), nullString(tx.AdminNotes), metadata,
		nullInt64(tx.ProcessedBy), nullTime(tx.ProcessedAt), tx.CreatedAt, tx.UpdatedAt,
	).Scan(&tx.ID)
	if err != nil {
		return classify("create transaction", err)
	}
	return nil
}

// GetTransaction retrieves a ledger entry by ID
func (db *DB) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if db.tx != nil {
		query += ` FOR UPDATE`
	}
	tx, err := scanTransaction(db.q().QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, classify(fmt.Sprintf("get transaction %d", id), err)
	}
	return tx, nil
}

// TransactionIDExists reports whether a transaction reference is taken
func (db *DB) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	var exists bool
	err := db.q().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE transaction_id = $1)`, transactionID,
	).Scan(&exists)
	if err != nil {
		return false, classify("check transaction id", err)
	}
	return exists, nil
}

// UpdateTransaction writes status, override, notes and processor fields
func (db *DB) UpdateTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `
		UPDATE transactions SET
			status = $2,
			adjusted_amount = $3,
			comments = $4,
			admin_notes = $5,
			processed_by = $6,
			processed_at = $7,
			updated_at = $8
		WHERE id = $1
	`
	result, err := db.q().ExecContext(ctx, query,
		tx.ID, tx.Status, tx.AdjustedAmount, nullString(tx.Comments), nullString(tx.AdminNotes),
		nullInt64(tx.ProcessedBy), nullTime(tx.ProcessedAt), tx.UpdatedAt,
	)
	if err != nil {
		return classify(fmt.Sprintf("update transaction %d", tx.ID), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %d: %w", tx.ID, models.ErrNotFound)
	}
	return nil
}

// ListTransactionsByUser returns every ledger entry of a user in insertion order
func (db *DB) ListTransactionsByUser(ctx context.Context, userID int64) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1 ORDER BY id ASC`
	rows, err := db.q().QueryContext(ctx, query, userID)
	if err != nil {
		return nil, classify("list transactions", err)
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, classify("scan transaction", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list transactions", err)
	}
	return txs, nil
}
