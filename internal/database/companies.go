package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trogers1052/brokerage-ledger/internal/models"
)

const companyColumns = `id, name, symbol, sector, market_cap, active, deleted_at, created_at, updated_at`

func scanCompany(row rowScanner) (*models.Company, error) {
	var c models.Company
	var sector sql.NullString
	var marketCap sql.NullInt64
	var deletedAt sql.NullTime

	err := row.Scan(&c.ID, &c.Name, &c.Symbol, &sector, &marketCap, &c.Active, &deletedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Sector = sector.String
	c.MarketCap = marketCap.Int64
	c.DeletedAt = timePtr(deletedAt)
	return &c, nil
}

// CreateCompany inserts a new company
func (db *DB) CreateCompany(ctx context.Context, c *models.Company) error {
	query := `
		INSERT INTO companies (name, symbol, sector, market_cap, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	marketCap := sql.NullInt64{Int64: c.MarketCap, Valid: c.MarketCap != 0}
	err := db.q().QueryRowContext(ctx, query,
		c.Name, c.Symbol, nullString(c.Sector), marketCap, c.Active, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return classify("create company", err)
	}
	return nil
}

// GetCompany retrieves a company by ID, including soft-deleted ones
func (db *DB) GetCompany(ctx context.Context, id int64) (*models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	c, err := scanCompany(db.q().QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, classify(fmt.Sprintf("get company %d", id), err)
	}
	return c, nil
}

// GetCompanyBySymbol retrieves a live company by ticker
func (db *DB) GetCompanyBySymbol(ctx context.Context, symbol string) (*models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE UPPER(symbol) = UPPER($1) AND deleted_at IS NULL`
	c, err := scanCompany(db.q().QueryRowContext(ctx, query, symbol))
	if err != nil {
		return nil, classify(fmt.Sprintf("get company %s", symbol), err)
	}
	return c, nil
}

// ListCompanies returns every company that is not soft-deleted
func (db *DB) ListCompanies(ctx context.Context) ([]*models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE deleted_at IS NULL ORDER BY symbol ASC`
	rows, err := db.q().QueryContext(ctx, query)
	if err != nil {
		return nil, classify("list companies", err)
	}
	defer rows.Close()

	var companies []*models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, classify("scan company", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list companies", err)
	}
	return companies, nil
}

// SetCompanyActive toggles whether a company accepts orders
func (db *DB) SetCompanyActive(ctx context.Context, id int64, active bool) error {
	result, err := db.q().ExecContext(ctx,
		`UPDATE companies SET active = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`,
		id, active, time.Now())
	if err != nil {
		return classify(fmt.Sprintf("update company %d", id), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("company %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// SoftDeleteCompany marks the company deleted and removes its stock snapshot and price history
func (db *DB) SoftDeleteCompany(ctx context.Context, id int64, at time.Time) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE companies SET deleted_at = $2, active = FALSE, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, at)
	if err != nil {
		return classify(fmt.Sprintf("delete company %d", id), err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("company %d: %w", id, models.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM stocks WHERE company_id = $1`, id); err != nil {
		return classify(fmt.Sprintf("delete stock for company %d", id), err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stock_prices WHERE company_id = $1`, id); err != nil {
		return classify(fmt.Sprintf("delete prices for company %d", id), err)
	}

	if err := tx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

// GetStock retrieves the current price snapshot of a company
func (db *DB) GetStock(ctx context.Context, companyID int64) (*models.Stock, error) {
	query := `
		SELECT id, company_id, current_price, previous_price, day_high, day_low, volume,
			change_amount, change_percent, last_updated
		FROM stocks
		WHERE company_id = $1
	`
	var s models.Stock
	err := db.q().QueryRowContext(ctx, query, companyID).Scan(
		&s.ID, &s.CompanyID, &s.CurrentPrice, &s.PreviousPrice, &s.DayHigh, &s.DayLow, &s.Volume,
		&s.ChangeAmount, &s.ChangePercent, &s.LastUpdated,
	)
	if err != nil {
		return nil, classify(fmt.Sprintf("get stock for company %d", companyID), err)
	}
	return &s, nil
}

// UpsertStock inserts or replaces the price snapshot of a company
func (db *DB) UpsertStock(ctx context.Context, s *models.Stock) error {
	query := `
		INSERT INTO stocks (company_id, current_price, previous_price, day_high, day_low, volume,
			change_amount, change_percent, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (company_id) DO UPDATE SET
			current_price = EXCLUDED.current_price,
			previous_price = EXCLUDED.previous_price,
			day_high = EXCLUDED.day_high,
			day_low = EXCLUDED.day_low,
			volume = EXCLUDED.volume,
			change_amount = EXCLUDED.change_amount,
			change_percent = EXCLUDED.change_percent,
			last_updated = EXCLUDED.last_updated
		RETURNING id
	`
	err := db.q().QueryRowContext(ctx, query,
		s.CompanyID, s.CurrentPrice, s.PreviousPrice, s.DayHigh, s.DayLow, s.Volume,
		s.ChangeAmount, s.ChangePercent, s.LastUpdated,
	).Scan(&s.ID)
	if err != nil {
		return classify("upsert stock", err)
	}
	return nil
}
