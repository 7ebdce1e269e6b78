package database

import (
	"context"
	"fmt"
	"time"

	"github.com/trogers1052/brokerage-ledger/internal/models"
)

// UpsertStockPrice inserts or replaces the daily bar for (company_id, date)
func (db *DB) UpsertStockPrice(ctx context.Context, p *models.StockPrice) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.Date = models.TradingDay(p.Date)

	query := `
		INSERT INTO stock_prices (company_id, date, open, high, low, close, volume, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (company_id, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
		RETURNING id
	`
	err := db.q().QueryRowContext(ctx, query,
		p.CompanyID, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return classify("upsert stock price", err)
	}
	return nil
}

// GetStockPrice retrieves the daily bar of a company for one trading day
func (db *DB) GetStockPrice(ctx context.Context, companyID int64, day time.Time) (*models.StockPrice, error) {
	query := `
		SELECT id, company_id, date, open, high, low, close, volume, created_at
		FROM stock_prices
		WHERE company_id = $1 AND date = $2
	`
	var p models.StockPrice
	err := db.q().QueryRowContext(ctx, query, companyID, models.TradingDay(day)).Scan(
		&p.ID, &p.CompanyID, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume, &p.CreatedAt,
	)
	if err != nil {
		return nil, classify(fmt.Sprintf("get price for company %d on %s", companyID, day.Format("2006-01-02")), err)
	}
	p.Date = models.TradingDay(p.Date)
	return &p, nil
}

// ListStockPrices retrieves the daily bars of a company within a date range, oldest first
func (db *DB) ListStockPrices(ctx context.Context, companyID int64, from, to time.Time) ([]*models.StockPrice, error) {
	query := `
		SELECT id, company_id, date, open, high, low, close, volume, created_at
		FROM stock_prices
		WHERE company_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`
	rows, err := db.q().QueryContext(ctx, query, companyID, models.TradingDay(from), models.TradingDay(to))
	if err != nil {
		return nil, classify("list stock prices", err)
	}
	defer rows.Close()

	var prices []*models.StockPrice
	for rows.Next() {
		var p models.StockPrice
		err := rows.Scan(&p.ID, &p.CompanyID, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume, &p.CreatedAt)
		if err != nil {
			return nil, classify("scan stock price", err)
		}
		p.Date = models.TradingDay(p.Date)
		prices = append(prices, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list stock prices", err)
	}
	return prices, nil
}
