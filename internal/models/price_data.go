package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockPrice is one point of a company's daily price history.
// There is at most one row per company per calendar day.
type StockPrice struct {
	ID        int64           `json:"id"`
	CompanyID int64           `json:"company_id"`
	Date      time.Time       `json:"date"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	CreatedAt time.Time       `json:"created_at"`
}

// TradingDay truncates t to its UTC calendar day
func TradingDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
