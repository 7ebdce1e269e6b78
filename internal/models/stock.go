package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Company is a listed issuer in the stock catalog
type Company struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Symbol    string     `json:"symbol"`
	Sector    string     `json:"sector,omitempty"`
	MarketCap int64      `json:"market_cap,omitempty"`
	Active    bool       `json:"active"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Tradable reports whether orders may be placed against the company
func (c *Company) Tradable() bool {
	return c.Active && c.DeletedAt == nil
}

// Stock is the latest known price snapshot of a company
type Stock struct {
	ID            int64           `json:"id"`
	CompanyID     int64           `json:"company_id"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	DayHigh       decimal.Decimal `json:"day_high"`
	DayLow        decimal.Decimal `json:"day_low"`
	Volume        int64           `json:"volume"`
	ChangeAmount  decimal.Decimal `json:"change_amount"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	LastUpdated   time.Time       `json:"last_updated"`
}

// PriceQuote is a single observation delivered by the price feed
type PriceQuote struct {
	CompanyID int64           `json:"company_id"`
	Symbol    string          `json:"symbol,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Volume    int64           `json:"volume"`
	At        time.Time       `json:"at"`
}

// PriceEvent represents a Kafka message from the price feed
type PriceEvent struct {
	EventType string     `json:"event_type"`
	Source    string     `json:"source"`
	Quote     PriceQuote `json:"quote"`
}

// PriceEventUpdated is the only price feed event type the consumer applies
const PriceEventUpdated = "PRICE_UPDATED"
