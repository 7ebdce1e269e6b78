package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio is a user's position in one company.
// CurrentValue and UnrealizedPnl are a cache refreshed by explicit revaluation.
type Portfolio struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	CompanyID     int64           `json:"company_id"`
	SharesOwned   int64           `json:"shares_owned"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnl   decimal.Decimal `json:"realized_pnl"`
	ValuedAt      *time.Time      `json:"valued_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Clone returns a deep copy suitable for before/after snapshots
func (p *Portfolio) Clone() *Portfolio {
	if p == nil {
		return nil
	}
	c := *p
	c.ValuedAt = cloneTime(p.ValuedAt)
	return &c
}

// AccountBalance is the per-user materialized aggregate of the ledger and portfolio.
// It is only ever written by a rebuild.
type AccountBalance struct {
	ID                  int64           `json:"id"`
	UserID              int64           `json:"user_id"`
	CashBalance         decimal.Decimal `json:"cash_balance"`
	PendingWithdrawals  decimal.Decimal `json:"pending_withdrawals"`
	InvestedAmount      decimal.Decimal `json:"invested_amount"`
	TotalPortfolioValue decimal.Decimal `json:"total_portfolio_value"`
	TotalPnl            decimal.Decimal `json:"total_pnl"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// AvailableCash is the cash that may be committed to new buys or withdrawals
func (b *AccountBalance) AvailableCash() decimal.Decimal {
	return b.CashBalance.Sub(b.PendingWithdrawals)
}

// TotalAccountValue is cash plus marked-to-market holdings
func (b *AccountBalance) TotalAccountValue() decimal.Decimal {
	return b.CashBalance.Add(b.TotalPortfolioValue)
}

// Clone returns a copy suitable for before/after snapshots
func (b *AccountBalance) Clone() *AccountBalance {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}
