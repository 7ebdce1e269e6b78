// Package portfolio maintains per-position cost basis and mark-to-market value.
package portfolio

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/brokerage-ledger/internal/models"
)

// AverageCostPlaces is the precision average_cost is stored with
const AverageCostPlaces = 8

// PercentPlaces is the precision of derived percentages
const PercentPlaces = 4

var hundred = decimal.NewFromInt(100)

// NewPosition returns an empty position for (userID, companyID)
func NewPosition(userID, companyID int64, now time.Time) *models.Portfolio {
	return &models.Portfolio{
		UserID:        userID,
		CompanyID:     companyID,
		AverageCost:   decimal.Zero,
		TotalInvested: decimal.Zero,
		CurrentValue:  decimal.Zero,
		UnrealizedPnl: decimal.Zero,
		RealizedPnl:   decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ApplyBuy adds qty shares bought at price using a running weighted average:
// new_avg = (old_shares*old_avg + qty*price) / (old_shares + qty)
func ApplyBuy(p *models.Portfolio, qty int64, price decimal.Decimal) error {
	if qty <= 0 {
		return models.NewValidationError("quantity", "must be positive")
	}
	if !price.IsPositive() {
		return models.NewValidationError("price", "must be positive")
	}

	oldShares := decimal.NewFromInt(p.SharesOwned)
	q := decimal.NewFromInt(qty)
	cost := q.Mul(price)
	newShares := oldShares.Add(q)

	p.AverageCost = oldShares.Mul(p.AverageCost).Add(cost).DivRound(newShares, AverageCostPlaces)
	p.SharesOwned += qty
	p.TotalInvested = p.TotalInvested.Add(cost)
	return nil
}

// ApplySell removes qty shares sold at price and returns the P&L realized on them.
// average_cost is left unchanged, including on a full close.
func ApplySell(p *models.Portfolio, qty int64, price decimal.Decimal) (decimal.Decimal, error) {
	if qty <= 0 {
		return decimal.Zero, models.NewValidationError("quantity", "must be positive")
	}
	if !price.IsPositive() {
		return decimal.Zero, models.NewValidationError("price", "must be positive")
	}
	if qty > p.SharesOwned {
		return decimal.Zero, fmt.Errorf("%w: selling %d of %d shares", models.ErrInsufficientShares, qty, p.SharesOwned)
	}

	q := decimal.NewFromInt(qty)
	realized := q.Mul(price.Sub(p.AverageCost))

	if qty == p.SharesOwned {
		p.TotalInvested = decimal.Zero
	} else {
		reduction := p.TotalInvested.Mul(q).Div(decimal.NewFromInt(p.SharesOwned))
		p.TotalInvested = p.TotalInvested.Sub(reduction)
	}
	p.SharesOwned -= qty
	p.RealizedPnl = p.RealizedPnl.Add(realized)
	return realized, nil
}

// Recompute marks the position to market at currentPrice. It never fetches a price.
func Recompute(p *models.Portfolio, currentPrice decimal.Decimal, at time.Time) {
	p.CurrentValue = decimal.NewFromInt(p.SharesOwned).Mul(currentPrice)
	p.UnrealizedPnl = p.CurrentValue.Sub(p.TotalInvested)
	p.ValuedAt = &at
	p.UpdatedAt = at
}

// TotalPnl is unrealized plus realized P&L
func TotalPnl(p *models.Portfolio) decimal.Decimal {
	return p.UnrealizedPnl.Add(p.RealizedPnl)
}

// PnlPercentage is TotalPnl relative to total_invested; zero when nothing is invested
func PnlPercentage(p *models.Portfolio) decimal.Decimal {
	if p.TotalInvested.IsZero() {
		return decimal.Zero
	}
	return TotalPnl(p).Div(p.TotalInvested).Mul(hundred).Round(PercentPlaces)
}
