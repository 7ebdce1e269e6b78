package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trogers1052/brokerage-ledger/internal/models"
)

const portfolioColumns = `id, user_id, company_id, shares_owned, average_cost, total_invested,
	current_value, unrealized_pnl, realized_pnl, valued_at, created_at, updated_at`

func scanPortfolio(row rowScanner) (*models.Portfolio, error) {
	var p models.Portfolio
	var valuedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.UserID, &p.CompanyID, &p.SharesOwned, &p.AverageCost, &p.TotalInvested,
		&p.CurrentValue, &p.UnrealizedPnl, &p.RealizedPnl, &valuedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ValuedAt = timePtr(valuedAt)
	return &p, nil
}

// GetPortfolio retrieves a user's position in one company
func (db *DB) GetPortfolio(ctx context.Context, userID, companyID int64) (*models.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE user_id = $1 AND company_id = $2`
	p, err := scanPortfolio(db.q().QueryRowContext(ctx, query, userID, companyID))
	if err != nil {
		return nil, classify(fmt.Sprintf("get portfolio for user %d company %d", userID, companyID), err)
	}
	return p, nil
}

// SavePortfolio inserts or updates a position keyed by (user_id, company_id)
func (db *DB) SavePortfolio(ctx context.Context, p *models.Portfolio) error {
	query := `
		INSERT INTO portfolios (user_id, company_id, shares_owned, average_cost, total_invested,
			current_value, unrealized_pnl, realized_pnl, valued_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, company_id) DO UPDATE SET
			shares_owned = EXCLUDED.shares_owned,
			average_cost = EXCLUDED.average_cost,
			total_invested = EXCLUDED.total_invested,
			current_value = EXCLUDED.current_value,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			realized_pnl = EXCLUDED.realized_pnl,
			valued_at = EXCLUDED.valued_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	err := db.q().QueryRowContext(ctx, query,
		p.UserID, p.CompanyID, p.SharesOwned, p.AverageCost, p.TotalInvested,
		p.CurrentValue, p.UnrealizedPnl, p.RealizedPnl, nullTime(p.ValuedAt), p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return classify("save portfolio", err)
	}
	return nil
}

// ListPortfolios returns every position of a user, including closed ones
func (db *DB) ListPortfolios(ctx context.Context, userID int64) ([]*models.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE user_id = $1 ORDER BY company_id ASC`
	rows, err := db.q().QueryContext(ctx, query, userID)
	if err != nil {
		return nil, classify("list portfolios", err)
	}
	defer rows.Close()

	var portfolios []*models.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, classify("scan portfolio", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list portfolios", err)
	}
	return portfolios, nil
}

// ListHolders returns the users holding shares of a company
func (db *DB) ListHolders(ctx context.Context, companyID int64) ([]int64, error) {
	rows, err := db.q().QueryContext(ctx,
		`SELECT user_id FROM portfolios WHERE company_id = $1 AND shares_owned > 0 ORDER BY user_id ASC`, companyID)
	if err != nil {
		return nil, classify("list holders", err)
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, classify("scan holder", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list holders", err)
	}
	return users, nil
}

// GetAccountBalance retrieves the materialized balance of a user
func (db *DB) GetAccountBalance(ctx context.Context, userID int64) (*models.AccountBalance, error) {
	query := `
		SELECT id, user_id, cash_balance, pending_withdrawals, invested_amount,
			total_portfolio_value, total_pnl, updated_at
		FROM account_balances
		WHERE user_id = $1
	`
	var b models.AccountBalance
	err := db.q().QueryRowContext(ctx, query, userID).Scan(
		&b.ID, &b.UserID, &b.CashBalance, &b.PendingWithdrawals, &b.InvestedAmount,
		&b.TotalPortfolioValue, &b.TotalPnl, &b.UpdatedAt,
	)
	if err != nil {
		return nil, classify(fmt.Sprintf("get balance for user %d", userID), err)
	}
	return &b, nil
}

// SaveAccountBalance inserts or replaces the balance row of a user
func (db *DB) SaveAccountBalance(ctx context.Context, b *models.AccountBalance) error {
	query := `
		INSERT INTO account_balances (user_id, cash_balance, pending_withdrawals, invested_amount,
			total_portfolio_value, total_pnl, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			cash_balance = EXCLUDED.cash_balance,
			pending_withdrawals = EXCLUDED.pending_withdrawals,
			invested_amount = EXCLUDED.invested_amount,
			total_portfolio_value = EXCLUDED.total_portfolio_value,
			total_pnl = EXCLUDED.total_pnl,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	err := db.q().QueryRowContext(ctx, query,
		b.UserID, b.CashBalance, b.PendingWithdrawals, b.InvestedAmount,
		b.TotalPortfolioValue, b.TotalPnl, b.UpdatedAt,
	).Scan(&b.ID)
	if err != nil {
		return classify("save account balance", err)
	}
	return nil
}
