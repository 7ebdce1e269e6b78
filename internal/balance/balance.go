// Package balance materializes the per-user AccountBalance from the ledger and the portfolio.
//
// The balance is a cache: it is always rebuilt synchronously inside the same
// unit of work that wrote the ledger entry or position that changed it, and is
// never edited any other way.
package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/brokerage-ledger/internal/models"
	"github.com/trogers1052/brokerage-ledger/internal/portfolio"
	"github.com/trogers1052/brokerage-ledger/internal/repository"
)

// Rebuild folds a user's transactions and positions into an AccountBalance.
// It is a pure function of its inputs.
func Rebuild(userID int64, txs []*models.Transaction, positions []*models.Portfolio) *models.AccountBalance {
	b := &models.AccountBalance{
		UserID:              userID,
		CashBalance:         decimal.Zero,
		PendingWithdrawals:  decimal.Zero,
		InvestedAmount:      decimal.Zero,
		TotalPortfolioValue: decimal.Zero,
		TotalPnl:            decimal.Zero,
	}

	for _, tx := range txs {
		if tx.UserID != userID {
			continue
		}
		b.CashBalance = b.CashBalance.Add(models.SignedCashEffect(tx))
		if tx.Type == models.TransactionWithdrawal && tx.Status == models.TransactionPending {
			b.PendingWithdrawals = b.PendingWithdrawals.Add(models.EffectiveAmount(tx))
		}
	}

	for _, p := range positions {
		if p.UserID != userID {
			continue
		}
		b.InvestedAmount = b.InvestedAmount.Add(p.TotalInvested)
		b.TotalPortfolioValue = b.TotalPortfolioValue.Add(p.CurrentValue)
		b.TotalPnl = b.TotalPnl.Add(portfolio.TotalPnl(p))
	}

	return b
}

// Reconciler rebuilds and persists balances through a repository
type Reconciler struct {
	log zerolog.Logger
	now func() time.Time
}

// NewReconciler creates a Reconciler
func NewReconciler(log zerolog.Logger) *Reconciler {
	return &Reconciler{
		log: log.With().Str("component", "balance").Logger(),
		now: time.Now,
	}
}

// Reconcile rebuilds the user's balance from repo and saves it. Callers run it
// inside the unit of work that produced the change.
func (r *Reconciler) Reconcile(ctx context.Context, repo repository.Repository, userID int64) (*models.AccountBalance, error) {
	txs, err := repo.ListTransactionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for user %d: %w", userID, err)
	}
	positions, err := repo.ListPortfolios(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio for user %d: %w", userID, err)
	}

	b := Rebuild(userID, txs, positions)
	if existing, err := repo.GetAccountBalance(ctx, userID); err == nil {
		b.ID = existing.ID
	}
	b.UpdatedAt = r.now()

	if err := repo.SaveAccountBalance(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save balance for user %d: %w", userID, err)
	}

	r.log.Debug().
		Int64("user_id", userID).
		Str("cash_balance", b.CashBalance.String()).
		Str("total_portfolio_value", b.TotalPortfolioValue.String()).
		Msg("Rebuilt account balance")
	return b, nil
}

// Service exposes balance reads and explicit rebuilds
type Service struct {
	store      repository.Store
	reconciler *Reconciler
}

// NewService creates a balance Service
func NewService(store repository.Store, reconciler *Reconciler) *Service {
	return &Service{store: store, reconciler: reconciler}
}

// Rebuild recomputes the user's balance under the user's lock
func (s *Service) Rebuild(ctx context.Context, userID int64) (*models.AccountBalance, error) {
	var out *models.AccountBalance
	err := s.store.WithinUserLock(ctx, userID, func(repo repository.Repository) error {
		b, err := s.reconciler.Reconcile(ctx, repo, userID)
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the stored balance, or an empty one for a user with no activity
func (s *Service) Get(ctx context.Context, userID int64) (*models.AccountBalance, error) {
	b, err := s.store.GetAccountBalance(ctx, userID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	return Rebuild(userID, nil, nil), nil
}

// TotalAccountValue is cash_balance + total_portfolio_value
func (s *Service) TotalAccountValue(ctx context.Context, userID int64) (decimal.Decimal, error) {
	b, err := s.Get(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return b.TotalAccountValue(), nil
}
