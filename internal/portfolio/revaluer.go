package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/brokerage-ledger/internal/events"
	"github.com/trogers1052/brokerage-ledger/internal/models"
	"github.com/trogers1052/brokerage-ledger/internal/repository"
)

// PriceSource supplies the latest known price of a company
type PriceSource interface {
	CurrentPrice(ctx context.Context, companyID int64) (decimal.Decimal, error)
}

// BalanceReconciler rebuilds a user's AccountBalance inside a unit of work
type BalanceReconciler interface {
	Reconcile(ctx context.Context, repo repository.Repository, userID int64) (*models.AccountBalance, error)
}

// Revaluer marks positions to market after a price refresh
type Revaluer struct {
	store      repository.Store
	prices     PriceSource
	reconciler BalanceReconciler
	publisher  events.Publisher
	log        zerolog.Logger
	now        func() time.Time
}

// NewRevaluer creates a Revaluer
func NewRevaluer(store repository.Store, prices PriceSource, reconciler BalanceReconciler, publisher events.Publisher, log zerolog.Logger) *Revaluer {
	return &Revaluer{
		store:      store,
		prices:     prices,
		reconciler: reconciler,
		publisher:  publisher,
		log:        log.With().Str("component", "revaluer").Logger(),
		now:        time.Now,
	}
}

// RevalueCompany refreshes every position held in companyID, one user lock at a time.
// It returns the number of users revalued.
func (r *Revaluer) RevalueCompany(ctx context.Context, companyID int64) (int, error) {
	price, err := r.prices.CurrentPrice(ctx, companyID)
	if err != nil {
		return 0, fmt.Errorf("failed to get price for company %d: %w", companyID, err)
	}

	holders, err := r.store.ListHolders(ctx, companyID)
	if err != nil {
		return 0, fmt.Errorf("failed to list holders of company %d: %w", companyID, err)
	}

	revalued := 0
	for _, userID := range holders {
		if err := r.revalue(ctx, userID, map[int64]decimal.Decimal{companyID: price}); err != nil {
			return revalued, err
		}
		revalued++
	}

	r.log.Info().
		Int64("company_id", companyID).
		Str("price", price.String()).
		Int("users", revalued).
		Msg("Revalued positions")
	return revalued, nil
}

// RevalueUser refreshes every position of userID from the latest prices.
// Positions in companies without a known price keep their cached value.
func (r *Revaluer) RevalueUser(ctx context.Context, userID int64) error {
	positions, err := r.store.ListPortfolios(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list portfolio for user %d: %w", userID, err)
	}

	prices := make(map[int64]decimal.Decimal, len(positions))
	for _, p := range positions {
		price, err := r.prices.CurrentPrice(ctx, p.CompanyID)
		if errors.Is(err, models.ErrPriceUnavailable) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to get price for company %d: %w", p.CompanyID, err)
		}
		prices[p.CompanyID] = price
	}
	return r.revalue(ctx, userID, prices)
}

func (r *Revaluer) revalue(ctx context.Context, userID int64, prices map[int64]decimal.Decimal) error {
	var evs []models.DomainEvent
	err := r.store.WithinUserLock(ctx, userID, func(repo repository.Repository) error {
		evs = evs[:0]
		positions, err := repo.ListPortfolios(ctx, userID)
		if err != nil {
			return err
		}
		now := r.now()
		for _, p := range positions {
			price, ok := prices[p.CompanyID]
			if !ok {
				continue
			}
			before := p.Clone()
			Recompute(p, price, now)
			if err := repo.SavePortfolio(ctx, p); err != nil {
				return err
			}
			evs = append(evs, models.DomainEvent{
				EventType:  models.EventPortfolioRevalued,
				UserID:     userID,
				EntityType: "portfolio",
				EntityID:   strconv.FormatInt(p.ID, 10),
				Before:     before,
				After:      p.Clone(),
				Timestamp:  now,
			})
		}
		_, err = r.reconciler.Reconcile(ctx, repo, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to revalue user %d: %w", userID, err)
	}

	events.Emit(ctx, r.log, r.publisher, evs...)
	return nil
}
