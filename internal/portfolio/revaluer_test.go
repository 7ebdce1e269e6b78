package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/brokerage-ledger/internal/events"
	"github.com/trogers1052/brokerage-ledger/internal/memstore"
	"github.com/trogers1052/brokerage-ledger/internal/models"
	"github.com/trogers1052/brokerage-ledger/internal/repository"
)

type fakePrices map[int64]decimal.Decimal

func (f fakePrices) CurrentPrice(_ context.Context, companyID int64) (decimal.Decimal, error) {
	p, ok := f[companyID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: company %d", models.ErrPriceUnavailable, companyID)
	}
	return p, nil
}

type countingReconciler struct {
	mu    sync.Mutex
	users []int64
}

func (r *countingReconciler) Reconcile(ctx context.Context, repo repository.Repository, userID int64) (*models.AccountBalance, error) {
	r.mu.Lock()
	r.users = append(r.users, userID)
	r.mu.Unlock()

	b := &models.AccountBalance{UserID: userID}
	positions, err := repo.ListPortfolios(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, p := range positions {
		b.TotalPortfolioValue = b.TotalPortfolioValue.Add(p.CurrentValue)
	}
	return b, repo.SaveAccountBalance(ctx, b)
}

func seedPosition(t *testing.T, store *memstore.Store, userID, companyID, shares int64, cost string) {
	t.Helper()
	p := NewPosition(userID, companyID, time.Now())
	require.NoError(t, ApplyBuy(p, shares, d(cost)))
	Recompute(p, d(cost), time.Now())
	require.NoError(t, store.WithinUserLock(context.Background(), userID, func(repo repository.Repository) error {
		return repo.SavePortfolio(context.Background(), p)
	}))
}

func TestRevaluer_RevalueCompany(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(time.Second)
	seedPosition(t, store, 1, 10, 10, "50")
	seedPosition(t, store, 2, 10, 4, "60")
	seedPosition(t, store, 2, 11, 1, "5")

	reconciler := &countingReconciler{}
	recorder := events.NewRecorder()
	rv := NewRevaluer(store, fakePrices{10: d("75")}, reconciler, recorder, zerolog.Nop())

	n, err := rv.RevalueCompany(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []int64{1, 2}, reconciler.users)

	p, err := store.GetPortfolio(ctx, 1, 10)
	require.NoError(t, err)
	assertDecimal(t, "750", p.CurrentValue, "current_value")
	assertDecimal(t, "250", p.UnrealizedPnl, "unrealized_pnl")

	// the other company is untouched
	other, err := store.GetPortfolio(ctx, 2, 11)
	require.NoError(t, err)
	assertDecimal(t, "5", other.CurrentValue, "current_value")

	bal, err := store.GetAccountBalance(ctx, 2)
	require.NoError(t, err)
	assertDecimal(t, "305", bal.TotalPortfolioValue, "total_portfolio_value")

	assert.Equal(t, []string{models.EventPortfolioRevalued, models.EventPortfolioRevalued}, recorder.Types())
}

func TestRevaluer_RevalueCompany_noPrice(t *testing.T) {
	store := memstore.New(time.Second)
	seedPosition(t, store, 1, 10, 10, "50")

	rv := NewRevaluer(store, fakePrices{}, &countingReconciler{}, nil, zerolog.Nop())
	_, err := rv.RevalueCompany(context.Background(), 10)
	assert.ErrorIs(t, err, models.ErrPriceUnavailable)
}

func TestRevaluer_RevalueUser_skipsUnpricedPositions(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(time.Second)
	seedPosition(t, store, 1, 10, 10, "50")
	seedPosition(t, store, 1, 11, 2, "30")

	rv := NewRevaluer(store, fakePrices{11: d("40")}, &countingReconciler{}, nil, zerolog.Nop())
	require.NoError(t, rv.RevalueUser(ctx, 1))

	priced, err := store.GetPortfolio(ctx, 1, 11)
	require.NoError(t, err)
	assertDecimal(t, "80", priced.CurrentValue, "current_value")

	unpriced, err := store.GetPortfolio(ctx, 1, 10)
	require.NoError(t, err)
	assertDecimal(t, "500", unpriced.CurrentValue, "current_value")
}

func TestRevaluer_rollsBackOnBalanceFailure(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(time.Second)
	seedPosition(t, store, 1, 10, 10, "50")
	store.FailOn("SaveAccountBalance", errors.New("disk full"))

	rv := NewRevaluer(store, fakePrices{10: d("99")}, &countingReconciler{}, nil, zerolog.Nop())
	_, err := rv.RevalueCompany(ctx, 10)
	require.Error(t, err)

	p, err := store.GetPortfolio(ctx, 1, 10)
	require.NoError(t, err)
	assertDecimal(t, "500", p.CurrentValue, "current_value")
}
