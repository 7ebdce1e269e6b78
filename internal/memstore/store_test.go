package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/brokerage-ledger/internal/models"
	"github.com/trogers1052/brokerage-ledger/internal/repository"
)

func deposit(userID int64, ref string) *models.Transaction {
	tx := &models.Transaction{
		TransactionID: ref,
		UserID:        userID,
		Type:          models.TransactionDeposit,
		Status:        models.TransactionCompleted,
	}
	tx.Amount = decimal.NewFromInt(100)
	return tx
}

func TestWithinUserLock_stagesUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)

	err := s.WithinUserLock(ctx, 1, func(repo repository.Repository) error {
		require.NoError(t, repo.CreateTransaction(ctx, deposit(1, "TXN-1")))

		// visible inside the unit of work
		txs, err := repo.ListTransactionsByUser(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, txs, 1)

		// invisible outside it
		outside, err := s.ListTransactionsByUser(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, outside)
		return nil
	})
	require.NoError(t, err)

	txs, err := s.ListTransactionsByUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestWithinUserLock_rollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	boom := errors.New("boom")

	err := s.WithinUserLock(ctx, 1, func(repo repository.Repository) error {
		require.NoError(t, repo.CreateTransaction(ctx, deposit(1, "TXN-1")))
		require.NoError(t, repo.SaveAccountBalance(ctx, &models.AccountBalance{UserID: 1, CashBalance: decimal.NewFromInt(100)}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	txs, err := s.ListTransactionsByUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, txs)
	_, err = s.GetAccountBalance(ctx, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestWithinUserLock_commitFault(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	s.FailOn(OpCommit, errors.New("fsync"))

	err := s.WithinUserLock(ctx, 1, func(repo repository.Repository) error {
		return repo.CreateTransaction(ctx, deposit(1, "TXN-1"))
	})
	require.Error(t, err)

	s.ClearFaults()
	exists, err := s.TransactionIDExists(ctx, "TXN-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWithinUserLock_timeout(t *testing.T) {
	ctx := context.Background()
	s := New(50 * time.Millisecond)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinUserLock(ctx, 1, func(repository.Repository) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := s.WithinUserLock(ctx, 1, func(repository.Repository) error { return nil })
	assert.ErrorIs(t, err, models.ErrConcurrencyConflict)

	// other users are not blocked
	require.NoError(t, s.WithinUserLock(ctx, 2, func(repository.Repository) error { return nil }))

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, s.WithinUserLock(ctx, 1, func(repository.Repository) error { return nil }))
}

func TestWithinUserLock_contextCancelled(t *testing.T) {
	s := New(time.Second)
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithinUserLock(context.Background(), 1, func(repository.Repository) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.WithinUserLock(ctx, 1, func(repository.Repository) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)

	require.NoError(t, s.CreateTransaction(ctx, deposit(1, "TXN-1")))
	assert.ErrorIs(t, s.CreateTransaction(ctx, deposit(1, "TXN-1")), models.ErrValidation)

	o := &models.Order{OrderNumber: "ORD-1", UserID: 1, Status: models.OrderStatusPending}
	require.NoError(t, s.CreateOrder(ctx, o))
	assert.ErrorIs(t, s.CreateOrder(ctx, &models.Order{OrderNumber: "ORD-1", UserID: 1}), models.ErrValidation)

	exists, err := s.OrderNumberExists(ctx, "ORD-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	o := &models.Order{OrderNumber: "ORD-1", UserID: 1, Status: models.OrderStatusPending}
	require.NoError(t, s.CreateOrder(ctx, o))

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	got.Status = models.OrderStatusExecuted

	again, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, again.Status)
}

func TestListHolders(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	require.NoError(t, s.SavePortfolio(ctx, &models.Portfolio{UserID: 2, CompanyID: 9, SharesOwned: 1}))
	require.NoError(t, s.SavePortfolio(ctx, &models.Portfolio{UserID: 1, CompanyID: 9, SharesOwned: 3}))
	require.NoError(t, s.SavePortfolio(ctx, &models.Portfolio{UserID: 3, CompanyID: 9, SharesOwned: 0}))
	require.NoError(t, s.SavePortfolio(ctx, &models.Portfolio{UserID: 4, CompanyID: 8, SharesOwned: 5}))

	holders, err := s.ListHolders(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, holders)
}

func TestFailOn(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	injected := errors.New("injected")
	s.FailOn("GetStock", injected)

	_, err := s.GetStock(ctx, 1)
	assert.ErrorIs(t, err, injected)

	s.ClearFaults()
	_, err = s.GetStock(ctx, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
