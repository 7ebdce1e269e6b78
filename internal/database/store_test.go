package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/brokerage-ledger/internal/models"
	"github.com/trogers1052/brokerage-ledger/internal/repository"
)

func seedUser(t *testing.T, db *DB, email string) *models.User {
	t.Helper()
	now := time.Now()
	u := &models.User{Name: "Test User", Email: email, Role: models.RoleClient, KYCStatus: models.KYCApproved, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func seedCompany(t *testing.T, db *DB, symbol string) *models.Company {
	t.Helper()
	now := time.Now()
	c := &models.Company{Name: symbol + " Inc", Symbol: symbol, Sector: "Technology", Active: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.CreateCompany(context.Background(), c))
	return c
}

func newOrder(userID, companyID int64, number string) *models.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Order{
		OrderNumber:   number,
		UserID:        userID,
		CompanyID:     companyID,
		Type:          models.OrderTypeBuy,
		Quantity:      10,
		PricePerShare: decimal.NewFromInt(100),
		TotalAmount:   decimal.NewFromInt(1000),
		Status:        models.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func newDeposit(userID int64, ref string, amount int64) *models.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Transaction{
		TransactionID:    ref,
		UserID:           userID,
		Type:             models.TransactionDeposit,
		Status:           models.TransactionCompleted,
		AdjustableAmount: models.AdjustableAmount{Amount: decimal.NewFromInt(amount)},
		Fees:             decimal.Zero,
		ProcessedAt:      &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestStoreRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := setupTestStore(t)
	ctx := context.Background()

	t.Run("CreateOrder and status round trip", func(t *testing.T) {
		testDB.reset(t)
		user := seedUser(t, testDB.DB, "a@example.com")
		company := seedCompany(t, testDB.DB, "AAPL")

		order := newOrder(user.ID, company.ID, "ORD-000000000001")
		require.NoError(t, testDB.CreateOrder(ctx, order))
		assert.NotZero(t, order.ID)

		exists, err := testDB.OrderNumberExists(ctx, order.OrderNumber)
		require.NoError(t, err)
		assert.True(t, exists)

		at := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, order.Transition(models.OrderStatusApproved, 99, at))
		require.NoError(t, testDB.UpdateOrderStatus(ctx, order))

		got, err := testDB.GetOrderByNumber(ctx, order.OrderNumber)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusApproved, got.Status)
		require.NotNil(t, got.ApprovedBy)
		assert.Equal(t, int64(99), *got.ApprovedBy)
		assert.True(t, got.PricePerShare.Equal(decimal.NewFromInt(100)))
		assert.Nil(t, got.ExecutedAt)

		approved := models.OrderStatusApproved
		list, err := testDB.ListOrdersByUser(ctx, user.ID, &approved)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("duplicate order number is a validation error", func(t *testing.T) {
		testDB.reset(t)
		user := seedUser(t, testDB.DB, "b@example.com")
		company := seedCompany(t, testDB.DB, "MSFT")

		require.NoError(t, testDB.CreateOrder(ctx, newOrder(user.ID, company.ID, "ORD-DUP")))
		err := testDB.CreateOrder(ctx, newOrder(user.ID, company.ID, "ORD-DUP"))
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("GetOrder returns ErrNotFound", func(t *testing.T) {
		testDB.reset(t)
		_, err := testDB.GetOrder(ctx, 12345)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("transaction metadata and adjusted amount persist", func(t *testing.T) {
		testDB.reset(t)
		user := seedUser(t, testDB.DB, "c@example.com")

		tx := newDeposit(user.ID, "TXN-000000000001", 500)
		tx.Status = models.TransactionPending
		tx.ProcessedAt = nil
		tx.Metadata = map[string]string{"source": "wire"}
		require.NoError(t, testDB.CreateTransaction(ctx, tx))

		tx.AdjustedAmount = decimal.NewNullDecimal(decimal.NewFromInt(450))
		tx.AdminNotes = "bank fee withheld"
		require.NoError(t, testDB.UpdateTransaction(ctx, tx))

		got, err := testDB.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, "wire", got.Metadata["source"])
		assert.True(t, got.AdjustedAmount.Valid)
		assert.True(t, models.EffectiveAmount(got).Equal(decimal.NewFromInt(450)))
		assert.Equal(t, "bank fee withheld", got.AdminNotes)
		assert.Nil(t, got.OrderID)
	})

	t.Run("SavePortfolio upserts and ListHolders skips closed positions", func(t *testing.T) {
		testDB.reset(t)
		alice := seedUser(t, testDB.DB, "alice@example.com")
		bob := seedUser(t, testDB.DB, "bob@example.com")
		company := seedCompany(t, testDB.DB, "NVDA")
		now := time.Now()

		p := &models.Portfolio{UserID: alice.ID, CompanyID: company.ID, SharesOwned: 10, AverageCost: decimal.NewFromInt(100), TotalInvested: decimal.NewFromInt(1000), CreatedAt: now, UpdatedAt: now}
		require.NoError(t, testDB.SavePortfolio(ctx, p))
		firstID := p.ID

		p.SharesOwned = 15
		require.NoError(t, testDB.SavePortfolio(ctx, p))
		assert.Equal(t, firstID, p.ID)

		closed := &models.Portfolio{UserID: bob.ID, CompanyID: company.ID, SharesOwned: 0, AverageCost: decimal.NewFromInt(90), CreatedAt: now, UpdatedAt: now}
		require.NoError(t, testDB.SavePortfolio(ctx, closed))

		holders, err := testDB.ListHolders(ctx, company.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{alice.ID}, holders)

		got, err := testDB.GetPortfolio(ctx, alice.ID, company.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(15), got.SharesOwned)
	})

	t.Run("SoftDeleteCompany removes prices and frees the symbol", func(t *testing.T) {
		testDB.reset(t)
		company := seedCompany(t, testDB.DB, "TSLA")
		now := time.Now()

		require.NoError(t, testDB.UpsertStock(ctx, &models.Stock{CompanyID: company.ID, CurrentPrice: decimal.NewFromInt(200), LastUpdated: now}))
		require.NoError(t, testDB.UpsertStockPrice(ctx, &models.StockPrice{
			CompanyID: company.ID, Date: now, Open: decimal.NewFromInt(200), High: decimal.NewFromInt(200),
			Low: decimal.NewFromInt(200), Close: decimal.NewFromInt(200),
		}))

		require.NoError(t, testDB.SoftDeleteCompany(ctx, company.ID, now))

		_, err := testDB.GetStock(ctx, company.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		prices, err := testDB.ListStockPrices(ctx, company.ID, now.AddDate(0, 0, -1), now.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Empty(t, prices)

		got, err := testDB.GetCompany(ctx, company.ID)
		require.NoError(t, err)
		assert.False(t, got.Tradable())

		companies, err := testDB.ListCompanies(ctx)
		require.NoError(t, err)
		assert.Empty(t, companies)

		seedCompany(t, testDB.DB, "TSLA")
	})

	t.Run("UpsertStockPrice keeps one bar per day", func(t *testing.T) {
		testDB.reset(t)
		company := seedCompany(t, testDB.DB, "AMZN")
		day := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)

		bar := &models.StockPrice{CompanyID: company.ID, Date: day, Open: decimal.NewFromInt(10), High: decimal.NewFromInt(11), Low: decimal.NewFromInt(9), Close: decimal.NewFromInt(10), Volume: 100}
		require.NoError(t, testDB.UpsertStockPrice(ctx, bar))
		bar.Close = decimal.NewFromInt(12)
		bar.High = decimal.NewFromInt(12)
		require.NoError(t, testDB.UpsertStockPrice(ctx, bar))

		got, err := testDB.GetStockPrice(ctx, company.ID, day)
		require.NoError(t, err)
		assert.True(t, got.Close.Equal(decimal.NewFromInt(12)))
		assert.True(t, got.Date.Equal(models.TradingDay(day)))
	})

	t.Run("WithinUserLock commits every write together", func(t *testing.T) {
		testDB.reset(t)
		user := seedUser(t, testDB.DB, "d@example.com")

		err := testDB.WithinUserLock(ctx, user.ID, func(repo repository.Repository) error {
			if err := repo.CreateTransaction(ctx, newDeposit(user.ID, "TXN-A", 100)); err != nil {
				return err
			}
			return repo.SaveAccountBalance(ctx, &models.AccountBalance{UserID: user.ID, CashBalance: decimal.NewFromInt(100), UpdatedAt: time.Now()})
		})
		require.NoError(t, err)

		txs, err := testDB.ListTransactionsByUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Len(t, txs, 1)
		bal, err := testDB.GetAccountBalance(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, bal.CashBalance.Equal(decimal.NewFromInt(100)))
	})

	t.Run("WithinUserLock rolls back when fn fails", func(t *testing.T) {
		testDB.reset(t)
		user := seedUser(t, testDB.DB, "e@example.com")
		boom := errors.New("boom")

		err := testDB.WithinUserLock(ctx, user.ID, func(repo repository.Repository) error {
			if err := repo.CreateTransaction(ctx, newDeposit(user.ID, "TXN-B", 100)); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		txs, err := testDB.ListTransactionsByUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, txs)
	})

	t.Run("WithinUserLock times out as a concurrency conflict", func(t *testing.T) {
		testDB.reset(t)
		user := seedUser(t, testDB.DB, "f@example.com")
		testDB.SetLockTimeout(200 * time.Millisecond)
		defer testDB.SetLockTimeout(5 * time.Second)

		held := make(chan struct{})
		release := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = testDB.WithinUserLock(ctx, user.ID, func(repository.Repository) error {
				close(held)
				<-release
				return nil
			})
		}()

		<-held
		err := testDB.WithinUserLock(ctx, user.ID, func(repository.Repository) error { return nil })
		close(release)
		wg.Wait()

		assert.ErrorIs(t, err, models.ErrConcurrencyConflict)
	})
}
