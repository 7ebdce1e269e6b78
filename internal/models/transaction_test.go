package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func txOf(typ TransactionType, status TransactionStatus, amount string) *Transaction {
	tx := &Transaction{Type: typ, Status: status}
	tx.Amount = decimal.RequireFromString(amount)
	return tx
}

func TestParseTransactionType(t *testing.T) {
	for _, s := range []string{"deposit", "withdrawal", "buy", "sell", "dividend", "fee"} {
		typ, err := ParseTransactionType(s)
		require.NoError(t, err, s)
		assert.Equal(t, TransactionType(s), typ)
	}

	// unknown values are rejected, never coerced to a default
	for _, s := range []string{"", "Deposit", "transfer", "bonus"} {
		_, err := ParseTransactionType(s)
		assert.ErrorIs(t, err, ErrInvalidTransactionType, s)
	}
}

func TestParseTransactionStatus(t *testing.T) {
	for _, s := range []string{"pending", "completed", "failed", "cancelled"} {
		_, err := ParseTransactionStatus(s)
		require.NoError(t, err, s)
	}
	_, err := ParseTransactionStatus("settled")
	assert.ErrorIs(t, err, ErrInvalidTransactionStatus)
}

func TestTransactionStatus_CanFinalizeTo(t *testing.T) {
	assert.True(t, TransactionPending.CanFinalizeTo(TransactionCompleted))
	assert.True(t, TransactionPending.CanFinalizeTo(TransactionFailed))
	assert.True(t, TransactionPending.CanFinalizeTo(TransactionCancelled))
	assert.False(t, TransactionPending.CanFinalizeTo(TransactionPending))
	assert.False(t, TransactionCompleted.CanFinalizeTo(TransactionCompleted))
	assert.False(t, TransactionFailed.CanFinalizeTo(TransactionCompleted))
	assert.False(t, TransactionPending.CanFinalizeTo("settled"))
}

func TestEffectiveAmount(t *testing.T) {
	tx := txOf(TransactionDeposit, TransactionPending, "100")
	assert.True(t, EffectiveAmount(tx).Equal(decimal.NewFromInt(100)))

	tx.AdjustedAmount = decimal.NewNullDecimal(decimal.RequireFromString("90.50"))
	assert.True(t, EffectiveAmount(tx).Equal(decimal.RequireFromString("90.50")))

	// an explicit zero override wins over the requested amount
	tx.AdjustedAmount = decimal.NewNullDecimal(decimal.Zero)
	assert.True(t, EffectiveAmount(tx).IsZero())
}

func TestSignedCashEffect(t *testing.T) {
	testCases := []struct {
		name string
		tx   *Transaction
		want string
	}{
		{"completed deposit credits", txOf(TransactionDeposit, TransactionCompleted, "100"), "100"},
		{"completed withdrawal debits", txOf(TransactionWithdrawal, TransactionCompleted, "40"), "-40"},
		{"completed buy debits", txOf(TransactionBuy, TransactionCompleted, "1500"), "-1500"},
		{"completed sell credits", txOf(TransactionSell, TransactionCompleted, "800"), "800"},
		{"completed dividend credits", txOf(TransactionDividend, TransactionCompleted, "12.34"), "12.34"},
		{"completed fee debits", txOf(TransactionFee, TransactionCompleted, "4.95"), "-4.95"},
		{"pending has no effect", txOf(TransactionDeposit, TransactionPending, "100"), "0"},
		{"failed has no effect", txOf(TransactionWithdrawal, TransactionFailed, "100"), "0"},
		{"cancelled has no effect", txOf(TransactionBuy, TransactionCancelled, "100"), "0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := SignedCashEffect(tc.tx)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s", got)
		})
	}
}

func TestSignedCashEffect_usesAdjustedAmount(t *testing.T) {
	tx := txOf(TransactionDeposit, TransactionCompleted, "100")
	tx.AdjustedAmount = decimal.NewNullDecimal(decimal.NewFromInt(80))
	assert.True(t, SignedCashEffect(tx).Equal(decimal.NewFromInt(80)))
}

func TestTransaction_Clone(t *testing.T) {
	tx := txOf(TransactionDeposit, TransactionPending, "1")
	tx.Metadata = map[string]string{"k": "v"}
	c := tx.Clone()
	c.Metadata["k"] = "changed"
	assert.Equal(t, "v", tx.Metadata["k"])
}

func TestAccountBalance_derivedValues(t *testing.T) {
	b := &AccountBalance{
		CashBalance:         decimal.NewFromInt(8500),
		PendingWithdrawals:  decimal.NewFromInt(500),
		TotalPortfolioValue: decimal.NewFromInt(1000),
	}
	assert.True(t, b.AvailableCash().Equal(decimal.NewFromInt(8000)))
	assert.True(t, b.TotalAccountValue().Equal(decimal.NewFromInt(9500)))
}
