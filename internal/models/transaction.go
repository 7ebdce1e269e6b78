package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger movement
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionBuy        TransactionType = "buy"
	TransactionSell       TransactionType = "sell"
	TransactionDividend   TransactionType = "dividend"
	TransactionFee        TransactionType = "fee"
)

// cashDirection is the sign a completed transaction of each type applies to cash
var cashDirection = map[TransactionType]int{
	TransactionDeposit:    1,
	TransactionWithdrawal: -1,
	TransactionBuy:        -1,
	TransactionSell:       1,
	TransactionDividend:   1,
	TransactionFee:        -1,
}

// ParseTransactionType validates s; unknown values are never coerced
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(s)
	if !t.Valid() {
		return "", ErrInvalidTransactionType
	}
	return t, nil
}

// Valid reports whether t is a member of the closed type set
func (t TransactionType) Valid() bool {
	_, ok := cashDirection[t]
	return ok
}

// CashSign returns +1 for inflows and -1 for outflows
func (t TransactionType) CashSign() int {
	return cashDirection[t]
}

// TransactionStatus is a state of a ledger entry
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
)

// ParseTransactionStatus validates s; unknown values are never coerced
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	st := TransactionStatus(s)
	if !st.Valid() {
		return "", ErrInvalidTransactionStatus
	}
	return st, nil
}

// Valid reports whether s is a member of the closed status set
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionPending, TransactionCompleted, TransactionFailed, TransactionCancelled:
		return true
	}
	return false
}

// CanFinalizeTo reports whether s -> next is a legal ledger move.
// Only pending entries move, and only to a final status.
func (s TransactionStatus) CanFinalizeTo(next TransactionStatus) bool {
	return s == TransactionPending && next != TransactionPending && next.Valid()
}

// AdjustableAmount keeps the requested figure and an optional operator override side by side.
type AdjustableAmount struct {
	Amount         decimal.Decimal     `json:"amount"`
	AdjustedAmount decimal.NullDecimal `json:"adjusted_amount"`
}

// Effective is the override when present, otherwise the requested amount
func (a AdjustableAmount) Effective() decimal.Decimal {
	if a.AdjustedAmount.Valid {
		return a.AdjustedAmount.Decimal
	}
	return a.Amount
}

// Transaction is one cash or asset movement in the ledger
type Transaction struct {
	ID            int64             `json:"id"`
	TransactionID string            `json:"transaction_id"`
	UserID        int64             `json:"user_id"`
	OrderID       *int64            `json:"order_id,omitempty"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	AdjustableAmount
	Fees        decimal.Decimal   `json:"fees"`
	Description string            `json:"description,omitempty"`
	Comments    string            `json:"comments,omitempty"`
	AdminNotes  string            `json:"admin_notes,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ProcessedBy *int64            `json:"processed_by,omitempty"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// EffectiveAmount is the single accessor for the economic amount of a transaction
func EffectiveAmount(tx *Transaction) decimal.Decimal {
	return tx.Effective()
}

// SignedCashEffect is the change a completed tx applies to cash_balance; zero otherwise
func SignedCashEffect(tx *Transaction) decimal.Decimal {
	if tx.Status != TransactionCompleted {
		return decimal.Zero
	}
	return EffectiveAmount(tx).Mul(decimal.NewFromInt(int64(tx.Type.CashSign())))
}

// Clone returns a deep copy suitable for before/after snapshots
func (tx *Transaction) Clone() *Transaction {
	if tx == nil {
		return nil
	}
	c := *tx
	c.OrderID = cloneInt64(tx.OrderID)
	c.ProcessedBy = cloneInt64(tx.ProcessedBy)
	c.ProcessedAt = cloneTime(tx.ProcessedAt)
	if tx.Metadata != nil {
		c.Metadata = make(map[string]string, len(tx.Metadata))
		for k, v := range tx.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
