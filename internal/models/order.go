package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is the side of an order
type OrderType string

const (
	OrderTypeBuy  OrderType = "buy"
	OrderTypeSell OrderType = "sell"
)

// ParseOrderType validates s against the order sides
func ParseOrderType(s string) (OrderType, error) {
	switch t := OrderType(s); t {
	case OrderTypeBuy, OrderTypeSell:
		return t, nil
	}
	return "", NewValidationError("type", "must be buy or sell")
}

// OrderStatus is a state of the order lifecycle
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusApproved  OrderStatus = "approved"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusExecuted  OrderStatus = "executed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderTransitions lists every legal move; states absent as keys are terminal
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:  {OrderStatusApproved, OrderStatusRejected, OrderStatusCancelled},
	OrderStatusApproved: {OrderStatusExecuted, OrderStatusCancelled},
}

// ParseOrderStatus validates s against the order statuses
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusApproved, OrderStatusRejected, OrderStatusExecuted, OrderStatusCancelled:
		return st, nil
	}
	return "", NewValidationError("status", "unknown order status")
}

// IsTerminal reports whether no transition leaves s
func (s OrderStatus) IsTerminal() bool {
	_, ok := orderTransitions[s]
	return !ok
}

// CanTransitionTo reports whether s -> next is a legal move
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is a user's instruction to buy or sell shares at a stated price
type Order struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"order_number"`
	UserID        int64           `json:"user_id"`
	CompanyID     int64           `json:"company_id"`
	Type          OrderType       `json:"type"`
	Quantity      int64           `json:"quantity"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        OrderStatus     `json:"status"`
	ApprovedBy    *int64          `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time      `json:"approved_at,omitempty"`
	ExecutedBy    *int64          `json:"executed_by,omitempty"`
	ExecutedAt    *time.Time      `json:"executed_at,omitempty"`
	CancelledBy   *int64          `json:"cancelled_by,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Transition moves the order to next, recording who and when.
// Monetary fields are never touched here.
func (o *Order) Transition(next OrderStatus, actor int64, at time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return &TransitionError{Entity: "order " + o.OrderNumber, From: string(o.Status), To: string(next)}
	}
	switch next {
	case OrderStatusApproved, OrderStatusRejected:
		o.ApprovedBy = &actor
		o.ApprovedAt = &at
	case OrderStatusExecuted:
		o.ExecutedBy = &actor
		o.ExecutedAt = &at
	case OrderStatusCancelled:
		o.CancelledBy = &actor
		o.CancelledAt = &at
	}
	o.Status = next
	o.UpdatedAt = at
	return nil
}

// Clone returns a deep copy suitable for before/after snapshots
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.ApprovedBy = cloneInt64(o.ApprovedBy)
	c.ApprovedAt = cloneTime(o.ApprovedAt)
	c.ExecutedBy = cloneInt64(o.ExecutedBy)
	c.ExecutedAt = cloneTime(o.ExecutedAt)
	c.CancelledBy = cloneInt64(o.CancelledBy)
	c.CancelledAt = cloneTime(o.CancelledAt)
	return &c
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
