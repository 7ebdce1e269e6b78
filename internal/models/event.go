package models

import "time"

// Domain event types emitted after a committed change
const (
	EventOrderPlaced          = "ORDER_PLACED"
	EventOrderApproved        = "ORDER_APPROVED"
	EventOrderRejected        = "ORDER_REJECTED"
	EventOrderCancelled       = "ORDER_CANCELLED"
	EventOrderExecuted        = "ORDER_EXECUTED"
	EventTransactionRecorded  = "TRANSACTION_RECORDED"
	EventTransactionFinalized = "TRANSACTION_FINALIZED"
	EventTransactionAdjusted  = "TRANSACTION_ADJUSTED"
	EventKYCStatusChanged     = "KYC_STATUS_CHANGED"
	EventPortfolioRevalued    = "PORTFOLIO_REVALUED"
)

// DomainEvent carries what changed, who changed it and when, with before/after snapshots for audit
type DomainEvent struct {
	EventType  string    `json:"event_type"`
	UserID     int64     `json:"user_id"`
	Actor      int64     `json:"actor"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Before     any       `json:"before,omitempty"`
	After      any       `json:"after,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
