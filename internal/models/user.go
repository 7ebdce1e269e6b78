package models

import "time"

// Role is supplied by the identity collaborator; the core records it but does not enforce policy
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleBroker Role = "broker"
	RoleClient Role = "client"
)

// KYCStatus gates trading for a user
type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCApproved KYCStatus = "approved"
	KYCRejected KYCStatus = "rejected"
)

// ParseKYCStatus validates s against the known KYC statuses
func ParseKYCStatus(s string) (KYCStatus, error) {
	switch k := KYCStatus(s); k {
	case KYCPending, KYCApproved, KYCRejected:
		return k, nil
	}
	return "", NewValidationError("kyc_status", "must be one of pending, approved, rejected")
}

// User is the account holder as seen by the ledger
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	KYCStatus KYCStatus `json:"kyc_status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Actor identifies who drove a transition
type Actor struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role,omitempty"`
}
