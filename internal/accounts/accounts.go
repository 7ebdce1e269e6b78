// Package accounts keeps the user records the ledger needs: role and KYC status.
package accounts

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/trogers1052/brokerage-ledger/internal/events"
	"github.com/trogers1052/brokerage-ledger/internal/models"
	"github.com/trogers1052/brokerage-ledger/internal/repository"
)

// Service manages users and their KYC status
type Service struct {
	repo      repository.UserRepository
	publisher events.Publisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewService creates an accounts Service
func NewService(repo repository.UserRepository, publisher events.Publisher, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		log:       log.With().Str("component", "accounts").Logger(),
		now:       time.Now,
	}
}

// CreateUser registers a user. New users start with KYC pending unless a status is given.
func (s *Service) CreateUser(ctx context.Context, u *models.User) error {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Name == "" {
		return models.NewValidationError("name", "is required")
	}
	if !strings.Contains(u.Email, "@") {
		return models.NewValidationError("email", "is invalid")
	}
	switch u.Role {
	case "":
		u.Role = models.RoleClient
	case models.RoleAdmin, models.RoleBroker, models.RoleClient:
	default:
		return models.NewValidationError("role", "must be admin, broker or client")
	}
	if u.KYCStatus == "" {
		u.KYCStatus = models.KYCPending
	}
	if _, err := models.ParseKYCStatus(string(u.KYCStatus)); err != nil {
		return err
	}

	now := s.now()
	u.CreatedAt = now
	u.UpdatedAt = now
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("failed to create user %s: %w", u.Email, err)
	}
	return nil
}

// GetUser returns a user by id
func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetUser(ctx, id)
}

// SetKYCStatus records a KYC decision and emits KycStatusChanged
func (s *Service) SetKYCStatus(ctx context.Context, userID int64, status models.KYCStatus, actor int64) (*models.User, error) {
	if _, err := models.ParseKYCStatus(string(status)); err != nil {
		return nil, err
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.KYCStatus == status {
		return user, nil
	}

	before := *user
	if err := s.repo.UpdateKYCStatus(ctx, userID, status); err != nil {
		return nil, fmt.Errorf("failed to update kyc status for user %d: %w", userID, err)
	}
	user.KYCStatus = status
	user.UpdatedAt = s.now()

	s.log.Info().
		Int64("user_id", userID).
		Str("from", string(before.KYCStatus)).
		Str("to", string(status)).
		Msg("KYC status changed")
	events.Emit(ctx, s.log, s.publisher, models.DomainEvent{
		EventType:  models.EventKYCStatusChanged,
		UserID:     userID,
		Actor:      actor,
		EntityType: "user",
		EntityID:   strconv.FormatInt(userID, 10),
		Before:     &before,
		After:      user,
		Timestamp:  user.UpdatedAt,
	})
	return user, nil
}
