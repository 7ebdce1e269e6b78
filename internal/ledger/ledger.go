// Package ledger is the append-only record of money movement and the source of
// truth for every balance.
package ledger

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

// Reconciler rebuilds a user's AccountBalance inside a unit of work
type Reconciler interface {
	Reconcile(ctx context.Context, repo repository.Repository, userID int64) (*models.AccountBalance, error)
}

// Service records and settles ledger entries
type Service struct {
	store      repository.Store
	reconciler Reconciler
	publisher  events.Publisher
	prefix     string
	log        zerolog.Logger
	now        func() time.Time
}

// NewService creates a ledger Service. prefix is used for generated transaction ids.
func NewService(store repository.Store, reconciler Reconciler, publisher events.Publisher, prefix string, log zerolog.Logger) *Service {
	if prefix == "" {
		prefix = "TXN"
	}
	return &Service{
		store:      store,
		reconciler: reconciler,
		publisher:  publisher,
		prefix:     prefix,
		log:        log.With().Str("component", "ledger").Logger(),
		now:        time.Now,
	}
}

// RecordIn validates tx and appends it through repo. It is the building block
// used inside a caller's unit of work; it does not rebuild the balance.
func (s *Service) RecordIn(ctx context.Context, repo repository.Repository, tx *models.Transaction) error {
	if !tx.Type.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidTransactionType, tx.Type)
	}
	if tx.Status == "" {
		tx.Status = models.TransactionPending
	}
	if !tx.Status.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidTransactionStatus, tx.Status)
	}
	if tx.UserID == 0 {
		return models.NewValidationError("user_id", "is required")
	}
	if !tx.Amount.IsPositive() {
		return models.NewValidationError("amount", "must be positive")
	}
	if tx.AdjustedAmount.Valid && tx.AdjustedAmount.Decimal.IsNegative() {
		return models.NewValidationError("adjusted_amount", "must not be negative")
	}
	if tx.Fees.IsNegative() {
		return models.NewValidationError("fees", "must not be negative")
	}

	if tx.TransactionID == "" {
		id, err := UniqueReference(ctx, s.prefix, repo.TransactionIDExists)
		if err != nil {
			return err
		}
		tx.TransactionID = id
	}

	now := s.now()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	if tx.Status != models.TransactionPending && tx.ProcessedAt == nil {
		tx.ProcessedAt = &now
	}

	if err := repo.CreateTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to record transaction %s: %w", tx.TransactionID, err)
	}
	return nil
}

// Record appends tx and rebuilds the owner's balance atomically. Unknown type or
// status values are rejected and nothing is persisted.
func (s *Service) Record(ctx context.Context, tx *models.Transaction, actor int64) error {
	err := s.store.WithinUserLock(ctx, tx.UserID, func(repo repository.Repository) error {
		if err := s.RecordIn(ctx, repo, tx); err != nil {
			return err
		}
		_, err := s.reconciler.Reconcile(ctx, repo, tx.UserID)
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("transaction_id", tx.TransactionID).
		Int64("user_id", tx.UserID).
		Str("type", string(tx.Type)).
		Str("status", string(tx.Status)).
		Str("amount", tx.Amount.String()).
		Msg("Recorded transaction")
	events.Emit(ctx, s.log, s.publisher, transactionEvent(models.EventTransactionRecorded, actor, nil, tx, s.now()))
	return nil
}

// Finalize settles a pending transaction. Only pending -> completed|failed|cancelled
// is allowed; any move from a final status fails with ErrInvalidStateTransition,
// so a repeated call never applies the balance effect twice.
func (s *Service) Finalize(ctx context.Context, id int64, status models.TransactionStatus, actor int64) (*models.Transaction, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidTransactionStatus, status)
	}

	var before, after *models.Transaction
	err := s.mutate(ctx, id, func(repo repository.Repository, tx *models.Transaction) error {
		if !tx.Status.CanFinalizeTo(status) {
			return &models.TransitionError{Entity: "transaction " + tx.TransactionID, From: string(tx.Status), To: string(status)}
		}
		before = tx.Clone()
		now := s.now()
		tx.Status = status
		tx.ProcessedBy = &actor
		tx.ProcessedAt = &now
		tx.UpdatedAt = now
		if err := repo.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
		after = tx.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("transaction_id", after.TransactionID).
		Str("from", string(before.Status)).
		Str("to", string(after.Status)).
		Msg("Finalized transaction")
	events.Emit(ctx, s.log, s.publisher, transactionEvent(models.EventTransactionFinalized, actor, before, after, s.now()))
	return after, nil
}

// Adjust sets the operator override on a pending transaction. Completed rows are
// immutable; use RecordCorrection for them.
func (s *Service) Adjust(ctx context.Context, id int64, adjusted decimal.Decimal, note string, actor int64) (*models.Transaction, error) {
	if adjusted.IsNegative() {
		return nil, models.NewValidationError("adjusted_amount", "must not be negative")
	}

	var before, after *models.Transaction
	err := s.mutate(ctx, id, func(repo repository.Repository, tx *models.Transaction) error {
		if tx.Status != models.TransactionPending {
			return &models.TransitionError{Entity: "transaction " + tx.TransactionID, From: string(tx.Status), To: "adjusted"}
		}
		if tx.Type == models.TransactionWithdrawal {
			bal, err := s.reconciler.Reconcile(ctx, repo, tx.UserID)
			if err != nil {
				return err
			}
			increase := adjusted.Sub(models.EffectiveAmount(tx))
			if increase.GreaterThan(bal.AvailableCash()) {
				return fmt.Errorf("%w: adjustment needs %s, available %s", models.ErrInsufficientFunds, increase, bal.AvailableCash())
			}
		}
		before = tx.Clone()
		tx.AdjustedAmount = decimal.NewNullDecimal(adjusted)
		tx.AdminNotes = appendNote(tx.AdminNotes, note)
		tx.UpdatedAt = s.now()
		if err := repo.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
		after = tx.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, s.log, s.publisher, transactionEvent(models.EventTransactionAdjusted, actor, before, after, s.now()))
	return after, nil
}

// RecordCorrection corrects a completed transaction by appending a new completed
// entry: a positive delta credits the user (deposit), a negative one debits (fee).
func (s *Service) RecordCorrection(ctx context.Context, id int64, delta decimal.Decimal, note string, actor int64) (*models.Transaction, error) {
	if delta.IsZero() {
		return nil, models.NewValidationError("delta", "must not be zero")
	}
	original, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if original.Status != models.TransactionCompleted {
		return nil, &models.TransitionError{Entity: "transaction " + original.TransactionID, From: string(original.Status), To: "corrected"}
	}

	correction := &models.Transaction{
		UserID:      original.UserID,
		OrderID:     original.OrderID,
		Type:        models.TransactionDeposit,
		Status:      models.TransactionCompleted,
		Description: "Correction of " + original.TransactionID,
		AdminNotes:  note,
		Metadata:    map[string]string{"corrects": original.TransactionID},
		ProcessedBy: &actor,
	}
	correction.Amount = delta.Abs()
	if delta.IsNegative() {
		correction.Type = models.TransactionFee
	}

	if err := s.recordSettled(ctx, correction, actor); err != nil {
		return nil, err
	}
	return correction, nil
}

// Deposit records a pending deposit awaiting settlement
func (s *Service) Deposit(ctx context.Context, userID int64, amount decimal.Decimal, description string, actor int64) (*models.Transaction, error) {
	tx := &models.Transaction{
		UserID:      userID,
		Type:        models.TransactionDeposit,
		Status:      models.TransactionPending,
		Description: description,
	}
	tx.Amount = amount
	if err := s.Record(ctx, tx, actor); err != nil {
		return nil, err
	}
	return tx, nil
}

// RequestWithdrawal records a pending withdrawal. The amount counts against
// available cash from this point until the withdrawal is finalized.
func (s *Service) RequestWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, description string, actor int64) (*models.Transaction, error) {
	tx := &models.Transaction{
		UserID:      userID,
		Type:        models.TransactionWithdrawal,
		Status:      models.TransactionPending,
		Description: description,
	}
	tx.Amount = amount
	if err := s.recordFunded(ctx, tx, actor); err != nil {
		return nil, err
	}
	return tx, nil
}

// RecordDividend credits a settled dividend for a holding in companyID
func (s *Service) RecordDividend(ctx context.Context, userID, companyID int64, amount decimal.Decimal, actor int64) (*models.Transaction, error) {
	tx := &models.Transaction{
		UserID:      userID,
		Type:        models.TransactionDividend,
		Status:      models.TransactionCompleted,
		Description: "Dividend",
		Metadata:    map[string]string{"company_id": strconv.FormatInt(companyID, 10)},
		ProcessedBy: &actor,
	}
	tx.Amount = amount
	if err := s.recordSettled(ctx, tx, actor); err != nil {
		return nil, err
	}
	return tx, nil
}

// ChargeFee debits a settled fee; it fails with ErrInsufficientFunds when the user cannot cover it
func (s *Service) ChargeFee(ctx context.Context, userID int64, amount decimal.Decimal, description string, actor int64) (*models.Transaction, error) {
	tx := &models.Transaction{
		UserID:      userID,
		Type:        models.TransactionFee,
		Status:      models.TransactionCompleted,
		Description: description,
		ProcessedBy: &actor,
	}
	tx.Amount = amount
	if err := s.recordFunded(ctx, tx, actor); err != nil {
		return nil, err
	}
	return tx, nil
}

// Get returns a transaction by id
func (s *Service) Get(ctx context.Context, id int64) (*models.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// ListByUser returns a user's transactions in ledger order
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]*models.Transaction, error) {
	return s.store.ListTransactionsByUser(ctx, userID)
}

// recordSettled records tx, which only ever credits the user or is covered by
// a prior check, and rebuilds the balance.
func (s *Service) recordSettled(ctx context.Context, tx *models.Transaction, actor int64) error {
	if tx.Type.CashSign() < 0 {
		return s.recordFunded(ctx, tx, actor)
	}
	return s.Record(ctx, tx, actor)
}

// recordFunded records an outflow only if available cash covers it
func (s *Service) recordFunded(ctx context.Context, tx *models.Transaction, actor int64) error {
	err := s.store.WithinUserLock(ctx, tx.UserID, func(repo repository.Repository) error {
		bal, err := s.reconciler.Reconcile(ctx, repo, tx.UserID)
		if err != nil {
			return err
		}
		if tx.Amount.GreaterThan(bal.AvailableCash()) {
			return fmt.Errorf("%w: need %s, available %s", models.ErrInsufficientFunds, tx.Amount, bal.AvailableCash())
		}
		if err := s.RecordIn(ctx, repo, tx); err != nil {
			return err
		}
		_, err = s.reconciler.Reconcile(ctx, repo, tx.UserID)
		return err
	})
	if err != nil {
		return err
	}
	events.Emit(ctx, s.log, s.publisher, transactionEvent(models.EventTransactionRecorded, actor, nil, tx, s.now()))
	return nil
}

// mutate loads transaction id, then reloads it under its owner's lock and
// applies fn followed by a balance rebuild.
func (s *Service) mutate(ctx context.Context, id int64, fn func(repo repository.Repository, tx *models.Transaction) error) error {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	return s.store.WithinUserLock(ctx, tx.UserID, func(repo repository.Repository) error {
		locked, err := repo.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(repo, locked); err != nil {
			return err
		}
		_, err = s.reconciler.Reconcile(ctx, repo, locked.UserID)
		return err
	})
}

func transactionEvent(eventType string, actor int64, before, after *models.Transaction, at time.Time) models.DomainEvent {
	ev := models.DomainEvent{
		EventType:  eventType,
		UserID:     after.UserID,
		Actor:      actor,
		EntityType: "transaction",
		EntityID:   after.TransactionID,
		After:      after.Clone(),
		Timestamp:  at,
	}
	if before != nil {
		ev.Before = before
	}
	return ev
}

func appendNote(existing, note string) string {
	if note == "" {
		return existing
	}
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

// IsBusinessError reports whether err is a permanent rule violation that must not be retried
func IsBusinessError(err error) bool {
	return errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrInsufficientFunds) ||
		errors.Is(err, models.ErrInsufficientShares) ||
		errors.Is(err, models.ErrInvalidStateTransition) ||
		errors.Is(err, models.ErrInvalidTransactionType) ||
		errors.Is(err, models.ErrInvalidTransactionStatus)
}
