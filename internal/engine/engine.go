// Package engine owns the order lifecycle. It is the only writer that turns an
// order's execution into ledger, position and balance effects.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/brokerage-ledger/internal/events"
	"github.com/trogers1052/brokerage-ledger/internal/ledger"
	"github.com/trogers1052/brokerage-ledger/internal/models"
	"github.com/trogers1052/brokerage-ledger/internal/portfolio"
	"github.com/trogers1052/brokerage-ledger/internal/repository"
)

// FeeSchedule prices an execution as Flat + Bps/10000 of the order total
type FeeSchedule struct {
	Flat decimal.Decimal
	Bps  decimal.Decimal
}

var tenThousand = decimal.NewFromInt(10000)

// Fee returns the execution fee for an order total, rounded to cents
func (f FeeSchedule) Fee(total decimal.Decimal) decimal.Decimal {
	return f.Flat.Add(total.Mul(f.Bps).Div(tenThousand)).Round(2)
}

// Config controls engine policy
type Config struct {
	OrderPrefix string
	RequireKYC  bool
	Fees        FeeSchedule
}

// PlaceOrderRequest is a client's order submission
type PlaceOrderRequest struct {
	UserID        int64
	CompanyID     int64
	Type          models.OrderType
	Quantity      int64
	PricePerShare decimal.Decimal
	Notes         string
}

// ExecutionResult is everything an execution wrote, as committed
type ExecutionResult struct {
	Order        *models.Order          `json:"order"`
	Transactions []*models.Transaction  `json:"transactions"`
	Portfolio    *models.Portfolio      `json:"portfolio"`
	Balance      *models.AccountBalance `json:"balance"`
}

// Engine is the OrderEngine
type Engine struct {
	store      repository.Store
	ledger     *ledger.Service
	reconciler ledger.Reconciler
	prices     portfolio.PriceSource
	publisher  events.Publisher
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time
}

// New creates an Engine
func New(store repository.Store, ledgerSvc *ledger.Service, reconciler ledger.Reconciler, prices portfolio.PriceSource, publisher events.Publisher, cfg Config, log zerolog.Logger) *Engine {
	if cfg.OrderPrefix == "" {
		cfg.OrderPrefix = "ORD"
	}
	return &Engine{
		store:      store,
		ledger:     ledgerSvc,
		reconciler: reconciler,
		prices:     prices,
		publisher:  publisher,
		cfg:        cfg,
		log:        log.With().Str("component", "order_engine").Logger(),
		now:        time.Now,
	}
}

// PlaceOrder validates a submission against the user's balance or holding and
// creates a pending order. A rejected submission creates no order.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, error) {
	if _, err := models.ParseOrderType(string(req.Type)); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, models.NewValidationError("quantity", "must be positive")
	}
	if !req.PricePerShare.IsPositive() {
		return nil, models.NewValidationError("price_per_share", "must be positive")
	}

	user, err := e.store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", req.UserID, err)
	}
	if e.cfg.RequireKYC && user.KYCStatus != models.KYCApproved {
		return nil, fmt.Errorf("%w: user %d is %s", models.ErrKYCNotApproved, user.ID, user.KYCStatus)
	}

	company, err := e.store.GetCompany(ctx, req.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load company %d: %w", req.CompanyID, err)
	}
	if !company.Tradable() {
		return nil, models.NewValidationError("company_id", "company is not open for trading")
	}

	total := decimal.NewFromInt(req.Quantity).Mul(req.PricePerShare)
	order := &models.Order{
		UserID:        req.UserID,
		CompanyID:     req.CompanyID,
		Type:          req.Type,
		Quantity:      req.Quantity,
		PricePerShare: req.PricePerShare,
		TotalAmount:   total,
		Status:        models.OrderStatusPending,
		Notes:         req.Notes,
	}

	err = e.withRetry(ctx, func() error {
		return e.store.WithinUserLock(ctx, req.UserID, func(repo repository.Repository) error {
			if err := e.checkCoverage(ctx, repo, order); err != nil {
				return err
			}
			number, err := ledger.UniqueReference(ctx, e.cfg.OrderPrefix, repo.OrderNumberExists)
			if err != nil {
				return err
			}
			now := e.now()
			order.OrderNumber = number
			order.CreatedAt = now
			order.UpdatedAt = now
			return repo.CreateOrder(ctx, order)
		})
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("order_number", order.OrderNumber).
		Int64("user_id", order.UserID).
		Int64("company_id", order.CompanyID).
		Str("type", string(order.Type)).
		Int64("quantity", order.Quantity).
		Str("total_amount", order.TotalAmount.String()).
		Msg("Placed order")
	events.Emit(ctx, e.log, e.publisher, orderEvent(models.EventOrderPlaced, order.UserID, nil, order, order.CreatedAt))
	return order, nil
}

// Approve moves a pending order to approved. It has no monetary effect.
func (e *Engine) Approve(ctx context.Context, orderID int64, approver int64) (*models.Order, error) {
	return e.transition(ctx, orderID, models.OrderStatusApproved, approver, "", models.EventOrderApproved)
}

// Reject moves a pending order to rejected, keeping reason in the order notes
func (e *Engine) Reject(ctx context.Context, orderID int64, approver int64, reason string) (*models.Order, error) {
	return e.transition(ctx, orderID, models.OrderStatusRejected, approver, reason, models.EventOrderRejected)
}

// Cancel withdraws a pending or approved order. Once execution has begun the
// order is no longer approved and cancellation fails.
func (e *Engine) Cancel(ctx context.Context, orderID int64, actor int64) (*models.Order, error) {
	return e.transition(ctx, orderID, models.OrderStatusCancelled, actor, "", models.EventOrderCancelled)
}

// Execute fills an approved order. The ledger entry, the position update, the
// mark-to-market and the balance rebuild commit together under the user's lock,
// or none of them do and the order stays approved.
func (e *Engine) Execute(ctx context.Context, orderID int64, executor int64) (*ExecutionResult, error) {
	var (
		result *ExecutionResult
		before *models.Order
	)
	err := e.withRetry(ctx, func() error {
		var err error
		before, result, err = e.execute(ctx, orderID, executor)
		return err
	})
	if err != nil {
		e.log.Warn().Err(err).Int64("order_id", orderID).Msg("Order execution failed")
		return nil, err
	}

	order := result.Order
	e.log.Info().
		Str("order_number", order.OrderNumber).
		Int64("user_id", order.UserID).
		Str("type", string(order.Type)).
		Int64("shares_owned", result.Portfolio.SharesOwned).
		Str("cash_balance", result.Balance.CashBalance.String()).
		Msg("Executed order")

	at := *order.ExecutedAt
	evs := []models.DomainEvent{{
		EventType:  models.EventOrderExecuted,
		UserID:     order.UserID,
		Actor:      executor,
		EntityType: "order",
		EntityID:   order.OrderNumber,
		Before:     before,
		After:      result,
		Timestamp:  at,
	}}
	for _, tx := range result.Transactions {
		evs = append(evs, transactionRecorded(executor, tx, at))
	}
	events.Emit(ctx, e.log, e.publisher, evs...)
	return result, nil
}

func (e *Engine) execute(ctx context.Context, orderID int64, executor int64) (*models.Order, *ExecutionResult, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	mark, err := e.markPrice(ctx, order)
	if err != nil {
		return nil, nil, err
	}

	var (
		before *models.Order
		result *ExecutionResult
	)
	err = e.store.WithinUserLock(ctx, order.UserID, func(repo repository.Repository) error {
		locked, err := repo.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !locked.Status.CanTransitionTo(models.OrderStatusExecuted) {
			return &models.TransitionError{Entity: "order " + locked.OrderNumber, From: string(locked.Status), To: string(models.OrderStatusExecuted)}
		}
		before = locked.Clone()
		now := e.now()

		position, err := repo.GetPortfolio(ctx, locked.UserID, locked.CompanyID)
		if errors.Is(err, models.ErrNotFound) {
			position = portfolio.NewPosition(locked.UserID, locked.CompanyID, now)
		} else if err != nil {
			return err
		}

		fee := e.cfg.Fees.Fee(locked.TotalAmount)
		switch locked.Type {
		case models.OrderTypeBuy:
			if err := e.requireCash(ctx, repo, locked.UserID, locked.TotalAmount.Add(fee)); err != nil {
				return err
			}
			if err := portfolio.ApplyBuy(position, locked.Quantity, locked.PricePerShare); err != nil {
				return err
			}
		case models.OrderTypeSell:
			if _, err := portfolio.ApplySell(position, locked.Quantity, locked.PricePerShare); err != nil {
				return err
			}
		default:
			return models.NewValidationError("type", "must be buy or sell")
		}

		// (1) ledger entries
		txs := []*models.Transaction{tradeTransaction(locked, fee, executor)}
		if fee.IsPositive() {
			txs = append(txs, feeTransaction(locked, fee, executor))
		}
		for _, tx := range txs {
			if err := e.ledger.RecordIn(ctx, repo, tx); err != nil {
				return err
			}
		}

		// (2) position, (3) mark to market
		portfolio.Recompute(position, mark, now)
		if err := repo.SavePortfolio(ctx, position); err != nil {
			return err
		}

		if err := locked.Transition(models.OrderStatusExecuted, executor, now); err != nil {
			return err
		}
		if err := repo.UpdateOrderStatus(ctx, locked); err != nil {
			return err
		}

		// (4) balance
		bal, err := e.reconciler.Reconcile(ctx, repo, locked.UserID)
		if err != nil {
			return err
		}

		result = &ExecutionResult{
			Order:        locked.Clone(),
			Transactions: txs,
			Portfolio:    position.Clone(),
			Balance:      bal.Clone(),
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, result, nil
}

// GetOrder returns an order by id
func (e *Engine) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return e.store.GetOrder(ctx, id)
}

// GetOrderByNumber returns an order by its order number
func (e *Engine) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	return e.store.GetOrderByNumber(ctx, number)
}

// ListOrders returns a user's orders, optionally filtered by status
func (e *Engine) ListOrders(ctx context.Context, userID int64, status *models.OrderStatus) ([]*models.Order, error) {
	return e.store.ListOrdersByUser(ctx, userID, status)
}

func (e *Engine) transition(ctx context.Context, orderID int64, next models.OrderStatus, actor int64, note, eventType string) (*models.Order, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var before, after *models.Order
	err = e.withRetry(ctx, func() error {
		return e.store.WithinUserLock(ctx, order.UserID, func(repo repository.Repository) error {
			locked, err := repo.GetOrder(ctx, orderID)
			if err != nil {
				return err
			}
			before = locked.Clone()
			if err := locked.Transition(next, actor, e.now()); err != nil {
				return err
			}
			if note != "" {
				locked.Notes = appendNote(locked.Notes, note)
			}
			if err := repo.UpdateOrderStatus(ctx, locked); err != nil {
				return err
			}
			after = locked.Clone()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("order_number", after.OrderNumber).
		Int64("user_id", after.UserID).
		Str("from", string(before.Status)).
		Str("to", string(after.Status)).
		Int64("actor", actor).
		Msg("Order transitioned")
	events.Emit(ctx, e.log, e.publisher, orderEvent(eventType, actor, before, after, after.UpdatedAt))
	return after, nil
}

// checkCoverage enforces the placement rules: a sell needs the shares, a buy
// needs cash_balance - pending_withdrawals to cover the total (and fee).
func (e *Engine) checkCoverage(ctx context.Context, repo repository.Repository, order *models.Order) error {
	if order.Type == models.OrderTypeSell {
		owned := int64(0)
		position, err := repo.GetPortfolio(ctx, order.UserID, order.CompanyID)
		switch {
		case err == nil:
			owned = position.SharesOwned
		case !errors.Is(err, models.ErrNotFound):
			return err
		}
		if owned < order.Quantity {
			return fmt.Errorf("%w: selling %d, owned %d", models.ErrInsufficientShares, order.Quantity, owned)
		}
		return nil
	}
	return e.requireCash(ctx, repo, order.UserID, order.TotalAmount.Add(e.cfg.Fees.Fee(order.TotalAmount)))
}

func (e *Engine) requireCash(ctx context.Context, repo repository.Repository, userID int64, need decimal.Decimal) error {
	available := decimal.Zero
	bal, err := repo.GetAccountBalance(ctx, userID)
	switch {
	case err == nil:
		available = bal.AvailableCash()
	case !errors.Is(err, models.ErrNotFound):
		return err
	}
	if available.LessThan(need) {
		return fmt.Errorf("%w: need %s, available %s", models.ErrInsufficientFunds, need, available)
	}
	return nil
}

// markPrice is the latest catalog price, or the execution price when the catalog has none
func (e *Engine) markPrice(ctx context.Context, order *models.Order) (decimal.Decimal, error) {
	if e.prices == nil {
		return order.PricePerShare, nil
	}
	price, err := e.prices.CurrentPrice(ctx, order.CompanyID)
	if errors.Is(err, models.ErrPriceUnavailable) {
		return order.PricePerShare, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get price for company %d: %w", order.CompanyID, err)
	}
	return price, nil
}

// withRetry runs fn and, on a concurrency conflict, runs it exactly once more
func (e *Engine) withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if !errors.Is(err, models.ErrConcurrencyConflict) {
		return err
	}
	if ctx.Err() != nil {
		return err
	}
	e.log.Debug().Err(err).Msg("Retrying after concurrency conflict")
	return fn()
}

func tradeTransaction(order *models.Order, fee decimal.Decimal, executor int64) *models.Transaction {
	txType := models.TransactionBuy
	verb := "Buy"
	if order.Type == models.OrderTypeSell {
		txType = models.TransactionSell
		verb = "Sell"
	}
	orderID := order.ID
	tx := &models.Transaction{
		UserID:      order.UserID,
		OrderID:     &orderID,
		Type:        txType,
		Status:      models.TransactionCompleted,
		Fees:        fee,
		Description: fmt.Sprintf("%s %d shares @ %s (%s)", verb, order.Quantity, order.PricePerShare, order.OrderNumber),
		Metadata: map[string]string{
			"order_number":    order.OrderNumber,
			"company_id":      strconv.FormatInt(order.CompanyID, 10),
			"quantity":        strconv.FormatInt(order.Quantity, 10),
			"price_per_share": order.PricePerShare.String(),
		},
		ProcessedBy: &executor,
	}
	tx.Amount = order.TotalAmount
	return tx
}

func feeTransaction(order *models.Order, fee decimal.Decimal, executor int64) *models.Transaction {
	orderID := order.ID
	tx := &models.Transaction{
		UserID:      order.UserID,
		OrderID:     &orderID,
		Type:        models.TransactionFee,
		Status:      models.TransactionCompleted,
		Description: "Execution fee for " + order.OrderNumber,
		Metadata:    map[string]string{"order_number": order.OrderNumber},
		ProcessedBy: &executor,
	}
	tx.Amount = fee
	return tx
}

func orderEvent(eventType string, actor int64, before, after *models.Order, at time.Time) models.DomainEvent {
	ev := models.DomainEvent{
		EventType:  eventType,
		UserID:     after.UserID,
		Actor:      actor,
		EntityType: "order",
		EntityID:   after.OrderNumber,
		After:      after.Clone(),
		Timestamp:  at,
	}
	if before != nil {
		ev.Before = before
	}
	return ev
}

func transactionRecorded(actor int64, tx *models.Transaction, at time.Time) models.DomainEvent {
	return models.DomainEvent{
		EventType:  models.EventTransactionRecorded,
		UserID:     tx.UserID,
		Actor:      actor,
		EntityType: "transaction",
		EntityID:   tx.TransactionID,
		After:      tx.Clone(),
		Timestamp:  at,
	}
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
