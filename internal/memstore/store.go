// Package memstore is an in-memory repository.Store. Units of work stage their
// writes and publish them only on success, which makes the rollback path of the
// ledger testable without a database. Failures can be injected per operation.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trogers1052/brokerage-ledger/internal/models"
	"github.com/trogers1052/brokerage-ledger/internal/repository"
)

// OpCommit names the commit step for FailOn
const OpCommit = "Commit"

type positionKey struct {
	userID    int64
	companyID int64
}

type priceKey struct {
	companyID int64
	day       time.Time
}

// ledgerState holds the user-scoped rows that a unit of work stages
type ledgerState struct {
	orders     map[int64]*models.Order
	txs        map[int64]*models.Transaction
	portfolios map[positionKey]*models.Portfolio
	balances   map[int64]*models.AccountBalance
}

func newLedgerState() *ledgerState {
	return &ledgerState{
		orders:     make(map[int64]*models.Order),
		txs:        make(map[int64]*models.Transaction),
		portfolios: make(map[positionKey]*models.Portfolio),
		balances:   make(map[int64]*models.AccountBalance),
	}
}

// Store is the in-memory implementation of repository.Store
type Store struct {
	mu     sync.RWMutex
	ledger *ledgerState

	users     map[int64]*models.User
	companies map[int64]*models.Company
	stocks    map[int64]*models.Stock
	prices    map[priceKey]*models.StockPrice
	nextID    int64

	locksMu     sync.Mutex
	locks       map[int64]chan struct{}
	lockTimeout time.Duration

	faultsMu sync.Mutex
	faults   map[string]error

	*view
}

var _ repository.Store = (*Store)(nil)

// New creates an empty Store. Acquiring a user lock waits at most lockTimeout.
func New(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	s := &Store{
		ledger:      newLedgerState(),
		users:       make(map[int64]*models.User),
		companies:   make(map[int64]*models.Company),
		stocks:      make(map[int64]*models.Stock),
		prices:      make(map[priceKey]*models.StockPrice),
		locks:       make(map[int64]chan struct{}),
		lockTimeout: lockTimeout,
		faults:      make(map[string]error),
	}
	s.view = &view{store: s}
	return s
}

// FailOn makes every later call of op return err until ClearFaults.
// op is a repository method name or OpCommit.
func (s *Store) FailOn(op string, err error) {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	s.faults[op] = err
}

// ClearFaults removes every injected failure
func (s *Store) ClearFaults() {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	s.faults = make(map[string]error)
}

func (s *Store) fault(op string) error {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	if err, ok := s.faults[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) allocateID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

// WithinUserLock runs fn against a staging view holding userID's lock. Staged
// writes become visible only if fn and the commit succeed.
func (s *Store) WithinUserLock(ctx context.Context, userID int64, fn func(repo repository.Repository) error) error {
	release, err := s.lockUser(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	uow := &view{store: s, staged: newLedgerState()}
	if err := fn(uow); err != nil {
		return err
	}
	if err := s.fault(OpCommit); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, o := range uow.staged.orders {
		s.ledger.orders[id] = o
	}
	for id, tx := range uow.staged.txs {
		s.ledger.txs[id] = tx
	}
	for k, p := range uow.staged.portfolios {
		s.ledger.portfolios[k] = p
	}
	for id, b := range uow.staged.balances {
		s.ledger.balances[id] = b
	}
	return nil
}

func (s *Store) lockUser(ctx context.Context, userID int64) (func(), error) {
	s.locksMu.Lock()
	ch, ok := s.locks[userID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[userID] = ch
	}
	s.locksMu.Unlock()

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: lock for user %d not acquired within %s", models.ErrConcurrencyConflict, userID, s.lockTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
