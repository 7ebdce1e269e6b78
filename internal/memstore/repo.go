package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/trogers1052/brokerage-ledger/internal/models"
)

// view reads through staged rows to the committed state. With staged == nil it
// writes straight to the committed state.
type view struct {
	store  *Store
	staged *ledgerState
}

// orders

func (v *view) CreateOrder(_ context.Context, o *models.Order) error {
	if err := v.store.fault("CreateOrder"); err != nil {
		return err
	}
	exists, _ := v.OrderNumberExists(context.Background(), o.OrderNumber)
	if exists {
		return models.NewValidationError("order_number", "already exists")
	}
	o.ID = v.store.allocateID()
	v.putOrder(o.Clone())
	return nil
}

func (v *view) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	if err := v.store.fault("GetOrder"); err != nil {
		return nil, err
	}
	if v.staged != nil {
		if o, ok := v.staged.orders[id]; ok {
			return o.Clone(), nil
		}
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	o, ok := v.store.ledger.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	return o.Clone(), nil
}

func (v *view) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	for _, o := range v.allOrders() {
		if o.OrderNumber == number {
			return v.GetOrder(ctx, o.ID)
		}
	}
	return nil, fmt.Errorf("order %s: %w", number, models.ErrNotFound)
}

func (v *view) OrderNumberExists(_ context.Context, number string) (bool, error) {
	for _, o := range v.allOrders() {
		if o.OrderNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (v *view) UpdateOrderStatus(ctx context.Context, o *models.Order) error {
	if err := v.store.fault("UpdateOrderStatus"); err != nil {
		return err
	}
	if _, err := v.GetOrder(ctx, o.ID); err != nil {
		return err
	}
	v.putOrder(o.Clone())
	return nil
}

func (v *view) ListOrdersByUser(_ context.Context, userID int64, status *models.OrderStatus) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range v.allOrders() {
		if o.UserID != userID {
			continue
		}
		if status != nil && o.Status != *status {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) putOrder(o *models.Order) {
	if v.staged != nil {
		v.staged.orders[o.ID] = o
		return
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	v.store.ledger.orders[o.ID] = o
}

func (v *view) allOrders() []*models.Order {
	v.store.mu.RLock()
	merged := make(map[int64]*models.Order, len(v.store.ledger.orders))
	for id, o := range v.store.ledger.orders {
		merged[id] = o
	}
	v.store.mu.RUnlock()
	if v.staged != nil {
		for id, o := range v.staged.orders {
			merged[id] = o
		}
	}
	out := make([]*models.Order, 0, len(merged))
	for _, o := range merged {
		out = append(out, o)
	}
	return out
}

// transactions

func (v *view) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	if err := v.store.fault("CreateTransaction"); err != nil {
		return err
	}
	exists, _ := v.TransactionIDExists(context.Background(), tx.TransactionID)
	if exists {
		return models.NewValidationError("transaction_id", "already exists")
	}
	tx.ID = v.store.allocateID()
	v.putTransaction(tx.Clone())
	return nil
}

func (v *view) GetTransaction(_ context.Context, id int64) (*models.Transaction, error) {
	if err := v.store.fault("GetTransaction"); err != nil {
		return nil, err
	}
	if v.staged != nil {
		if tx, ok := v.staged.txs[id]; ok {
			return tx.Clone(), nil
		}
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	tx, ok := v.store.ledger.txs[id]
	if !ok {
		return nil, fmt.Errorf("transaction %d: %w", id, models.ErrNotFound)
	}
	return tx.Clone(), nil
}

func (v *view) TransactionIDExists(_ context.Context, transactionID string) (bool, error) {
	for _, tx := range v.allTransactions() {
		if tx.TransactionID == transactionID {
			return true, nil
		}
	}
	return false, nil
}

func (v *view) UpdateTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := v.store.fault("UpdateTransaction"); err != nil {
		return err
	}
	if _, err := v.GetTransaction(ctx, tx.ID); err != nil {
		return err
	}
	v.putTransaction(tx.Clone())
	return nil
}

func (v *view) ListTransactionsByUser(_ context.Context, userID int64) ([]*models.Transaction, error) {
	if err := v.store.fault("ListTransactionsByUser"); err != nil {
		return nil, err
	}
	var out []*models.Transaction
	for _, tx := range v.allTransactions() {
		if tx.UserID == userID {
			out = append(out, tx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) putTransaction(tx *models.Transaction) {
	if v.staged != nil {
		v.staged.txs[tx.ID] = tx
		return
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	v.store.ledger.txs[tx.ID] = tx
}

func (v *view) allTransactions() []*models.Transaction {
	v.store.mu.RLock()
	merged := make(map[int64]*models.Transaction, len(v.store.ledger.txs))
	for id, tx := range v.store.ledger.txs {
		merged[id] = tx
	}
	v.store.mu.RUnlock()
	if v.staged != nil {
		for id, tx := range v.staged.txs {
			merged[id] = tx
		}
	}
	out := make([]*models.Transaction, 0, len(merged))
	for _, tx := range merged {
		out = append(out, tx)
	}
	return out
}

// portfolios and balances

func (v *view) GetPortfolio(_ context.Context, userID, companyID int64) (*models.Portfolio, error) {
	if err := v.store.fault("GetPortfolio"); err != nil {
		return nil, err
	}
	key := positionKey{userID: userID, companyID: companyID}
	if v.staged != nil {
		if p, ok := v.staged.portfolios[key]; ok {
			return p.Clone(), nil
		}
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	p, ok := v.store.ledger.portfolios[key]
	if !ok {
		return nil, fmt.Errorf("portfolio for user %d company %d: %w", userID, companyID, models.ErrNotFound)
	}
	return p.Clone(), nil
}

func (v *view) SavePortfolio(_ context.Context, p *models.Portfolio) error {
	if err := v.store.fault("SavePortfolio"); err != nil {
		return err
	}
	if p.ID == 0 {
		p.ID = v.store.allocateID()
	}
	key := positionKey{userID: p.UserID, companyID: p.CompanyID}
	if v.staged != nil {
		v.staged.portfolios[key] = p.Clone()
		return nil
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	v.store.ledger.portfolios[key] = p.Clone()
	return nil
}

func (v *view) ListPortfolios(_ context.Context, userID int64) ([]*models.Portfolio, error) {
	if err := v.store.fault("ListPortfolios"); err != nil {
		return nil, err
	}
	var out []*models.Portfolio
	for k, p := range v.allPortfolios() {
		if k.userID == userID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID < out[j].CompanyID })
	return out, nil
}

func (v *view) ListHolders(_ context.Context, companyID int64) ([]int64, error) {
	var out []int64
	for k, p := range v.allPortfolios() {
		if k.companyID == companyID && p.SharesOwned > 0 {
			out = append(out, k.userID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (v *view) allPortfolios() map[positionKey]*models.Portfolio {
	v.store.mu.RLock()
	merged := make(map[positionKey]*models.Portfolio, len(v.store.ledger.portfolios))
	for k, p := range v.store.ledger.portfolios {
		merged[k] = p
	}
	v.store.mu.RUnlock()
	if v.staged != nil {
		for k, p := range v.staged.portfolios {
			merged[k] = p
		}
	}
	return merged
}

func (v *view) GetAccountBalance(_ context.Context, userID int64) (*models.AccountBalance, error) {
	if err := v.store.fault("GetAccountBalance"); err != nil {
		return nil, err
	}
	if v.staged != nil {
		if b, ok := v.staged.balances[userID]; ok {
			return b.Clone(), nil
		}
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	b, ok := v.store.ledger.balances[userID]
	if !ok {
		return nil, fmt.Errorf("balance for user %d: %w", userID, models.ErrNotFound)
	}
	return b.Clone(), nil
}

func (v *view) SaveAccountBalance(_ context.Context, b *models.AccountBalance) error {
	if err := v.store.fault("SaveAccountBalance"); err != nil {
		return err
	}
	if b.ID == 0 {
		b.ID = v.store.allocateID()
	}
	if v.staged != nil {
		v.staged.balances[b.UserID] = b.Clone()
		return nil
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	v.store.ledger.balances[b.UserID] = b.Clone()
	return nil
}

// users

func (v *view) CreateUser(_ context.Context, u *models.User) error {
	if err := v.store.fault("CreateUser"); err != nil {
		return err
	}
	id := v.store.allocateID()
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	for _, existing := range v.store.users {
		if existing.Email == u.Email {
			return models.NewValidationError("email", "already exists")
		}
	}
	u.ID = id
	c := *u
	v.store.users[u.ID] = &c
	return nil
}

func (v *view) GetUser(_ context.Context, id int64) (*models.User, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	u, ok := v.store.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (v *view) UpdateKYCStatus(_ context.Context, id int64, status models.KYCStatus) error {
	if err := v.store.fault("UpdateKYCStatus"); err != nil {
		return err
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	u, ok := v.store.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	u.KYCStatus = status
	u.UpdatedAt = time.Now()
	return nil
}

// catalog

func (v *view) CreateCompany(_ context.Context, c *models.Company) error {
	if err := v.store.fault("CreateCompany"); err != nil {
		return err
	}
	id := v.store.allocateID()
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	for _, existing := range v.store.companies {
		if existing.DeletedAt == nil && strings.EqualFold(existing.Symbol, c.Symbol) {
			return models.NewValidationError("symbol", "already exists")
		}
	}
	c.ID = id
	cp := *c
	v.store.companies[c.ID] = &cp
	return nil
}

func (v *view) GetCompany(_ context.Context, id int64) (*models.Company, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	c, ok := v.store.companies[id]
	if !ok {
		return nil, fmt.Errorf("company %d: %w", id, models.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (v *view) GetCompanyBySymbol(_ context.Context, symbol string) (*models.Company, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	for _, c := range v.store.companies {
		if c.DeletedAt == nil && strings.EqualFold(c.Symbol, symbol) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("company %s: %w", symbol, models.ErrNotFound)
}

func (v *view) ListCompanies(_ context.Context) ([]*models.Company, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	var out []*models.Company
	for _, c := range v.store.companies {
		if c.DeletedAt == nil {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (v *view) SetCompanyActive(_ context.Context, id int64, active bool) error {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	c, ok := v.store.companies[id]
	if !ok || c.DeletedAt != nil {
		return fmt.Errorf("company %d: %w", id, models.ErrNotFound)
	}
	c.Active = active
	c.UpdatedAt = time.Now()
	return nil
}

func (v *view) SoftDeleteCompany(_ context.Context, id int64, at time.Time) error {
	if err := v.store.fault("SoftDeleteCompany"); err != nil {
		return err
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	c, ok := v.store.companies[id]
	if !ok || c.DeletedAt != nil {
		return fmt.Errorf("company %d: %w", id, models.ErrNotFound)
	}
	c.DeletedAt = &at
	c.Active = false
	c.UpdatedAt = at
	delete(v.store.stocks, id)
	for k := range v.store.prices {
		if k.companyID == id {
			delete(v.store.prices, k)
		}
	}
	return nil
}

func (v *view) GetStock(_ context.Context, companyID int64) (*models.Stock, error) {
	if err := v.store.fault("GetStock"); err != nil {
		return nil, err
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	s, ok := v.store.stocks[companyID]
	if !ok {
		return nil, fmt.Errorf("stock for company %d: %w", companyID, models.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (v *view) UpsertStock(_ context.Context, s *models.Stock) error {
	if err := v.store.fault("UpsertStock"); err != nil {
		return err
	}
	if s.ID == 0 {
		s.ID = v.store.allocateID()
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	cp := *s
	v.store.stocks[s.CompanyID] = &cp
	return nil
}

func (v *view) UpsertStockPrice(_ context.Context, p *models.StockPrice) error {
	if err := v.store.fault("UpsertStockPrice"); err != nil {
		return err
	}
	key := priceKey{companyID: p.CompanyID, day: models.TradingDay(p.Date)}
	v.store.mu.RLock()
	existing, ok := v.store.prices[key]
	v.store.mu.RUnlock()
	if ok {
		p.ID = existing.ID
	} else if p.ID == 0 {
		p.ID = v.store.allocateID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.Date = key.day
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	cp := *p
	v.store.prices[key] = &cp
	return nil
}

func (v *view) GetStockPrice(_ context.Context, companyID int64, day time.Time) (*models.StockPrice, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	p, ok := v.store.prices[priceKey{companyID: companyID, day: models.TradingDay(day)}]
	if !ok {
		return nil, fmt.Errorf("price for company %d on %s: %w", companyID, day.Format("2006-01-02"), models.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (v *view) ListStockPrices(_ context.Context, companyID int64, from, to time.Time) ([]*models.StockPrice, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	var out []*models.StockPrice
	for k, p := range v.store.prices {
		if k.companyID != companyID || k.day.Before(from) || k.day.After(to) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
