// Package repository defines the storage contracts the ledger core is written against.
package repository

import (
	"context"
	"time"

	"github.com/trogers1052/brokerage-ledger/internal/models"
)

// OrderRepository persists orders
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	UpdateOrderStatus(ctx context.Context, o *models.Order) error
	ListOrdersByUser(ctx context.Context, userID int64, status *models.OrderStatus) ([]*models.Order, error)
}

// TransactionRepository persists ledger entries
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	TransactionIDExists(ctx context.Context, transactionID string) (bool, error)
	// UpdateTransaction writes status, override, notes and processor fields
	UpdateTransaction(ctx context.Context, tx *models.Transaction) error
	ListTransactionsByUser(ctx context.Context, userID int64) ([]*models.Transaction, error)
}

// PortfolioRepository persists positions and balances
type PortfolioRepository interface {
	GetPortfolio(ctx context.Context, userID, companyID int64) (*models.Portfolio, error)
	SavePortfolio(ctx context.Context, p *models.Portfolio) error
	ListPortfolios(ctx context.Context, userID int64) ([]*models.Portfolio, error)
	ListHolders(ctx context.Context, companyID int64) ([]int64, error)
	GetAccountBalance(ctx context.Context, userID int64) (*models.AccountBalance, error)
	SaveAccountBalance(ctx context.Context, b *models.AccountBalance) error
}

// UserRepository persists the KYC-relevant view of users
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateKYCStatus(ctx context.Context, id int64, status models.KYCStatus) error
}

// CatalogRepository persists companies and prices
type CatalogRepository interface {
	CreateCompany(ctx context.Context, c *models.Company) error
	GetCompany(ctx context.Context, id int64) (*models.Company, error)
	GetCompanyBySymbol(ctx context.Context, symbol string) (*models.Company, error)
	ListCompanies(ctx context.Context) ([]*models.Company, error)
	SetCompanyActive(ctx context.Context, id int64, active bool) error
	// SoftDeleteCompany marks the company deleted and removes its stock snapshot and price history
	SoftDeleteCompany(ctx context.Context, id int64, at time.Time) error
	GetStock(ctx context.Context, companyID int64) (*models.Stock, error)
	UpsertStock(ctx context.Context, s *models.Stock) error
	UpsertStockPrice(ctx context.Context, p *models.StockPrice) error
	GetStockPrice(ctx context.Context, companyID int64, day time.Time) (*models.StockPrice, error)
	ListStockPrices(ctx context.Context, companyID int64, from, to time.Time) ([]*models.StockPrice, error)
}

// Repository is the full read/write surface. Writes made through it outside a
// unit of work commit individually.
type Repository interface {
	OrderRepository
	TransactionRepository
	PortfolioRepository
	UserRepository
	CatalogRepository
}

// Store adds the per-user unit of work. WithinUserLock runs fn holding the
// user's exclusive lock; every write fn makes through repo commits together or
// not at all. Lock acquisition that exceeds the store's timeout fails with
// models.ErrConcurrencyConflict.
type Store interface {
	Repository
	WithinUserLock(ctx context.Context, userID int64, fn func(repo Repository) error) error
}
