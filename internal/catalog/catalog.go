// Package catalog holds companies and their current and historical prices.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/brokerage-ledger/internal/models"
	"github.com/trogers1052/brokerage-ledger/internal/repository"
)

// PriceCache is a read-through cache in front of the stock snapshot table
type PriceCache interface {
	Get(ctx context.Context, companyID int64) (decimal.Decimal, bool, error)
	Set(ctx context.Context, companyID int64, price decimal.Decimal) error
	Invalidate(ctx context.Context, companyID int64) error
}

// Catalog is the StockCatalog. The price feed writes through ApplyQuote; the
// ledger only reads CurrentPrice.
type Catalog struct {
	repo  repository.CatalogRepository
	cache PriceCache
	log   zerolog.Logger
	now   func() time.Time
}

// New creates a Catalog. cache may be nil.
func New(repo repository.CatalogRepository, cache PriceCache, log zerolog.Logger) *Catalog {
	return &Catalog{
		repo:  repo,
		cache: cache,
		log:   log.With().Str("component", "catalog").Logger(),
		now:   time.Now,
	}
}

// CreateCompany validates and stores a new, active company
func (c *Catalog) CreateCompany(ctx context.Context, company *models.Company) error {
	company.Symbol = strings.ToUpper(strings.TrimSpace(company.Symbol))
	company.Name = strings.TrimSpace(company.Name)
	if company.Symbol == "" {
		return models.NewValidationError("symbol", "is required")
	}
	if company.Name == "" {
		return models.NewValidationError("name", "is required")
	}
	if company.MarketCap < 0 {
		return models.NewValidationError("market_cap", "must not be negative")
	}

	now := c.now()
	company.Active = true
	company.DeletedAt = nil
	company.CreatedAt = now
	company.UpdatedAt = now
	if err := c.repo.CreateCompany(ctx, company); err != nil {
		return fmt.Errorf("failed to create company %s: %w", company.Symbol, err)
	}
	return nil
}

// GetCompany returns a company by id
func (c *Catalog) GetCompany(ctx context.Context, id int64) (*models.Company, error) {
	return c.repo.GetCompany(ctx, id)
}

// ListCompanies returns all companies that are not deleted
func (c *Catalog) ListCompanies(ctx context.Context) ([]*models.Company, error) {
	return c.repo.ListCompanies(ctx)
}

// SetActive enables or disables trading in a company
func (c *Catalog) SetActive(ctx context.Context, id int64, active bool) error {
	return c.repo.SetCompanyActive(ctx, id, active)
}

// DeleteCompany soft-deletes a company together with its stock snapshot and price history
func (c *Catalog) DeleteCompany(ctx context.Context, id int64) error {
	if err := c.repo.SoftDeleteCompany(ctx, id, c.now()); err != nil {
		return fmt.Errorf("failed to delete company %d: %w", id, err)
	}
	c.invalidate(ctx, id)
	return nil
}

// CurrentPrice returns the latest known price. It fails with
// models.ErrPriceUnavailable when the company has no snapshot.
func (c *Catalog) CurrentPrice(ctx context.Context, companyID int64) (decimal.Decimal, error) {
	if c.cache != nil {
		price, ok, err := c.cache.Get(ctx, companyID)
		if err != nil {
			c.log.Warn().Err(err).Int64("company_id", companyID).Msg("price cache read failed")
		} else if ok {
			return price, nil
		}
	}

	stock, err := c.repo.GetStock(ctx, companyID)
	if errors.Is(err, models.ErrNotFound) {
		return decimal.Zero, fmt.Errorf("%w: company %d", models.ErrPriceUnavailable, companyID)
	}
	if err != nil {
		return decimal.Zero, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, companyID, stock.CurrentPrice); err != nil {
			c.log.Warn().Err(err).Int64("company_id", companyID).Msg("price cache write failed")
		}
	}
	return stock.CurrentPrice, nil
}

// GetStock returns the current snapshot of a company
func (c *Catalog) GetStock(ctx context.Context, companyID int64) (*models.Stock, error) {
	return c.repo.GetStock(ctx, companyID)
}

// History returns the daily price points of a company between from and to inclusive
func (c *Catalog) History(ctx context.Context, companyID int64, from, to time.Time) ([]*models.StockPrice, error) {
	if to.Before(from) {
		return nil, models.NewValidationError("to", "must not be before from")
	}
	return c.repo.ListStockPrices(ctx, companyID, models.TradingDay(from), models.TradingDay(to))
}

// ApplyQuote records a price observation: it moves the snapshot forward and
// folds the quote into that day's history row. Quotes older than the snapshot
// are ignored and the current snapshot is returned.
func (c *Catalog) ApplyQuote(ctx context.Context, q models.PriceQuote) (*models.Stock, error) {
	if !q.Price.IsPositive() {
		return nil, models.NewValidationError("price", "must be positive")
	}
	if q.Volume < 0 {
		return nil, models.NewValidationError("volume", "must not be negative")
	}
	if q.At.IsZero() {
		q.At = c.now()
	}

	company, err := c.resolveCompany(ctx, q)
	if err != nil {
		return nil, err
	}
	if company.DeletedAt != nil {
		return nil, models.NewValidationError("company_id", "company is deleted")
	}

	stock, err := c.repo.GetStock(ctx, company.ID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		stock = &models.Stock{
			CompanyID:     company.ID,
			CurrentPrice:  q.Price,
			PreviousPrice: q.Price,
			DayHigh:       q.Price,
			DayLow:        q.Price,
		}
	case err != nil:
		return nil, err
	default:
		if q.At.Before(stock.LastUpdated) {
			c.log.Debug().Int64("company_id", company.ID).Time("quote_at", q.At).Msg("Ignoring stale quote")
			return stock, nil
		}
		sameDay := models.TradingDay(stock.LastUpdated).Equal(models.TradingDay(q.At))
		stock.PreviousPrice = stock.CurrentPrice
		stock.CurrentPrice = q.Price
		if sameDay {
			stock.DayHigh = decimal.Max(stock.DayHigh, q.Price)
			stock.DayLow = decimal.Min(stock.DayLow, q.Price)
		} else {
			stock.DayHigh = q.Price
			stock.DayLow = q.Price
		}
	}

	stock.Volume = q.Volume
	stock.ChangeAmount = stock.CurrentPrice.Sub(stock.PreviousPrice)
	stock.ChangePercent = decimal.Zero
	if !stock.PreviousPrice.IsZero() {
		stock.ChangePercent = stock.ChangeAmount.Div(stock.PreviousPrice).Mul(decimal.NewFromInt(100)).Round(4)
	}
	stock.LastUpdated = q.At

	if err := c.repo.UpsertStock(ctx, stock); err != nil {
		return nil, fmt.Errorf("failed to save stock snapshot for company %d: %w", company.ID, err)
	}
	if err := c.recordDailyPrice(ctx, company.ID, q); err != nil {
		return nil, err
	}
	c.invalidate(ctx, company.ID)

	c.log.Debug().
		Int64("company_id", company.ID).
		Str("price", q.Price.String()).
		Msg("Applied price quote")
	return stock, nil
}

func (c *Catalog) resolveCompany(ctx context.Context, q models.PriceQuote) (*models.Company, error) {
	if q.CompanyID != 0 {
		return c.repo.GetCompany(ctx, q.CompanyID)
	}
	if q.Symbol != "" {
		return c.repo.GetCompanyBySymbol(ctx, strings.ToUpper(q.Symbol))
	}
	return nil, models.NewValidationError("company_id", "company_id or symbol is required")
}

func (c *Catalog) recordDailyPrice(ctx context.Context, companyID int64, q models.PriceQuote) error {
	day := models.TradingDay(q.At)
	point, err := c.repo.GetStockPrice(ctx, companyID, day)
	switch {
	case errors.Is(err, models.ErrNotFound):
		point = &models.StockPrice{
			CompanyID: companyID,
			Date:      day,
			Open:      q.Price,
			High:      q.Price,
			Low:       q.Price,
		}
	case err != nil:
		return fmt.Errorf("failed to get daily price for company %d: %w", companyID, err)
	default:
		point.High = decimal.Max(point.High, q.Price)
		point.Low = decimal.Min(point.Low, q.Price)
	}
	point.Close = q.Price
	point.Volume = q.Volume

	if err := c.repo.UpsertStockPrice(ctx, point); err != nil {
		return fmt.Errorf("failed to save daily price for company %d: %w", companyID, err)
	}
	return nil
}

func (c *Catalog) invalidate(ctx context.Context, companyID int64) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, companyID); err != nil {
		c.log.Warn().Err(err).Int64("company_id", companyID).Msg("price cache invalidate failed")
	}
}
