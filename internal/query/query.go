package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ledu55/portfolio-tracker/config"
	"github.com/Ledu55/portfolio-tracker/internal/model"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// ErrNotReady marks a conditional query whose key is not present yet
// (e.g. a portfolio query before any portfolio is selected).
var ErrNotReady = errors.New("query not ready")

type PortfolioStore interface {
	FetchPortfolios(ctx context.Context) error
	FetchPortfolioByID(ctx context.Context, id int64) error
	FetchTransactions(ctx context.Context, portfolioID int64) error
	CreatePortfolio(ctx context.Context, req model.PortfolioCreate) error
	UpdatePortfolio(ctx context.Context, id int64, req model.PortfolioUpdate) error
	DeletePortfolio(ctx context.Context, id int64) error
	CreateTransaction(ctx context.Context, req model.TransactionCreate) error
	UpdateTransaction(ctx context.Context, id int64, req model.TransactionUpdate) error
	DeleteTransaction(ctx context.Context, id int64) error
	Portfolios() []model.PortfolioWithStats
	CurrentPortfolio() *model.PortfolioWithStats
	Transactions() (int64, []model.Transaction)
}

type MarketStore interface {
	FetchMarketSummary(ctx context.Context) (model.MarketSummary, error)
	FetchPopularSymbols(ctx context.Context, market string) (map[string]string, error)
	SearchSymbols(ctx context.Context, market, query string) ([]string, error)
	ValidateSymbol(ctx context.Context, symbol string) (model.SymbolValidation, error)
	FetchCurrentPrices(ctx context.Context, symbols []string) (model.CurrentPrices, error)
	FetchHistoricalData(ctx context.Context, symbol, period string) (model.HistoricalData, error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, portfolios []model.PortfolioWithStats, transactions []model.Transaction) (fileBytes []byte, fileExtension string, err error)
}

// Coordinator is the consumer-facing policy layer over the stores:
// per-key deduplication of concurrent fetches, staleness windows for
// the entity cache, conditional execution for queries keyed on an
// optional id. It holds no entity state of its own, only in-flight
// and freshness bookkeeping.
type Coordinator struct {
	cfg        *config.Config
	portfolios PortfolioStore
	market     MarketStore
	reports    ReportGenerator

	group singleflight.Group
	now   func() time.Time

	mu        sync.Mutex
	fetchedAt map[string]time.Time
}

func New(cfg *config.Config, portfolios PortfolioStore, market MarketStore, reports ReportGenerator) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		portfolios: portfolios,
		market:     market,
		reports:    reports,
		now:        time.Now,
		fetchedAt:  make(map[string]time.Time),
	}
}

func (c *Coordinator) Portfolios(ctx context.Context) ([]model.PortfolioWithStats, error) {
	err := c.fetchThrough(ctx, "portfolios", c.cfg.Cache.PortfoliosExpiration, func(ctx context.Context) error {
		return c.portfolios.FetchPortfolios(ctx)
	})
	if err != nil {
		return nil, err
	}
	return c.portfolios.Portfolios(), nil
}

func (c *Coordinator) Portfolio(ctx context.Context, id int64) (*model.PortfolioWithStats, error) {
	if id == 0 {
		return nil, ErrNotReady
	}

	key := fmt.Sprintf("portfolio:%d", id)
	err := c.fetchThrough(ctx, key, c.cfg.Cache.PortfolioExpiration, func(ctx context.Context) error {
		return c.portfolios.FetchPortfolioByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return c.portfolios.CurrentPortfolio(), nil
}

func (c *Coordinator) Transactions(ctx context.Context, portfolioID int64) ([]model.Transaction, error) {
	if portfolioID == 0 {
		return nil, ErrNotReady
	}

	key := fmt.Sprintf("transactions:%d", portfolioID)
	fetch := func(ctx context.Context) error {
		return c.portfolios.FetchTransactions(ctx, portfolioID)
	}

	if err := c.fetchThrough(ctx, key, c.cfg.Cache.TransactionsExpiration, fetch); err != nil {
		return nil, err
	}

	cachedID, transactions := c.portfolios.Transactions()
	if cachedID != portfolioID {
		// The store holds one transaction slot: a fetch for another
		// portfolio overwrote it while this key was still inside its
		// window. Refetch instead of waiting the window out.
		c.markStale(key)
		if err := c.fetchThrough(ctx, key, c.cfg.Cache.TransactionsExpiration, fetch); err != nil {
			return nil, err
		}

		cachedID, transactions = c.portfolios.Transactions()
		if cachedID != portfolioID {
			return nil, ErrNotReady
		}
	}
	return transactions, nil
}

// Dashboard rolls the server-provided portfolio stats up into one
// summary. It never recomputes per-position figures.
func (c *Coordinator) Dashboard(ctx context.Context) (model.DashboardSummary, error) {
	portfolios, err := c.Portfolios(ctx)
	if err != nil {
		return model.DashboardSummary{}, err
	}

	summary := model.DashboardSummary{PortfoliosCount: len(portfolios)}
	for _, p := range portfolios {
		summary.TotalValue = summary.TotalValue.Add(p.TotalValue)
		summary.TotalInvested = summary.TotalInvested.Add(p.TotalInvested)
		summary.TotalPnl = summary.TotalPnl.Add(p.TotalPnl)
	}
	if summary.TotalInvested.IsPositive() {
		summary.TotalPnlPercentage = summary.TotalPnl.
			Div(summary.TotalInvested).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}

	return summary, nil
}

func (c *Coordinator) CreatePortfolio(ctx context.Context, req model.PortfolioCreate) error {
	if err := c.portfolios.CreatePortfolio(ctx, req); err != nil {
		return err
	}
	c.markFresh("portfolios")
	return nil
}

func (c *Coordinator) UpdatePortfolio(ctx context.Context, id int64, req model.PortfolioUpdate) error {
	if err := c.portfolios.UpdatePortfolio(ctx, id, req); err != nil {
		return err
	}
	c.markFresh("portfolios", fmt.Sprintf("portfolio:%d", id))
	return nil
}

func (c *Coordinator) DeletePortfolio(ctx context.Context, id int64) error {
	if err := c.portfolios.DeletePortfolio(ctx, id); err != nil {
		return err
	}
	c.markFresh("portfolios")
	c.markStale(fmt.Sprintf("portfolio:%d", id), fmt.Sprintf("transactions:%d", id))
	return nil
}

func (c *Coordinator) CreateTransaction(ctx context.Context, req model.TransactionCreate) error {
	if err := c.portfolios.CreateTransaction(ctx, req); err != nil {
		return err
	}
	c.markFresh(
		"portfolios",
		fmt.Sprintf("portfolio:%d", req.PortfolioID),
		fmt.Sprintf("transactions:%d", req.PortfolioID),
	)
	return nil
}

func (c *Coordinator) UpdateTransaction(ctx context.Context, id int64, req model.TransactionUpdate) error {
	if err := c.portfolios.UpdateTransaction(ctx, id, req); err != nil {
		return err
	}
	c.markFreshAfterTransaction()
	return nil
}

func (c *Coordinator) DeleteTransaction(ctx context.Context, id int64) error {
	if err := c.portfolios.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	c.markFreshAfterTransaction()
	return nil
}

func (c *Coordinator) MarketSummary(ctx context.Context) (model.MarketSummary, error) {
	result, err, _ := c.group.Do("market-summary", func() (any, error) {
		return c.market.FetchMarketSummary(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(model.MarketSummary), nil
}

func (c *Coordinator) PopularSymbols(ctx context.Context, market string) (map[string]string, error) {
	result, err, _ := c.group.Do("popular-symbols:"+market, func() (any, error) {
		return c.market.FetchPopularSymbols(ctx, market)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]string), nil
}

func (c *Coordinator) SearchSymbols(ctx context.Context, market, query string) ([]string, error) {
	return c.market.SearchSymbols(ctx, market, query)
}

func (c *Coordinator) ValidateSymbol(ctx context.Context, symbol string) (model.SymbolValidation, error) {
	result, err, _ := c.group.Do("validate:"+symbol, func() (any, error) {
		return c.market.ValidateSymbol(ctx, symbol)
	})
	if err != nil {
		return model.SymbolValidation{}, err
	}
	return result.(model.SymbolValidation), nil
}

func (c *Coordinator) CurrentPrices(ctx context.Context, symbols []string) (model.CurrentPrices, error) {
	if len(symbols) == 0 {
		return nil, ErrNotReady
	}

	result, err, _ := c.group.Do("prices:"+fmt.Sprint(symbols), func() (any, error) {
		return c.market.FetchCurrentPrices(ctx, symbols)
	})
	if err != nil {
		return nil, err
	}
	return result.(model.CurrentPrices), nil
}

func (c *Coordinator) HistoricalData(ctx context.Context, symbol, period string) (model.HistoricalData, error) {
	if symbol == "" {
		return model.HistoricalData{}, ErrNotReady
	}

	result, err, _ := c.group.Do("historical:"+symbol+":"+period, func() (any, error) {
		return c.market.FetchHistoricalData(ctx, symbol, period)
	})
	if err != nil {
		return model.HistoricalData{}, err
	}
	return result.(model.HistoricalData), nil
}

// ExportPortfolioReport dumps the cached portfolio list and the
// focused portfolio's transactions into a spreadsheet.
func (c *Coordinator) ExportPortfolioReport(ctx context.Context) ([]byte, string, error) {
	portfolios, err := c.Portfolios(ctx)
	if err != nil {
		return nil, "", err
	}

	var transactions []model.Transaction
	if current := c.portfolios.CurrentPortfolio(); current != nil {
		transactions, err = c.Transactions(ctx, current.ID)
		if err != nil {
			return nil, "", err
		}
	}

	return c.reports.Generate(ctx, portfolios, transactions)
}

// fetchThrough deduplicates concurrent fetches per key and skips the
// fetch entirely while the last one is inside its window. Concurrent
// callers for the same key share one in-flight request.
func (c *Coordinator) fetchThrough(ctx context.Context, key string, window time.Duration, fetch func(ctx context.Context) error) error {
	c.mu.Lock()
	last, ok := c.fetchedAt[key]
	c.mu.Unlock()

	if ok && c.now().Sub(last) < window {
		return nil
	}

	_, err, _ := c.group.Do(key, func() (any, error) {
		if err := fetch(ctx); err != nil {
			return nil, err
		}
		c.markFresh(key)
		return nil, nil
	})
	return err
}

func (c *Coordinator) markFresh(keys ...string) {
	now := c.now()
	c.mu.Lock()
	for _, key := range keys {
		c.fetchedAt[key] = now
	}
	c.mu.Unlock()
}

func (c *Coordinator) markStale(keys ...string) {
	c.mu.Lock()
	for _, key := range keys {
		delete(c.fetchedAt, key)
	}
	c.mu.Unlock()
}

// markFreshAfterTransaction records freshness for exactly the views
// the entity store refreshed in its fan-out. The owning portfolio is
// read back from the transaction slot, not assumed to be the focused
// one: the store may have resolved the owner from its cached list. The
// owner's stats key is refreshed only when the owner is focused,
// matching the store's fan-out.
func (c *Coordinator) markFreshAfterTransaction() {
	keys := []string{"portfolios"}
	if owner, _ := c.portfolios.Transactions(); owner != 0 {
		keys = append(keys, fmt.Sprintf("transactions:%d", owner))
		if current := c.portfolios.CurrentPortfolio(); current != nil && current.ID == owner {
			keys = append(keys, fmt.Sprintf("portfolio:%d", owner))
		}
	}
	c.markFresh(keys...)
}

// Reset drops the freshness bookkeeping so the next query of every
// key refetches. Wired to session end.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.fetchedAt = make(map[string]time.Time)
	c.mu.Unlock()
}
