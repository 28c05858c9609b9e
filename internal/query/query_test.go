package query

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ledu55/portfolio-tracker/config"
	"github.com/Ledu55/portfolio-tracker/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePortfolioStore struct {
	mu            sync.Mutex
	portfolios    []model.PortfolioWithStats
	current       *model.PortfolioWithStats
	txPortfolioID int64

	fetchPortfoliosCalls   atomic.Int64
	fetchByIDCalls         atomic.Int64
	fetchTransactionsCalls atomic.Int64

	// fetch blocks on gate when set, to pile up concurrent callers
	gate chan struct{}
}

func (f *fakePortfolioStore) FetchPortfolios(_ context.Context) error {
	f.fetchPortfoliosCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return nil
}

func (f *fakePortfolioStore) FetchPortfolioByID(_ context.Context, id int64) error {
	f.fetchByIDCalls.Add(1)
	f.mu.Lock()
	f.current = &model.PortfolioWithStats{Portfolio: model.Portfolio{ID: id}}
	f.mu.Unlock()
	return nil
}

func (f *fakePortfolioStore) FetchTransactions(_ context.Context, portfolioID int64) error {
	f.fetchTransactionsCalls.Add(1)
	f.mu.Lock()
	f.txPortfolioID = portfolioID
	f.mu.Unlock()
	return nil
}

func (f *fakePortfolioStore) CreatePortfolio(_ context.Context, _ model.PortfolioCreate) error {
	return nil
}

func (f *fakePortfolioStore) UpdatePortfolio(_ context.Context, _ int64, _ model.PortfolioUpdate) error {
	return nil
}

func (f *fakePortfolioStore) DeletePortfolio(_ context.Context, _ int64) error { return nil }

func (f *fakePortfolioStore) CreateTransaction(_ context.Context, _ model.TransactionCreate) error {
	return nil
}

func (f *fakePortfolioStore) UpdateTransaction(_ context.Context, _ int64, _ model.TransactionUpdate) error {
	return nil
}

func (f *fakePortfolioStore) DeleteTransaction(_ context.Context, _ int64) error { return nil }

func (f *fakePortfolioStore) Portfolios() []model.PortfolioWithStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.PortfolioWithStats(nil), f.portfolios...)
}

func (f *fakePortfolioStore) CurrentPortfolio() *model.PortfolioWithStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakePortfolioStore) Transactions() (int64, []model.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txPortfolioID, nil
}

type fakeMarketStore struct{}

func (f *fakeMarketStore) FetchMarketSummary(_ context.Context) (model.MarketSummary, error) {
	return model.MarketSummary{}, nil
}

func (f *fakeMarketStore) FetchPopularSymbols(_ context.Context, _ string) (map[string]string, error) {
	return nil, nil
}

func (f *fakeMarketStore) SearchSymbols(_ context.Context, _, _ string) ([]string, error) {
	return nil, nil
}

func (f *fakeMarketStore) ValidateSymbol(_ context.Context, symbol string) (model.SymbolValidation, error) {
	return model.SymbolValidation{Symbol: symbol, IsValid: true}, nil
}

func (f *fakeMarketStore) FetchCurrentPrices(_ context.Context, _ []string) (model.CurrentPrices, error) {
	return model.CurrentPrices{}, nil
}

func (f *fakeMarketStore) FetchHistoricalData(_ context.Context, _, _ string) (model.HistoricalData, error) {
	return model.HistoricalData{}, nil
}

type fakeReports struct{}

func (f *fakeReports) Generate(_ context.Context, _ []model.PortfolioWithStats, _ []model.Transaction) ([]byte, string, error) {
	return []byte("xlsx"), ".xlsx", nil
}

func coordinatorConfig() *config.Config {
	return &config.Config{
		Cache: config.Cache{
			PortfoliosExpiration:   5 * time.Minute,
			PortfolioExpiration:    2 * time.Minute,
			TransactionsExpiration: 2 * time.Minute,
		},
	}
}

func newTestCoordinator(store *fakePortfolioStore) (*Coordinator, *time.Time) {
	c := New(coordinatorConfig(), store, &fakeMarketStore{}, &fakeReports{})
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestPortfoliosDeduplicatesConcurrentCallers(t *testing.T) {
	store := &fakePortfolioStore{gate: make(chan struct{})}
	c, _ := newTestCoordinator(store)

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Portfolios(context.Background())
		}()
	}

	// Let all callers pile onto the in-flight fetch, then release it.
	for store.fetchPortfoliosCalls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	assert.Equal(t, int64(1), store.fetchPortfoliosCalls.Load(), "concurrent callers for one key share one request")
}

func TestPortfoliosStalenessWindow(t *testing.T) {
	store := &fakePortfolioStore{}
	c, now := newTestCoordinator(store)

	_, err := c.Portfolios(context.Background())
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	_, err = c.Portfolios(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), store.fetchPortfoliosCalls.Load())

	*now = now.Add(5 * time.Minute)
	_, err = c.Portfolios(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), store.fetchPortfoliosCalls.Load())
}

func TestConditionalQueriesWaitForKey(t *testing.T) {
	store := &fakePortfolioStore{}
	c, _ := newTestCoordinator(store)

	_, err := c.Portfolio(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = c.Transactions(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = c.HistoricalData(context.Background(), "", "6mo")
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = c.CurrentPrices(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotReady)

	assert.Zero(t, store.fetchByIDCalls.Load())
	assert.Zero(t, store.fetchTransactionsCalls.Load())
}

func TestPortfolioQueryRunsOncePresent(t *testing.T) {
	store := &fakePortfolioStore{}
	c, _ := newTestCoordinator(store)

	p, err := c.Portfolio(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(3), p.ID)
	assert.Equal(t, int64(1), store.fetchByIDCalls.Load())
}

func TestDashboardRollup(t *testing.T) {
	store := &fakePortfolioStore{portfolios: []model.PortfolioWithStats{
		{
			Portfolio:     model.Portfolio{ID: 1, Name: "Growth"},
			TotalValue:    decimal.NewFromFloat(1500.00),
			TotalInvested: decimal.NewFromFloat(1000.00),
			TotalPnl:      decimal.NewFromFloat(500.00),
		},
		{
			Portfolio:     model.Portfolio{ID: 2, Name: "Dividends"},
			TotalValue:    decimal.NewFromFloat(900.00),
			TotalInvested: decimal.NewFromFloat(1000.00),
			TotalPnl:      decimal.NewFromFloat(-100.00),
		},
	}}
	c, _ := newTestCoordinator(store)

	summary, err := c.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.PortfoliosCount)
	assert.True(t, summary.TotalValue.Equal(decimal.NewFromFloat(2400.00)))
	assert.True(t, summary.TotalInvested.Equal(decimal.NewFromFloat(2000.00)))
	assert.True(t, summary.TotalPnl.Equal(decimal.NewFromFloat(400.00)))
	assert.True(t, summary.TotalPnlPercentage.Equal(decimal.NewFromFloat(20.00)), "got %s", summary.TotalPnlPercentage)
}

func TestDashboardEmpty(t *testing.T) {
	c, _ := newTestCoordinator(&fakePortfolioStore{})

	summary, err := c.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Zero(t, summary.PortfoliosCount)
	assert.True(t, summary.TotalPnlPercentage.IsZero())
}

func TestTransactionsRefetchWhenSlotOverwritten(t *testing.T) {
	store := &fakePortfolioStore{}
	c, _ := newTestCoordinator(store)

	_, err := c.Transactions(context.Background(), 7)
	require.NoError(t, err)
	_, err = c.Transactions(context.Background(), 4)
	require.NoError(t, err)

	// The key for 7 is still inside its window, but the single
	// transaction slot now belongs to 4. Navigating back must refetch,
	// not fail until the window lapses.
	_, err = c.Transactions(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), store.fetchTransactionsCalls.Load())

	_, err = c.Transactions(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), store.fetchTransactionsCalls.Load(), "matching slot inside the window serves from cache")
}

func TestTransactionMutationMarksOwnerFresh(t *testing.T) {
	store := &fakePortfolioStore{}
	store.txPortfolioID = 7
	store.current = &model.PortfolioWithStats{Portfolio: model.Portfolio{ID: 9}}
	c, _ := newTestCoordinator(store)

	// The store resolved owner 7 from its cached list and refreshed
	// that portfolio's transactions, while 9 stays focused. Freshness
	// must follow what was actually refreshed.
	require.NoError(t, c.UpdateTransaction(context.Background(), 70, model.TransactionUpdate{}))

	_, err := c.Transactions(context.Background(), 7)
	require.NoError(t, err)
	assert.Zero(t, store.fetchTransactionsCalls.Load(), "owner's transactions were refreshed by the mutation")

	_, err = c.Portfolio(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(1), store.fetchByIDCalls.Load(), "unrefreshed focused portfolio must not be marked fresh")
}

func TestMutationMarksListFresh(t *testing.T) {
	store := &fakePortfolioStore{}
	c, _ := newTestCoordinator(store)

	// The store already refreshed the list as part of the mutation's
	// fan-out; the next query must not fetch again inside the window.
	require.NoError(t, c.CreatePortfolio(context.Background(), model.PortfolioCreate{Name: "Growth"}))

	_, err := c.Portfolios(context.Background())
	require.NoError(t, err)
	assert.Zero(t, store.fetchPortfoliosCalls.Load())
}

func TestDeletePortfolioMarksDependentsStale(t *testing.T) {
	store := &fakePortfolioStore{}
	c, _ := newTestCoordinator(store)

	// Warm the per-portfolio keys.
	_, err := c.Portfolio(context.Background(), 4)
	require.NoError(t, err)
	_, err = c.Transactions(context.Background(), 4)
	require.NoError(t, err)

	require.NoError(t, c.DeletePortfolio(context.Background(), 4))
	store.mu.Lock()
	store.current = nil
	store.mu.Unlock()

	_, err = c.Portfolio(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(2), store.fetchByIDCalls.Load(), "deleted portfolio's key must be refetched")
}

func TestResetDropsFreshness(t *testing.T) {
	store := &fakePortfolioStore{}
	c, _ := newTestCoordinator(store)

	_, err := c.Portfolios(context.Background())
	require.NoError(t, err)

	c.Reset()

	_, err = c.Portfolios(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), store.fetchPortfoliosCalls.Load())
}

func TestExportPortfolioReport(t *testing.T) {
	store := &fakePortfolioStore{portfolios: []model.PortfolioWithStats{
		{Portfolio: model.Portfolio{ID: 1, Name: "Growth"}},
	}}
	c, _ := newTestCoordinator(store)

	fileBytes, ext, err := c.ExportPortfolioReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", ext)
	assert.NotEmpty(t, fileBytes)
}

func TestValidateSymbolPassthrough(t *testing.T) {
	c, _ := newTestCoordinator(&fakePortfolioStore{})

	validation, err := c.ValidateSymbol(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, validation.IsValid)
}
