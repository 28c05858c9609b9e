package marketstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Ledu55/portfolio-tracker/config"
	"github.com/Ledu55/portfolio-tracker/internal/cache"
	"github.com/Ledu55/portfolio-tracker/internal/model"
	"github.com/Ledu55/portfolio-tracker/utils"
)

type MarketApi interface {
	MarketSummary(ctx context.Context) (model.MarketSummary, error)
	PopularSymbols(ctx context.Context, market string) (map[string]string, error)
	SearchSymbols(ctx context.Context, market, query string) ([]string, error)
	ValidateSymbol(ctx context.Context, symbol string) (model.SymbolValidation, error)
	CurrentPrices(ctx context.Context, symbols []string) (model.CurrentPrices, error)
	HistoricalData(ctx context.Context, symbol, period string) (model.HistoricalData, error)
}

const DefaultHistoricalPeriod = "6mo"

// MarketStore caches market snapshots with a staleness window per
// entity kind (see config.Cache). Snapshots are only ever replaced
// wholesale. A fetch failure keeps whatever was cached: stale data
// beats an empty dashboard on a transient outage.
type MarketStore struct {
	api MarketApi
	cfg *config.Config
	now func() time.Time

	mu          sync.RWMutex
	summary     *cache.Entry[model.MarketSummary]
	popular     map[cache.PopularSymbolsKey]cache.Entry[map[string]string]
	validations map[string]model.SymbolValidation
	prices      map[cache.PricesKey]cache.Entry[model.CurrentPrices]
	historical  map[cache.HistoricalKey]cache.Entry[model.HistoricalData]

	// last symbol set requested, refreshed by the background job
	trackedSymbols []string

	errMsg string
}

func New(api MarketApi, cfg *config.Config) *MarketStore {
	return &MarketStore{
		api:         api,
		cfg:         cfg,
		now:         time.Now,
		popular:     make(map[cache.PopularSymbolsKey]cache.Entry[map[string]string]),
		validations: make(map[string]model.SymbolValidation),
		prices:      make(map[cache.PricesKey]cache.Entry[model.CurrentPrices]),
		historical:  make(map[cache.HistoricalKey]cache.Entry[model.HistoricalData]),
	}
}

// FetchMarketSummary returns the cached summary while it is inside
// its window, otherwise refetches. On a failed refetch the stale
// summary (if any) is returned alongside the error.
func (s *MarketStore) FetchMarketSummary(ctx context.Context) (model.MarketSummary, error) {
	s.mu.RLock()
	entry := s.summary
	s.mu.RUnlock()

	if entry != nil && !entry.Stale(s.now(), s.cfg.Cache.MarketSummaryExpiration) {
		return entry.Value, nil
	}

	return s.RefreshMarketSummary(ctx)
}

// RefreshMarketSummary always hits the gateway. The background job
// calls it on the configured interval.
func (s *MarketStore) RefreshMarketSummary(ctx context.Context) (model.MarketSummary, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MarketStore.RefreshMarketSummary"

	slog.Debug("RefreshMarketSummary start", slog.String("rqID", rqID), slog.String("op", op))

	summary, err := s.api.MarketSummary(ctx)
	if err != nil {
		slog.Error("got error from api.MarketSummary", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.setError("failed to fetch market summary")
		return s.cachedSummary(), err
	}

	s.mu.Lock()
	entry := cache.NewEntry(summary, s.now())
	s.summary = &entry
	s.errMsg = ""
	s.mu.Unlock()

	slog.Debug("RefreshMarketSummary finished", slog.String("rqID", rqID), slog.String("op", op))

	return summary, nil
}

func (s *MarketStore) FetchPopularSymbols(ctx context.Context, market string) (map[string]string, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MarketStore.FetchPopularSymbols"

	key := cache.PopularSymbolsKey{Market: market}

	s.mu.RLock()
	entry, ok := s.popular[key]
	s.mu.RUnlock()

	if ok && !entry.Stale(s.now(), s.cfg.Cache.PopularSymbolsExpiration) {
		return entry.Value, nil
	}

	symbols, err := s.api.PopularSymbols(ctx, market)
	if err != nil {
		slog.Error("got error from api.PopularSymbols", slog.String("rqID", rqID), slog.String("op", op), slog.String("market", market), slog.String("err", err.Error()))
		s.setError("failed to fetch popular symbols")
		if ok {
			return entry.Value, err
		}
		return nil, err
	}

	s.mu.Lock()
	s.popular[key] = cache.NewEntry(symbols, s.now())
	s.errMsg = ""
	s.mu.Unlock()

	return symbols, nil
}

// SearchSymbols is always live, suggestions are never cached.
func (s *MarketStore) SearchSymbols(ctx context.Context, market, query string) ([]string, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MarketStore.SearchSymbols"

	symbols, err := s.api.SearchSymbols(ctx, market, query)
	if err != nil {
		slog.Error("got error from api.SearchSymbols", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.setError("failed to search symbols")
		return nil, err
	}

	return symbols, nil
}

// ValidateSymbol caches a successful validation indefinitely, until
// ClearCache.
func (s *MarketStore) ValidateSymbol(ctx context.Context, symbol string) (model.SymbolValidation, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MarketStore.ValidateSymbol"

	s.mu.RLock()
	validation, ok := s.validations[symbol]
	s.mu.RUnlock()

	if ok {
		return validation, nil
	}

	validation, err := s.api.ValidateSymbol(ctx, symbol)
	if err != nil {
		slog.Error("got error from api.ValidateSymbol", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.String("err", err.Error()))
		s.setError("failed to validate symbol")
		return model.SymbolValidation{}, err
	}

	s.mu.Lock()
	s.validations[symbol] = validation
	s.errMsg = ""
	s.mu.Unlock()

	return validation, nil
}

func (s *MarketStore) FetchCurrentPrices(ctx context.Context, symbols []string) (model.CurrentPrices, error) {
	if len(symbols) == 0 {
		return model.CurrentPrices{}, nil
	}

	key := cache.Prices(symbols)

	s.mu.Lock()
	s.trackedSymbols = append(s.trackedSymbols[:0:0], symbols...)
	entry, ok := s.prices[key]
	s.mu.Unlock()

	if ok && !entry.Stale(s.now(), s.cfg.Cache.CurrentPricesExpiration) {
		return entry.Value, nil
	}

	return s.refreshPrices(ctx, symbols, key)
}

// RefreshCurrentPrices refetches the last requested symbol set. The
// background job drives it every minute.
func (s *MarketStore) RefreshCurrentPrices(ctx context.Context) error {
	s.mu.RLock()
	symbols := append([]string(nil), s.trackedSymbols...)
	s.mu.RUnlock()

	if len(symbols) == 0 {
		return nil
	}

	_, err := s.refreshPrices(ctx, symbols, cache.Prices(symbols))
	return err
}

func (s *MarketStore) refreshPrices(ctx context.Context, symbols []string, key cache.PricesKey) (model.CurrentPrices, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MarketStore.refreshPrices"

	prices, err := s.api.CurrentPrices(ctx, symbols)
	if err != nil {
		slog.Error("got error from api.CurrentPrices", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.setError("failed to fetch current prices")

		s.mu.RLock()
		entry, ok := s.prices[key]
		s.mu.RUnlock()
		if ok {
			return entry.Value, err
		}
		return nil, err
	}

	s.mu.Lock()
	s.prices[key] = cache.NewEntry(prices, s.now())
	s.errMsg = ""
	s.mu.Unlock()

	return prices, nil
}

func (s *MarketStore) FetchHistoricalData(ctx context.Context, symbol, period string) (model.HistoricalData, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MarketStore.FetchHistoricalData"

	if period == "" {
		period = DefaultHistoricalPeriod
	}

	key := cache.HistoricalKey{Symbol: symbol, Period: period}

	s.mu.RLock()
	entry, ok := s.historical[key]
	s.mu.RUnlock()

	if ok && !entry.Stale(s.now(), s.cfg.Cache.HistoricalExpiration) {
		return entry.Value, nil
	}

	data, err := s.api.HistoricalData(ctx, symbol, period)
	if err != nil {
		slog.Error("got error from api.HistoricalData", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.String("err", err.Error()))
		s.setError("failed to fetch historical data")
		if ok {
			return entry.Value, err
		}
		return model.HistoricalData{}, err
	}

	s.mu.Lock()
	s.historical[key] = cache.NewEntry(data, s.now())
	s.errMsg = ""
	s.mu.Unlock()

	return data, nil
}

// ClearCache wipes every cached market entity. Wired to session end.
func (s *MarketStore) ClearCache() {
	s.mu.Lock()
	s.summary = nil
	s.popular = make(map[cache.PopularSymbolsKey]cache.Entry[map[string]string])
	s.validations = make(map[string]model.SymbolValidation)
	s.prices = make(map[cache.PricesKey]cache.Entry[model.CurrentPrices])
	s.historical = make(map[cache.HistoricalKey]cache.Entry[model.HistoricalData])
	s.trackedSymbols = nil
	s.errMsg = ""
	s.mu.Unlock()
}

func (s *MarketStore) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

func (s *MarketStore) cachedSummary() model.MarketSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.summary == nil {
		return nil
	}
	return s.summary.Value
}

func (s *MarketStore) setError(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
}
