package portfoliostore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Ledu55/portfolio-tracker/internal/model"
	"github.com/Ledu55/portfolio-tracker/utils"
)

type PortfolioApi interface {
	Portfolios(ctx context.Context) ([]model.PortfolioWithStats, error)
	Portfolio(ctx context.Context, id int64) (model.PortfolioWithStats, error)
	CreatePortfolio(ctx context.Context, req model.PortfolioCreate) (model.Portfolio, error)
	UpdatePortfolio(ctx context.Context, id int64, req model.PortfolioUpdate) (model.Portfolio, error)
	DeletePortfolio(ctx context.Context, id int64) error
	Transactions(ctx context.Context, portfolioID int64, skip, limit int) ([]model.Transaction, error)
	CreateTransaction(ctx context.Context, req model.TransactionCreate) (model.Transaction, error)
	UpdateTransaction(ctx context.Context, id int64, req model.TransactionUpdate) (model.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
}

// mutationStrategy is the cache policy a mutation applies after the
// server confirms it. Portfolio delete is the only optimistic
// operation: the entity leaves the local list before the background
// list refresh resolves. Every other mutation is confirm-and-refetch
// and touches the cache only with server responses.
type mutationStrategy int

const (
	strategyConfirmAndRefetch mutationStrategy = iota
	strategyOptimistic
)

const defaultTransactionsLimit = 100

// PortfolioStore owns the local cache of portfolios-with-stats, the
// currently focused portfolio and that portfolio's transaction list.
// Every successful mutation fans out to the dependent cached views so
// none of them is left stale.
//
// Each cache slot carries a generation counter: a fetch response that
// lost the race against a newer fetch (or an optimistic write) is
// discarded instead of silently overwriting newer state.
type PortfolioStore struct {
	api PortfolioApi

	mu                      sync.RWMutex
	portfolios              []model.PortfolioWithStats
	currentPortfolio        *model.PortfolioWithStats
	transactions            []model.Transaction
	transactionsPortfolioID int64
	errMsg                  string

	portfoliosGen   uint64
	currentGen      uint64
	transactionsGen uint64
}

func New(api PortfolioApi) *PortfolioStore {
	return &PortfolioStore{api: api}
}

// FetchPortfolios replaces the entire cached portfolio list with the
// server's result. An entity absent from the response is gone.
func (s *PortfolioStore) FetchPortfolios(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioStore.FetchPortfolios"

	slog.Debug("FetchPortfolios start", slog.String("rqID", rqID), slog.String("op", op))

	s.mu.Lock()
	s.portfoliosGen++
	gen := s.portfoliosGen
	s.errMsg = ""
	s.mu.Unlock()

	portfolios, err := s.api.Portfolios(ctx)
	if err != nil {
		slog.Error("got error from api.Portfolios", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.setError("failed to fetch portfolios")
		return err
	}

	s.mu.Lock()
	if gen == s.portfoliosGen {
		s.portfolios = portfolios
	} else {
		slog.Debug("discarding superseded portfolios response", slog.String("rqID", rqID), slog.String("op", op))
	}
	s.mu.Unlock()

	slog.Debug("FetchPortfolios finished", slog.String("rqID", rqID), slog.String("op", op))

	return nil
}

// FetchPortfolioByID replaces the focused portfolio with the server's
// result for id. A response superseded by a newer fetch is dropped.
func (s *PortfolioStore) FetchPortfolioByID(ctx context.Context, id int64) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioStore.FetchPortfolioByID"

	slog.Debug("FetchPortfolioByID start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", id))

	s.mu.Lock()
	s.currentGen++
	gen := s.currentGen
	s.errMsg = ""
	s.mu.Unlock()

	portfolio, err := s.api.Portfolio(ctx, id)
	if err != nil {
		slog.Error("got error from api.Portfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.setError("failed to fetch portfolio")
		return err
	}

	s.mu.Lock()
	if gen == s.currentGen {
		s.currentPortfolio = &portfolio
	} else {
		slog.Debug("discarding superseded portfolio response", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", id))
	}
	s.mu.Unlock()

	return nil
}

func (s *PortfolioStore) FetchTransactions(ctx context.Context, portfolioID int64) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioStore.FetchTransactions"

	slog.Debug("FetchTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))

	s.mu.Lock()
	s.transactionsGen++
	gen := s.transactionsGen
	s.errMsg = ""
	s.mu.Unlock()

	transactions, err := s.api.Transactions(ctx, portfolioID, 0, defaultTransactionsLimit)
	if err != nil {
		slog.Error("got error from api.Transactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.setError("failed to fetch transactions")
		return err
	}

	s.mu.Lock()
	if gen == s.transactionsGen {
		s.transactions = transactions
		s.transactionsPortfolioID = portfolioID
	} else {
		slog.Debug("discarding superseded transactions response", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))
	}
	s.mu.Unlock()

	return nil
}

func (s *PortfolioStore) CreatePortfolio(ctx context.Context, req model.PortfolioCreate) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioStore.CreatePortfolio"

	slog.Debug("CreatePortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.String("name", req.Name))

	if _, err := s.api.CreatePortfolio(ctx, req); err != nil {
		slog.Error("got error from api.CreatePortfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.setError("failed to create portfolio")
		return err
	}

	// Stats are server-derived, a list refresh picks them up.
	return s.FetchPortfolios(ctx)
}

func (s *PortfolioStore) UpdatePortfolio(ctx context.Context, id int64, req model.PortfolioUpdate) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioStore.UpdatePortfolio"

	slog.Debug("UpdatePortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", id))

	if _, err := s.api.UpdatePortfolio(ctx, id, req); err != nil {
		slog.Error("got error from api.UpdatePortfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.setError("failed to update portfolio")
		return err
	}

	if err := s.FetchPortfolios(ctx); err != nil {
		return err
	}

	s.mu.RLock()
	focused := s.currentPortfolio != nil && s.currentPortfolio.ID == id
	s.mu.RUnlock()

	if focused {
		return s.FetchPortfolioByID(ctx, id)
	}

	return nil
}

// DeletePortfolio applies strategyOptimistic: the entity leaves the
// local list and the focus slot as soon as the server confirms the
// delete, before the background list refresh resolves. If the refresh
// disagrees, the refresh wins.
func (s *PortfolioStore) DeletePortfolio(ctx context.Context, id int64) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioStore.DeletePortfolio"

	slog.Debug("DeletePortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", id))

	if err := s.api.DeletePortfolio(ctx, id); err != nil {
		slog.Error("got error from api.DeletePortfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.setError("failed to delete portfolio")
		return err
	}

	s.mu.Lock()
	kept := s.portfolios[:0:0]
	for _, p := range s.portfolios {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	s.portfolios = kept
	if s.currentPortfolio != nil && s.currentPortfolio.ID == id {
		s.currentPortfolio = nil
	}
	// The optimistic write outranks any fetch already in flight.
	s.portfoliosGen++
	s.currentGen++
	s.mu.Unlock()

	return s.FetchPortfolios(ctx)
}

func (s *PortfolioStore) SetCurrentPortfolio(portfolio *model.PortfolioWithStats) {
	s.mu.Lock()
	s.currentGen++
	if portfolio == nil {
		s.currentPortfolio = nil
	} else {
		p := *portfolio
		s.currentPortfolio = &p
	}
	s.mu.Unlock()
}

func (s *PortfolioStore) CreateTransaction(ctx context.Context, req model.TransactionCreate) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioStore.CreateTransaction"

	slog.Debug("CreateTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", req.PortfolioID), slog.String("symbol", req.Symbol))

	if _, err := s.api.CreateTransaction(ctx, req); err != nil {
		slog.Error("got error from api.CreateTransaction", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.setError("failed to create transaction")
		return err
	}

	return s.invalidateAfterTransaction(ctx, req.PortfolioID)
}

func (s *PortfolioStore) UpdateTransaction(ctx context.Context, id int64, req model.TransactionUpdate) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioStore.UpdateTransaction"

	slog.Debug("UpdateTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("transactionID", id))

	portfolioID := s.owningPortfolioID(id)

	if _, err := s.api.UpdateTransaction(ctx, id, req); err != nil {
		slog.Error("got error from api.UpdateTransaction", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.setError("failed to update transaction")
		return err
	}

	return s.invalidateAfterTransaction(ctx, portfolioID)
}

func (s *PortfolioStore) DeleteTransaction(ctx context.Context, id int64) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioStore.DeleteTransaction"

	slog.Debug("DeleteTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("transactionID", id))

	portfolioID := s.owningPortfolioID(id)

	if err := s.api.DeleteTransaction(ctx, id); err != nil {
		slog.Error("got error from api.DeleteTransaction", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.setError("failed to delete transaction")
		return err
	}

	return s.invalidateAfterTransaction(ctx, portfolioID)
}

// owningPortfolioID resolves the portfolio a transaction mutation
// must invalidate, at call time: first from the cached transaction
// list, then from the focused portfolio. Zero means unknown.
func (s *PortfolioStore) owningPortfolioID(transactionID int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.transactions {
		if t.ID == transactionID {
			return t.PortfolioID
		}
	}
	if s.currentPortfolio != nil {
		return s.currentPortfolio.ID
	}
	return 0
}

// invalidateAfterTransaction performs the three-way fan-out required
// after any transaction mutation, in fixed order: the owning
// portfolio's transaction list, the owning portfolio's stats, the
// global portfolio list. With an unknown owning portfolio the list is
// still refreshed so no view survives the mutation stale.
func (s *PortfolioStore) invalidateAfterTransaction(ctx context.Context, portfolioID int64) error {
	if portfolioID != 0 {
		if err := s.FetchTransactions(ctx, portfolioID); err != nil {
			return err
		}

		s.mu.RLock()
		focused := s.currentPortfolio != nil && s.currentPortfolio.ID == portfolioID
		s.mu.RUnlock()

		if focused {
			if err := s.FetchPortfolioByID(ctx, portfolioID); err != nil {
				return err
			}
		}
	}

	return s.FetchPortfolios(ctx)
}

// Reset drops every cached entity. Wired to session end.
func (s *PortfolioStore) Reset() {
	s.mu.Lock()
	s.portfolios = nil
	s.currentPortfolio = nil
	s.transactions = nil
	s.transactionsPortfolioID = 0
	s.errMsg = ""
	s.portfoliosGen++
	s.currentGen++
	s.transactionsGen++
	s.mu.Unlock()
}

func (s *PortfolioStore) Portfolios() []model.PortfolioWithStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]model.PortfolioWithStats, len(s.portfolios))
	copy(snapshot, s.portfolios)
	return snapshot
}

func (s *PortfolioStore) CurrentPortfolio() *model.PortfolioWithStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.currentPortfolio == nil {
		return nil
	}
	p := *s.currentPortfolio
	return &p
}

// Transactions returns the cached transaction list and the portfolio
// it belongs to.
func (s *PortfolioStore) Transactions() (int64, []model.Transaction) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]model.Transaction, len(s.transactions))
	copy(snapshot, s.transactions)
	return s.transactionsPortfolioID, snapshot
}

func (s *PortfolioStore) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

func (s *PortfolioStore) ClearError() {
	s.setError("")
}

func (s *PortfolioStore) setError(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
}
