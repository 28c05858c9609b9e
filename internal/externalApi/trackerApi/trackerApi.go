package trackerApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/Ledu55/portfolio-tracker/config"
	"github.com/Ledu55/portfolio-tracker/internal/externalApi"
	"github.com/Ledu55/portfolio-tracker/internal/model"
	"github.com/Ledu55/portfolio-tracker/utils"
	"github.com/go-resty/resty/v2"
)

// TrackerApi is the remote gateway to the portfolio tracker backend.
// It attaches the bearer credential to every outgoing request and
// fires the registered unauthorized hooks whenever any call (except
// login itself) comes back 401, so the session layer can evict the
// credential regardless of which store issued the call.
type TrackerApi struct {
	client *resty.Client

	mu             sync.RWMutex
	token          string
	onUnauthorized []func()
}

func New(cfg *config.Config) *TrackerApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(strings.TrimRight(cfg.API.TrackerApi.Url, "/") + "/api/v1")

	a := &TrackerApi{client: client}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if token := a.Token(); token != "" {
			req.SetHeader("Authorization", "Bearer "+token)
		}
		return nil
	})

	client.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		if resp.StatusCode() == http.StatusUnauthorized && !strings.HasSuffix(resp.Request.URL, "/auth/login") {
			a.notifyUnauthorized()
		}
		return nil
	})

	return a
}

func (a *TrackerApi) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

func (a *TrackerApi) ClearToken() {
	a.SetToken("")
}

func (a *TrackerApi) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// OnUnauthorized registers a hook invoked on any 401 response outside
// the login call.
func (a *TrackerApi) OnUnauthorized(fn func()) {
	a.mu.Lock()
	a.onUnauthorized = append(a.onUnauthorized, fn)
	a.mu.Unlock()
}

func (a *TrackerApi) notifyUnauthorized() {
	a.mu.RLock()
	hooks := make([]func(), len(a.onUnauthorized))
	copy(hooks, a.onUnauthorized)
	a.mu.RUnlock()

	for _, fn := range hooks {
		fn()
	}
}

func (a *TrackerApi) Login(ctx context.Context, username, password string) (model.Token, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TrackerApi.Login"

	slog.Debug("request start", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))

	resp, err := a.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"username": username, "password": password}).
		Post("/auth/login")

	if err != nil {
		slog.Error("error while dialing tracker api", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Token{}, fmt.Errorf("%w: %s", externalApi.ErrUnavailable, err)
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		return model.Token{}, externalApi.ErrInvalidCredentials
	}

	if resp.IsError() {
		return model.Token{}, a.parseError(ctx, op, resp)
	}

	token := model.Token{}
	if err := json.Unmarshal(resp.Body(), &token); err != nil {
		slog.Error("can't unmarshall login response", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Token{}, err
	}

	slog.Debug("request complete", slog.String("rqID", rqID), slog.String("op", op))

	return token, nil
}

func (a *TrackerApi) Register(ctx context.Context, req model.UserCreate) (model.User, error) {
	op := "TrackerApi.Register"

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/auth/register")

	if err != nil {
		return model.User{}, a.transportError(ctx, op, err)
	}

	if resp.StatusCode() == http.StatusBadRequest {
		return model.User{}, externalApi.ErrDuplicateAccount
	}

	if resp.IsError() {
		return model.User{}, a.parseError(ctx, op, resp)
	}

	return decodeBody[model.User](ctx, op, resp)
}

func (a *TrackerApi) CurrentUser(ctx context.Context) (model.User, error) {
	op := "TrackerApi.CurrentUser"

	resp, err := a.client.R().
		SetContext(ctx).
		Get("/auth/me")

	if err != nil {
		return model.User{}, a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return model.User{}, a.parseError(ctx, op, resp)
	}

	return decodeBody[model.User](ctx, op, resp)
}

func (a *TrackerApi) Portfolios(ctx context.Context) ([]model.PortfolioWithStats, error) {
	op := "TrackerApi.Portfolios"

	resp, err := a.client.R().
		SetContext(ctx).
		Get("/portfolios")

	if err != nil {
		return nil, a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return nil, a.parseError(ctx, op, resp)
	}

	return decodeBody[[]model.PortfolioWithStats](ctx, op, resp)
}

func (a *TrackerApi) Portfolio(ctx context.Context, id int64) (model.PortfolioWithStats, error) {
	op := "TrackerApi.Portfolio"

	resp, err := a.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/portfolios/%d", id))

	if err != nil {
		return model.PortfolioWithStats{}, a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return model.PortfolioWithStats{}, a.parseError(ctx, op, resp)
	}

	return decodeBody[model.PortfolioWithStats](ctx, op, resp)
}

func (a *TrackerApi) CreatePortfolio(ctx context.Context, req model.PortfolioCreate) (model.Portfolio, error) {
	op := "TrackerApi.CreatePortfolio"

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/portfolios")

	if err != nil {
		return model.Portfolio{}, a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return model.Portfolio{}, a.parseError(ctx, op, resp)
	}

	return decodeBody[model.Portfolio](ctx, op, resp)
}

func (a *TrackerApi) UpdatePortfolio(ctx context.Context, id int64, req model.PortfolioUpdate) (model.Portfolio, error) {
	op := "TrackerApi.UpdatePortfolio"

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		Put(fmt.Sprintf("/portfolios/%d", id))

	if err != nil {
		return model.Portfolio{}, a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return model.Portfolio{}, a.parseError(ctx, op, resp)
	}

	return decodeBody[model.Portfolio](ctx, op, resp)
}

func (a *TrackerApi) DeletePortfolio(ctx context.Context, id int64) error {
	op := "TrackerApi.DeletePortfolio"

	resp, err := a.client.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/portfolios/%d", id))

	if err != nil {
		return a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return a.parseError(ctx, op, resp)
	}

	return nil
}

func (a *TrackerApi) Transactions(ctx context.Context, portfolioID int64, skip, limit int) ([]model.Transaction, error) {
	op := "TrackerApi.Transactions"

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"portfolio_id": fmt.Sprintf("%d", portfolioID),
			"skip":         fmt.Sprintf("%d", skip),
			"limit":        fmt.Sprintf("%d", limit),
		}).
		Get("/transactions")

	if err != nil {
		return nil, a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return nil, a.parseError(ctx, op, resp)
	}

	return decodeBody[[]model.Transaction](ctx, op, resp)
}

func (a *TrackerApi) CreateTransaction(ctx context.Context, req model.TransactionCreate) (model.Transaction, error) {
	op := "TrackerApi.CreateTransaction"

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/transactions")

	if err != nil {
		return model.Transaction{}, a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return model.Transaction{}, a.parseError(ctx, op, resp)
	}

	return decodeBody[model.Transaction](ctx, op, resp)
}

func (a *TrackerApi) UpdateTransaction(ctx context.Context, id int64, req model.TransactionUpdate) (model.Transaction, error) {
	op := "TrackerApi.UpdateTransaction"

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		Put(fmt.Sprintf("/transactions/%d", id))

	if err != nil {
		return model.Transaction{}, a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return model.Transaction{}, a.parseError(ctx, op, resp)
	}

	return decodeBody[model.Transaction](ctx, op, resp)
}

func (a *TrackerApi) DeleteTransaction(ctx context.Context, id int64) error {
	op := "TrackerApi.DeleteTransaction"

	resp, err := a.client.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/transactions/%d", id))

	if err != nil {
		return a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return a.parseError(ctx, op, resp)
	}

	return nil
}

func (a *TrackerApi) MarketSummary(ctx context.Context) (model.MarketSummary, error) {
	op := "TrackerApi.MarketSummary"

	resp, err := a.client.R().
		SetContext(ctx).
		Get("/market/market/summary")

	if err != nil {
		return nil, a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return nil, a.parseError(ctx, op, resp)
	}

	wrapper, err := decodeBody[struct {
		MarketSummary model.MarketSummary `json:"market_summary"`
	}](ctx, op, resp)
	if err != nil {
		return nil, err
	}

	return wrapper.MarketSummary, nil
}

func (a *TrackerApi) PopularSymbols(ctx context.Context, market string) (map[string]string, error) {
	op := "TrackerApi.PopularSymbols"

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("market", market).
		Get("/market/symbols/popular")

	if err != nil {
		return nil, a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return nil, a.parseError(ctx, op, resp)
	}

	wrapper, err := decodeBody[struct {
		Symbols map[string]string `json:"symbols"`
	}](ctx, op, resp)
	if err != nil {
		return nil, err
	}

	return wrapper.Symbols, nil
}

func (a *TrackerApi) SearchSymbols(ctx context.Context, market, query string) ([]string, error) {
	op := "TrackerApi.SearchSymbols"

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"market": market, "query": query}).
		Get("/market/symbols/search")

	if err != nil {
		return nil, a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return nil, a.parseError(ctx, op, resp)
	}

	wrapper, err := decodeBody[struct {
		Symbols []string `json:"symbols"`
	}](ctx, op, resp)
	if err != nil {
		return nil, err
	}

	return wrapper.Symbols, nil
}

func (a *TrackerApi) ValidateSymbol(ctx context.Context, symbol string) (model.SymbolValidation, error) {
	op := "TrackerApi.ValidateSymbol"

	resp, err := a.client.R().
		SetContext(ctx).
		Get("/market/symbols/validate/" + symbol)

	if err != nil {
		return model.SymbolValidation{}, a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return model.SymbolValidation{}, a.parseError(ctx, op, resp)
	}

	return decodeBody[model.SymbolValidation](ctx, op, resp)
}

func (a *TrackerApi) CurrentPrices(ctx context.Context, symbols []string) (model.CurrentPrices, error) {
	op := "TrackerApi.CurrentPrices"

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(symbols).
		Post("/market/prices/current")

	if err != nil {
		return nil, a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return nil, a.parseError(ctx, op, resp)
	}

	wrapper, err := decodeBody[struct {
		Prices model.CurrentPrices `json:"prices"`
	}](ctx, op, resp)
	if err != nil {
		return nil, err
	}

	return wrapper.Prices, nil
}

func (a *TrackerApi) HistoricalData(ctx context.Context, symbol, period string) (model.HistoricalData, error) {
	op := "TrackerApi.HistoricalData"

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("period", period).
		Get("/market/prices/historical/" + symbol)

	if err != nil {
		return model.HistoricalData{}, a.transportError(ctx, op, err)
	}

	if resp.IsError() {
		return model.HistoricalData{}, a.parseError(ctx, op, resp)
	}

	return decodeBody[model.HistoricalData](ctx, op, resp)
}

func (a *TrackerApi) transportError(ctx context.Context, op string, err error) error {
	slog.Error("error while dialing tracker api", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("op", op), slog.String("err", err.Error()))
	return fmt.Errorf("%w: %s", externalApi.ErrUnavailable, err)
}

// parseError maps a non-2xx response to the tagged error taxonomy,
// keeping the backend's detail message where it has one.
func (a *TrackerApi) parseError(ctx context.Context, op string, resp *resty.Response) error {
	detail := errDetail(resp.Body())

	var err error
	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		err = externalApi.ErrUnauthorized
	case http.StatusNotFound:
		err = externalApi.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		err = externalApi.ErrValidationFailed
	default:
		err = externalApi.ErrUnavailable
	}

	slog.Warn(
		"tracker api returned error",
		slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
		slog.String("op", op),
		slog.Int("status", resp.StatusCode()),
		slog.String("detail", detail),
	)

	if detail != "" {
		return fmt.Errorf("%w: %s", err, detail)
	}
	return err
}

func errDetail(body []byte) string {
	payload := struct {
		Detail string `json:"detail"`
	}{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Detail
}

func decodeBody[T any](ctx context.Context, op string, resp *resty.Response) (T, error) {
	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		slog.Error("can't unmarshall response", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("op", op), slog.String("err", err.Error()))
		return result, err
	}
	return result, nil
}
