package trackerApi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ledu55/portfolio-tracker/config"
	"github.com/Ledu55/portfolio-tracker/internal/externalApi"
	"github.com/Ledu55/portfolio-tracker/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApi(t *testing.T, handler http.HandlerFunc) *TrackerApi {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(&config.Config{
		API: config.API{
			Timeout:    time.Second,
			TrackerApi: config.TrackerApi{Url: srv.URL},
		},
	})
}

func TestLoginSendsFormCredentials(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/auth/login", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "alice", r.PostFormValue("username"))
		assert.Equal(t, "secret", r.PostFormValue("password"))

		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok-123",
			"token_type":   "bearer",
		})
	})

	token, err := api.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token.AccessToken)
	assert.Equal(t, "bearer", token.TokenType)
}

func TestLoginRejectedDoesNotFireUnauthorizedHook(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Incorrect username or password"})
	})

	var evictions int
	api.OnUnauthorized(func() { evictions++ })

	_, err := api.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, externalApi.ErrInvalidCredentials)
	assert.Zero(t, evictions, "a rejected login is not an expired session")
}

func TestRegisterDuplicateAccount(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Email already registered"})
	})

	_, err := api.Register(context.Background(), model.UserCreate{
		Email:    "bob@example.com",
		Username: "bob",
		Password: "secret",
	})
	assert.ErrorIs(t, err, externalApi.ErrDuplicateAccount)
}

func TestBearerTokenAttached(t *testing.T) {
	var authHeader string
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]any{})
	})

	api.SetToken("tok-123")

	_, err := api.Portfolios(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", authHeader)

	api.ClearToken()

	_, err = api.Portfolios(context.Background())
	require.NoError(t, err)
	assert.Empty(t, authHeader)
}

func TestUnauthorizedResponseFiresHook(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Could not validate credentials"})
	})

	var evictions int
	api.OnUnauthorized(func() { evictions++ })

	_, err := api.Portfolios(context.Background())
	require.ErrorIs(t, err, externalApi.ErrUnauthorized)
	assert.Contains(t, err.Error(), "Could not validate credentials")
	assert.Equal(t, 1, evictions)
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "not found", status: http.StatusNotFound, wantErr: externalApi.ErrNotFound},
		{name: "bad request", status: http.StatusBadRequest, wantErr: externalApi.ErrValidationFailed},
		{name: "unprocessable entity", status: http.StatusUnprocessableEntity, wantErr: externalApi.ErrValidationFailed},
		{name: "server error", status: http.StatusInternalServerError, wantErr: externalApi.ErrUnavailable},
		{name: "bad gateway", status: http.StatusBadGateway, wantErr: externalApi.ErrUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			api := newTestApi(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			})

			_, err := api.Portfolio(context.Background(), 1)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestTransportFailureMapsToUnavailable(t *testing.T) {
	api := New(&config.Config{
		API: config.API{
			Timeout:    100 * time.Millisecond,
			TrackerApi: config.TrackerApi{Url: "http://127.0.0.1:1"},
		},
	})

	_, err := api.Portfolios(context.Background())
	assert.ErrorIs(t, err, externalApi.ErrUnavailable)
}

func TestTransactionsQueryParams(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transactions", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("portfolio_id"))
		assert.Equal(t, "0", r.URL.Query().Get("skip"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode([]any{})
	})

	_, err := api.Transactions(context.Background(), 42, 0, 100)
	require.NoError(t, err)
}

func TestMarketSummaryUnwrapsEnvelope(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/market/market/summary", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"market_summary": map[string]any{
				"S&P 500": map[string]any{"current": "5000.25", "change_percent": "1.2"},
			},
		})
	})

	summary, err := api.MarketSummary(context.Background())
	require.NoError(t, err)
	require.Contains(t, summary, "S&P 500")
	assert.Equal(t, "5000.25", summary["S&P 500"].Current.String())
}

func TestCurrentPricesPostsSymbolList(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/market/prices/current", r.URL.Path)

		var symbols []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&symbols))
		assert.Equal(t, []string{"AAPL", "PETR4"}, symbols)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"prices": map[string]any{"AAPL": "232.10", "PETR4": nil},
		})
	})

	prices, err := api.CurrentPrices(context.Background(), []string{"AAPL", "PETR4"})
	require.NoError(t, err)
	require.NotNil(t, prices["AAPL"])
	assert.Equal(t, "232.1", prices["AAPL"].String())
	assert.Nil(t, prices["PETR4"], "unpriced symbols come back null")
}

func TestHistoricalDataPeriodParam(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/market/prices/historical/AAPL", r.URL.Path)
		assert.Equal(t, "1y", r.URL.Query().Get("period"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"dates":   []string{"2026-01-02"},
			"prices":  []string{"230.00"},
			"volumes": []int64{1000},
		})
	})

	data, err := api.HistoricalData(context.Background(), "AAPL", "1y")
	require.NoError(t, err)
	require.Len(t, data.Prices, 1)
	assert.Equal(t, []string{"2026-01-02"}, data.Dates)
}
