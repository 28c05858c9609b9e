package model

import (
	"github.com/shopspring/decimal"
)

type MarketQuote struct {
	Current          decimal.Decimal `json:"current"`
	Change           decimal.Decimal `json:"change"`
	ChangePercentage decimal.Decimal `json:"change_percentage"`
}

// MarketSummary maps an index name to its quote.
type MarketSummary map[string]MarketQuote

type SymbolValidation struct {
	Symbol       string          `json:"symbol"`
	CompanyName  string          `json:"company_name"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	IsValid      bool            `json:"is_valid"`
}

// CurrentPrices maps a symbol to its last price, nil when the server
// could not price the symbol.
type CurrentPrices map[string]*decimal.Decimal

type HistoricalData struct {
	Dates   []string          `json:"dates"`
	Prices  []decimal.Decimal `json:"prices"`
	Volumes []int64           `json:"volumes"`
}
