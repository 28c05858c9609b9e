package model

import (
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionBuy      TransactionType = "BUY"
	TransactionSell     TransactionType = "SELL"
	TransactionDividend TransactionType = "DIVIDEND"
	TransactionSplit    TransactionType = "SPLIT"
)

type Transaction struct {
	ID              int64           `json:"id"`
	Symbol          string          `json:"symbol"`
	CompanyName     string          `json:"company_name,omitempty"`
	Market          string          `json:"market"`
	Type            TransactionType `json:"transaction_type"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Fees            decimal.Decimal `json:"fees"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Notes           string          `json:"notes,omitempty"`
	TransactionDate string          `json:"transaction_date"`
	PortfolioID     int64           `json:"portfolio_id"`
}

type TransactionCreate struct {
	Symbol          string          `json:"symbol"`
	CompanyName     string          `json:"company_name,omitempty"`
	Market          string          `json:"market"`
	Type            TransactionType `json:"transaction_type"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Fees            decimal.Decimal `json:"fees"`
	Notes           string          `json:"notes,omitempty"`
	TransactionDate string          `json:"transaction_date"`
	PortfolioID     int64           `json:"portfolio_id"`
}

type TransactionUpdate struct {
	Symbol          *string          `json:"symbol,omitempty"`
	CompanyName     *string          `json:"company_name,omitempty"`
	Market          *string          `json:"market,omitempty"`
	Type            *TransactionType `json:"transaction_type,omitempty"`
	Quantity        *decimal.Decimal `json:"quantity,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	Fees            *decimal.Decimal `json:"fees,omitempty"`
	Notes           *string          `json:"notes,omitempty"`
	TransactionDate *string          `json:"transaction_date,omitempty"`
}
