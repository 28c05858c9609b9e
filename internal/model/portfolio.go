package model

import (
	"github.com/shopspring/decimal"
)

type Portfolio struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"is_default"`
	OwnerID     int64  `json:"owner_id"`
}

// PortfolioWithStats carries the server-derived aggregates. The client
// never recomputes them, it only rolls them up across portfolios for
// the dashboard summary.
type PortfolioWithStats struct {
	Portfolio
	TotalValue         decimal.Decimal `json:"total_value"`
	TotalInvested      decimal.Decimal `json:"total_invested"`
	TotalPnl           decimal.Decimal `json:"total_pnl"`
	TotalPnlPercentage decimal.Decimal `json:"total_pnl_percentage"`
	PositionsCount     int             `json:"positions_count"`
}

type PortfolioCreate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"is_default"`
}

type PortfolioUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsDefault   *bool   `json:"is_default,omitempty"`
}

type DashboardSummary struct {
	TotalValue         decimal.Decimal
	TotalInvested      decimal.Decimal
	TotalPnl           decimal.Decimal
	TotalPnlPercentage decimal.Decimal
	PortfoliosCount    int
}
