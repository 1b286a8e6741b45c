package models

import (
	"github.com/shopspring/decimal"

	"github.com/portfolio-holdings/internal/types"
)

// Holding is a computed, request-scoped view of one position. It is never persisted.
type Holding struct {
	SecurityID           string          `json:"securityId"`
	Symbol               string          `json:"symbol"`
	Name                 string          `json:"name"`
	AssetType            types.AssetType `json:"assetType"`
	Sector               string          `json:"sector"`
	Quantity             decimal.Decimal `json:"quantity"`
	AvgPrice             decimal.Decimal `json:"avgPrice"`
	BookValue            decimal.Decimal `json:"bookValue"`
	LastPrice            decimal.Decimal `json:"lastPrice"`
	MarketValue          decimal.Decimal `json:"marketValue"`
	UnrealizedPnL        decimal.Decimal `json:"unrealizedPnL"`
	UnrealizedPnLPercent decimal.Decimal `json:"unrealizedPnLPercent"`
	AccountID            string          `json:"accountId"`
	AccountName          string          `json:"accountName"`
}

// AssetAllocation is the share of market value held in one asset type
type AssetAllocation struct {
	AssetType   types.AssetType `json:"assetType"`
	MarketValue decimal.Decimal `json:"marketValue"`
	Percent     decimal.Decimal `json:"percent"`
	Count       int             `json:"count"`
}

// PortfolioSummary aggregates holdings totals for a dashboard
type PortfolioSummary struct {
	OwnerID              string            `json:"ownerId"`
	AccountID            *string           `json:"accountId,omitempty"`
	TotalMarketValue     decimal.Decimal   `json:"totalMarketValue"`
	TotalBookValue       decimal.Decimal   `json:"totalBookValue"`
	UnrealizedPnL        decimal.Decimal   `json:"unrealizedPnL"`
	UnrealizedPnLPercent decimal.Decimal   `json:"unrealizedPnLPercent"`
	HoldingCount         int               `json:"holdingCount"`
	Allocation           []AssetAllocation `json:"allocation"`
}
