package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/portfolio-holdings/internal/models"
	"github.com/portfolio-holdings/internal/types"
)

// Placeholder labels for references that could not be resolved
const (
	UnknownAccountName  = "Unknown Account"
	UnknownSecurityName = "Unknown Security"
)

var hundred = decimal.NewFromInt(100)

// HoldingsAssembler turns positions or replayed aggregates into classified,
// valued holdings
type HoldingsAssembler struct{}

// NewHoldingsAssembler creates a new assembler
func NewHoldingsAssembler() *HoldingsAssembler {
	return &HoldingsAssembler{}
}

// FromPositions values precomputed positions. Prices may be empty, in which
// case each position is valued at its average price.
func (a *HoldingsAssembler) FromPositions(
	positions []models.Position,
	prices map[string]decimal.Decimal,
	securities map[string]models.Security,
	accounts map[string]models.Account,
) []models.Holding {
	holdings := make([]models.Holding, 0, len(positions))
	for _, p := range positions {
		state := AggregateState{Quantity: p.Quantity, AvgPrice: p.AvgPrice, BookValue: p.BookValue}
		if h, ok := a.build(p.Key(), state, prices, securities, accounts); ok {
			holdings = append(holdings, h)
		}
	}
	sortHoldings(holdings)
	return holdings
}

// FromAggregates values replayed aggregates
func (a *HoldingsAssembler) FromAggregates(
	aggregates map[models.PositionKey]AggregateState,
	prices map[string]decimal.Decimal,
	securities map[string]models.Security,
	accounts map[string]models.Account,
) []models.Holding {
	holdings := make([]models.Holding, 0, len(aggregates))
	for key, state := range aggregates {
		if h, ok := a.build(key, state, prices, securities, accounts); ok {
			holdings = append(holdings, h)
		}
	}
	sortHoldings(holdings)
	return holdings
}

// build returns false for closed positions
func (a *HoldingsAssembler) build(
	key models.PositionKey,
	state AggregateState,
	prices map[string]decimal.Decimal,
	securities map[string]models.Security,
	accounts map[string]models.Account,
) (models.Holding, bool) {
	if !state.Quantity.IsPositive() {
		return models.Holding{}, false
	}

	lastPrice, ok := prices[key.SecurityID]
	if !ok {
		lastPrice = state.AvgPrice
	}

	marketValue := state.Quantity.Mul(lastPrice)
	pnl := marketValue.Sub(state.BookValue)
	pnlPercent := decimal.Zero
	if state.BookValue.IsPositive() {
		pnlPercent = pnl.Div(state.BookValue).Mul(hundred)
	}

	h := models.Holding{
		SecurityID:           key.SecurityID,
		Symbol:               key.SecurityID,
		Name:                 UnknownSecurityName,
		AssetType:            types.AssetOther,
		Quantity:             state.Quantity,
		AvgPrice:             state.AvgPrice,
		BookValue:            state.BookValue,
		LastPrice:            lastPrice,
		MarketValue:          marketValue,
		UnrealizedPnL:        pnl,
		UnrealizedPnLPercent: pnlPercent,
		AccountID:            key.AccountID,
		AccountName:          UnknownAccountName,
	}

	var security *models.Security
	if s, ok := securities[key.SecurityID]; ok {
		security = &s
		h.Symbol = s.Symbol
		h.Name = s.Name
		h.AssetType = ClassifyAssetType(s.AssetClass, s.Symbol)
	}
	h.Sector = InferSector(security, h.AssetType)

	if acc, ok := accounts[key.AccountID]; ok && acc.Name != "" {
		h.AccountName = acc.Name
	}

	return h, true
}

// sortHoldings orders by market value, largest first, for a stable dashboard
func sortHoldings(holdings []models.Holding) {
	sort.Slice(holdings, func(i, j int) bool {
		if c := holdings[i].MarketValue.Cmp(holdings[j].MarketValue); c != 0 {
			return c > 0
		}
		if holdings[i].Symbol != holdings[j].Symbol {
			return holdings[i].Symbol < holdings[j].Symbol
		}
		return holdings[i].AccountID < holdings[j].AccountID
	})
}

// SumMarketValue totals the market value of holdings
func SumMarketValue(holdings []models.Holding) decimal.Decimal {
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(h.MarketValue)
	}
	return total
}

// Summarize computes dashboard totals and allocation by asset type. Allocation
// percentages are of total market value and are zero when it is zero.
func Summarize(ownerID string, accountID *string, holdings []models.Holding) models.PortfolioSummary {
	summary := models.PortfolioSummary{
		OwnerID:      ownerID,
		AccountID:    accountID,
		HoldingCount: len(holdings),
		Allocation:   []models.AssetAllocation{},
	}

	byType := make(map[types.AssetType]*models.AssetAllocation)
	for _, h := range holdings {
		summary.TotalMarketValue = summary.TotalMarketValue.Add(h.MarketValue)
		summary.TotalBookValue = summary.TotalBookValue.Add(h.BookValue)

		alloc, ok := byType[h.AssetType]
		if !ok {
			alloc = &models.AssetAllocation{AssetType: h.AssetType}
			byType[h.AssetType] = alloc
		}
		alloc.MarketValue = alloc.MarketValue.Add(h.MarketValue)
		alloc.Count++
	}

	summary.UnrealizedPnL = summary.TotalMarketValue.Sub(summary.TotalBookValue)
	if summary.TotalBookValue.IsPositive() {
		summary.UnrealizedPnLPercent = summary.UnrealizedPnL.Div(summary.TotalBookValue).Mul(hundred)
	}

	for _, at := range types.AllAssetTypes {
		alloc, ok := byType[at]
		if !ok {
			continue
		}
		if summary.TotalMarketValue.IsPositive() {
			alloc.Percent = alloc.MarketValue.Div(summary.TotalMarketValue).Mul(hundred)
		}
		summary.Allocation = append(summary.Allocation, *alloc)
	}

	return summary
}
