package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/portfolio-holdings/internal/models"
	"github.com/portfolio-holdings/internal/types"
)

// AggregateState is the running weighted-average position for one security in
// one account.
type AggregateState struct {
	Quantity  decimal.Decimal
	AvgPrice  decimal.Decimal
	BookValue decimal.Decimal
}

// Aggregator replays a ledger into positions
type Aggregator interface {
	Replay(transactions []models.Transaction) map[models.PositionKey]AggregateState
}

// CostBasisAggregator replays buys and sells using a single weighted-average
// cost per security per account. There is no lot tracking: every buy folds
// into one blended average and sells never move it.
type CostBasisAggregator struct{}

// NewCostBasisAggregator creates a new aggregator
func NewCostBasisAggregator() *CostBasisAggregator {
	return &CostBasisAggregator{}
}

// Replay folds transactions into one AggregateState per (security, account).
// Input order does not matter: transactions are processed by date, then by
// ledger sequence. Quantity and book value never go below zero.
func (a *CostBasisAggregator) Replay(transactions []models.Transaction) map[models.PositionKey]AggregateState {
	ordered := make([]models.Transaction, len(transactions))
	copy(ordered, transactions)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].Seq < ordered[j].Seq
	})

	states := make(map[models.PositionKey]AggregateState)
	for i := range ordered {
		tx := &ordered[i]
		if !tx.Type.AffectsCostBasis() || tx.SecurityID == nil || *tx.SecurityID == "" {
			continue
		}

		key := models.PositionKey{SecurityID: *tx.SecurityID, AccountID: tx.AccountID}
		switch tx.Type {
		case types.TransactionBuy:
			if !tx.HasTrade() {
				continue
			}
			states[key] = applyBuy(states[key], *tx.Quantity, *tx.Price, tx.Fees)
		case types.TransactionSell:
			if tx.Quantity == nil || tx.Price == nil || !tx.Quantity.IsPositive() {
				continue
			}
			states[key] = applySell(states[key], *tx.Quantity)
		}
	}

	return states
}

func applyBuy(s AggregateState, qty, price, fees decimal.Decimal) AggregateState {
	cost := qty.Mul(price).Add(fees)
	book := s.BookValue.Add(cost)
	newQty := s.Quantity.Add(qty)

	avg := price
	if newQty.IsPositive() {
		avg = book.Div(newQty)
	}

	return AggregateState{Quantity: newQty, AvgPrice: avg, BookValue: book}
}

func applySell(s AggregateState, qty decimal.Decimal) AggregateState {
	soldCost := qty.Mul(s.AvgPrice)
	book := decimal.Max(decimal.Zero, s.BookValue.Sub(soldCost))
	remaining := decimal.Max(decimal.Zero, s.Quantity.Sub(qty))

	// Nothing left to carry once the position is closed; this also drops
	// division residue from the average.
	if remaining.IsZero() {
		book = decimal.Zero
	}

	return AggregateState{Quantity: remaining, AvgPrice: s.AvgPrice, BookValue: book}
}
