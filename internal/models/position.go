package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionKey identifies one aggregate. Positions are never merged across accounts.
type PositionKey struct {
	SecurityID string
	AccountID  string
}

// Position is a precomputed position snapshot maintained outside the engine
type Position struct {
	SecurityID string          `json:"securityId" db:"security_id"`
	AccountID  string          `json:"accountId" db:"account_id"`
	Quantity   decimal.Decimal `json:"quantity" db:"quantity"`
	AvgPrice   decimal.Decimal `json:"avgPrice" db:"avg_price"`
	BookValue  decimal.Decimal `json:"bookValue" db:"book_value"`
	UpdatedAt  time.Time       `json:"updatedAt" db:"updated_at"`
}

// Key returns the aggregate key of the position
func (p *Position) Key() PositionKey {
	return PositionKey{SecurityID: p.SecurityID, AccountID: p.AccountID}
}

// Account represents a brokerage or bank account owned by a user
type Account struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"ownerId" db:"owner_id"`
	Name      string    `json:"name" db:"name"`
	Type      string    `json:"type" db:"type"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
