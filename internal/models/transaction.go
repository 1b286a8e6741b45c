package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/portfolio-holdings/internal/types"
)

// Transaction represents a ledger entry recorded against an account
type Transaction struct {
	ID         string                `json:"id" db:"id" ch:"id"`
	OwnerID    string                `json:"ownerId" db:"owner_id" ch:"owner_id"`
	Date       time.Time             `json:"date" db:"date" ch:"date"`
	AccountID  string                `json:"accountId" db:"account_id" ch:"account_id"`
	SecurityID *string               `json:"securityId,omitempty" db:"security_id" ch:"security_id"`
	Type       types.TransactionType `json:"type" db:"type" ch:"type"`
	Quantity   *decimal.Decimal      `json:"quantity,omitempty" db:"quantity" ch:"quantity"`
	Price      *decimal.Decimal      `json:"price,omitempty" db:"price" ch:"price"`
	Fees       decimal.Decimal       `json:"fees" db:"fees" ch:"fees"`
	Notes      *string               `json:"notes,omitempty" db:"notes" ch:"notes"`
	Seq        int64                 `json:"-" db:"seq" ch:"seq"` // ledger insertion order
	CreatedAt  time.Time             `json:"createdAt" db:"created_at" ch:"created_at"`
}

// HasTrade reports whether the entry carries a positive quantity and price
func (t *Transaction) HasTrade() bool {
	return t.Quantity != nil && t.Price != nil &&
		t.Quantity.IsPositive() && t.Price.IsPositive()
}

// TransactionFilter narrows a ledger read. Nil fields are not applied.
type TransactionFilter struct {
	AccountID  *string
	SecurityID *string
	DateFrom   *time.Time
	DateTo     *time.Time
}
