package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Security represents a tradable instrument referenced by symbol
type Security struct {
	ID         string  `json:"id" db:"id"`
	Symbol     string  `json:"symbol" db:"symbol"`
	Name       string  `json:"name" db:"name"`
	AssetClass string  `json:"assetClass" db:"asset_class"`
	Sector     *string `json:"sector,omitempty" db:"sector"`
}

// PriceSnapshot is a stored closing price for a security on a date
type PriceSnapshot struct {
	ID         string          `json:"id" db:"id"`
	SecurityID string          `json:"securityId" db:"security_id"`
	Date       time.Time       `json:"date" db:"date"`
	Price      decimal.Decimal `json:"price" db:"price"`
	Seq        int64           `json:"-" db:"seq"` // insertion order, breaks same-date ties
}
