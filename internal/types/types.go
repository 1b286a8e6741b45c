// Package types provides common type definitions for the holdings engine.
package types

import "strings"

// TransactionType represents the kind of ledger entry
type TransactionType string

const (
	// TransactionBuy represents a purchase of a security
	TransactionBuy TransactionType = "buy"
	// TransactionSell represents a disposal of a security
	TransactionSell TransactionType = "sell"
	// TransactionDividend represents a dividend payment
	TransactionDividend TransactionType = "dividend"
	// TransactionInterest represents an interest payment
	TransactionInterest TransactionType = "interest"
	// TransactionTransferIn represents units or cash moved into an account
	TransactionTransferIn TransactionType = "transfer_in"
	// TransactionTransferOut represents units or cash moved out of an account
	TransactionTransferOut TransactionType = "transfer_out"
)

// Valid reports whether t is one of the known transaction types
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionBuy, TransactionSell, TransactionDividend,
		TransactionInterest, TransactionTransferIn, TransactionTransferOut:
		return true
	default:
		return false
	}
}

// AffectsCostBasis reports whether the type participates in position math
func (t TransactionType) AffectsCostBasis() bool {
	return t == TransactionBuy || t == TransactionSell
}

// ParseTransactionType normalizes a raw string into a TransactionType.
// Unknown values are returned as-is and fail Valid().
func ParseTransactionType(s string) TransactionType {
	return TransactionType(strings.ToLower(strings.TrimSpace(s)))
}

// AssetType is the fixed classification shown on holdings
type AssetType string

const (
	AssetStock  AssetType = "Stock"
	AssetETF    AssetType = "ETF"
	AssetBond   AssetType = "Bond"
	AssetCrypto AssetType = "Crypto"
	AssetCash   AssetType = "Cash"
	AssetOther  AssetType = "Other"
)

// AllAssetTypes lists the asset types in display order
var AllAssetTypes = []AssetType{AssetStock, AssetETF, AssetBond, AssetCrypto, AssetCash, AssetOther}

// AccountScopeAll is the cache scope used when no account filter is given
const AccountScopeAll = "all"

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
