package service

import (
	"context"

	"github.com/portfolio-holdings/internal/models"
)

// Repository interfaces for dependency injection

// TransactionReader reads an owner's ledger
type TransactionReader interface {
	FindTransactions(ctx context.Context, ownerID string, filter models.TransactionFilter) ([]models.Transaction, error)
}

// SecurityReader resolves security reference data
type SecurityReader interface {
	FindSecuritiesByIDs(ctx context.Context, ids []string) ([]models.Security, error)
}

// AccountReader resolves an owner's accounts
type AccountReader interface {
	FindAccountsByIDs(ctx context.Context, ownerID string, ids []string) ([]models.Account, error)
}

// PositionSource reads precomputed positions. It returns an empty slice, not
// an error, when none exist.
type PositionSource interface {
	Find(ctx context.Context, ownerID string, accountID *string) ([]models.Position, error)
}

// SecurityHolderReader finds the owners whose holdings depend on a security
type SecurityHolderReader interface {
	FindOwnersBySecurity(ctx context.Context, securityID string) ([]string, error)
}

// PriceSnapshotReader reads stored price snapshots
type PriceSnapshotReader interface {
	FindBySecurityIDs(ctx context.Context, ids []string) ([]models.PriceSnapshot, error)
}

// TransactionWriter persists ledger mutations
type TransactionWriter interface {
	Create(ctx context.Context, tx *models.Transaction) error
	Update(ctx context.Context, tx *models.Transaction) error
	Delete(ctx context.Context, ownerID, id string) error
	GetByID(ctx context.Context, ownerID, id string) (*models.Transaction, error)
}

// LedgerMirror receives a copy of every ledger mutation
type LedgerMirror interface {
	Save(ctx context.Context, tx *models.Transaction) error
	Remove(ctx context.Context, ownerID, id string) error
}

// PriceSnapshotWriter stores new price snapshots
type PriceSnapshotWriter interface {
	Create(ctx context.Context, snapshot *models.PriceSnapshot) error
}

// PositionWriter stores precomputed positions
type PositionWriter interface {
	Upsert(ctx context.Context, position *models.Position) error
}
