package storage

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/portfolio-holdings/internal/errors"
	"github.com/portfolio-holdings/internal/models"
	"github.com/portfolio-holdings/internal/types"
)

// ClickHouseLedgerRepository mirrors the transaction ledger into ClickHouse and
// can serve replay reads from it. Rows are versioned: an update appends a new
// version and a delete appends a tombstone, and reads use FINAL.
type ClickHouseLedgerRepository struct {
	db  *ClickHouseDB
	now func() time.Time
}

// NewClickHouseLedgerRepository creates a new ledger repository
func NewClickHouseLedgerRepository(db *ClickHouseDB) *ClickHouseLedgerRepository {
	return &ClickHouseLedgerRepository{db: db, now: time.Now}
}

// Save writes the current state of a transaction as a new row version
func (r *ClickHouseLedgerRepository) Save(ctx context.Context, tx *models.Transaction) error {
	return r.write(ctx, tx, false)
}

// Remove writes a tombstone version for a transaction
func (r *ClickHouseLedgerRepository) Remove(ctx context.Context, ownerID, id string) error {
	return r.write(ctx, &models.Transaction{ID: id, OwnerID: ownerID}, true)
}

func (r *ClickHouseLedgerRepository) write(ctx context.Context, tx *models.Transaction, deleted bool) error {
	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO ledger_transactions (
			id, owner_id, date, account_id, security_id, type, quantity, price, fees, notes,
			seq, created_at, version, is_deleted
		)
	`)
	if err != nil {
		return apperrors.NewDatabaseError("prepare ledger batch", err)
	}

	var tombstone uint8
	if deleted {
		tombstone = 1
	}

	err = batch.Append(
		tx.ID,
		tx.OwnerID,
		tx.Date,
		tx.AccountID,
		tx.SecurityID,
		string(tx.Type),
		tx.Quantity,
		tx.Price,
		tx.Fees,
		tx.Notes,
		tx.Seq,
		tx.CreatedAt,
		uint64(r.now().UnixNano()), // #nosec G115 - wall clock is after 1970
		tombstone,
	)
	if err != nil {
		return apperrors.NewDatabaseError("append ledger row", err)
	}

	if err := batch.Send(); err != nil {
		return apperrors.NewDatabaseError("send ledger batch", err)
	}

	return nil
}

// FindTransactions returns an owner's live ledger rows in date then insertion order
func (r *ClickHouseLedgerRepository) FindTransactions(ctx context.Context, ownerID string, filter models.TransactionFilter) ([]models.Transaction, error) {
	query := `
		SELECT id, owner_id, date, account_id, security_id, type, quantity, price, fees, notes, seq, created_at
		FROM ledger_transactions FINAL
		WHERE owner_id = ? AND is_deleted = 0
	`
	args := []interface{}{ownerID}

	if filter.AccountID != nil {
		query += " AND account_id = ?"
		args = append(args, *filter.AccountID)
	}
	if filter.SecurityID != nil {
		query += " AND security_id = ?"
		args = append(args, *filter.SecurityID)
	}
	if filter.DateFrom != nil {
		query += " AND date >= ?"
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query += " AND date <= ?"
		args = append(args, *filter.DateTo)
	}
	query += " ORDER BY date ASC, seq ASC"

	rows, err := r.db.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("query ledger", err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var tx models.Transaction
		var txType string

		err := rows.Scan(
			&tx.ID,
			&tx.OwnerID,
			&tx.Date,
			&tx.AccountID,
			&tx.SecurityID,
			&txType,
			&tx.Quantity,
			&tx.Price,
			&tx.Fees,
			&tx.Notes,
			&tx.Seq,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan ledger row", fmt.Errorf("owner %s: %w", ownerID, err))
		}

		tx.Type = types.TransactionType(txType)
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate ledger", err)
	}

	return transactions, nil
}
