package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	apperrors "github.com/portfolio-holdings/internal/errors"
	"github.com/portfolio-holdings/internal/models"
	"github.com/portfolio-holdings/internal/types"
)

const transactionColumns = `id, owner_id, date, account_id, security_id, type, quantity, price, fees, notes, seq, created_at`

// TransactionRepository handles ledger persistence in Postgres
type TransactionRepository struct {
	db *PostgresDB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *PostgresDB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create records a transaction and fills in its ID, Seq and CreatedAt
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	query := `
		INSERT INTO transactions (id, owner_id, date, account_id, security_id, type, quantity, price, fees, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq, created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		tx.ID,
		tx.OwnerID,
		tx.Date,
		tx.AccountID,
		tx.SecurityID,
		string(tx.Type),
		nullDecimal(tx.Quantity),
		nullDecimal(tx.Price),
		tx.Fees,
		tx.Notes,
	).Scan(&tx.Seq, &tx.CreatedAt)
	if err != nil {
		return classifyPgError("transactions", "create transaction", err)
	}

	return nil
}

// Update replaces the mutable fields of an owner's transaction
func (r *TransactionRepository) Update(ctx context.Context, tx *models.Transaction) error {
	query := `
		UPDATE transactions
		SET date = $3, account_id = $4, security_id = $5, type = $6,
		    quantity = $7, price = $8, fees = $9, notes = $10
		WHERE id = $1 AND owner_id = $2
		RETURNING seq, created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		tx.ID,
		tx.OwnerID,
		tx.Date,
		tx.AccountID,
		tx.SecurityID,
		string(tx.Type),
		nullDecimal(tx.Quantity),
		nullDecimal(tx.Price),
		tx.Fees,
		tx.Notes,
	).Scan(&tx.Seq, &tx.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return apperrors.NewNotFoundError("transaction", tx.ID)
		}
		return classifyPgError("transactions", "update transaction", err)
	}

	return nil
}

// Delete removes an owner's transaction
func (r *TransactionRepository) Delete(ctx context.Context, ownerID, id string) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return classifyPgError("transactions", "delete transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("transaction", id)
	}
	return nil
}

// GetByID retrieves one of an owner's transactions
func (r *TransactionRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND owner_id = $2`

	tx, err := scanTransaction(r.db.Pool().QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.NewNotFoundError("transaction", id)
		}
		return nil, classifyPgError("transactions", "get transaction", err)
	}
	return tx, nil
}

// FindTransactions returns an owner's ledger in date then insertion order
func (r *TransactionRepository) FindTransactions(ctx context.Context, ownerID string, filter models.TransactionFilter) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE owner_id = $1`
	args := []interface{}{ownerID}

	if filter.AccountID != nil {
		args = append(args, *filter.AccountID)
		query += fmt.Sprintf(" AND account_id = $%d", len(args))
	}
	if filter.SecurityID != nil {
		args = append(args, *filter.SecurityID)
		query += fmt.Sprintf(" AND security_id = $%d", len(args))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " ORDER BY date ASC, seq ASC"

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, classifyPgError("transactions", "find transactions", err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, classifyPgError("transactions", "scan transaction", err)
		}
		transactions = append(transactions, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("transactions", "iterate transactions", err)
	}

	return transactions, nil
}

// FindOwnersBySecurity returns every owner with a transaction or a stored
// position in the security
func (r *TransactionRepository) FindOwnersBySecurity(ctx context.Context, securityID string) ([]string, error) {
	query := `
		SELECT owner_id FROM transactions WHERE security_id = $1
		UNION
		SELECT a.owner_id FROM positions p JOIN accounts a ON a.id = p.account_id WHERE p.security_id = $1`

	rows, err := r.db.Pool().Query(ctx, query, securityID)
	if err != nil {
		return nil, classifyPgError("transactions", "find security holders", err)
	}
	defer rows.Close()

	owners := []string{}
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, classifyPgError("transactions", "scan security holder", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("transactions", "iterate security holders", err)
	}
	return owners, nil
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var tx models.Transaction
	var txType string
	var quantity, price decimal.NullDecimal
	var date time.Time

	err := row.Scan(
		&tx.ID,
		&tx.OwnerID,
		&date,
		&tx.AccountID,
		&tx.SecurityID,
		&txType,
		&quantity,
		&price,
		&tx.Fees,
		&tx.Notes,
		&tx.Seq,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Date = date
	tx.Type = types.TransactionType(txType)
	tx.Quantity = decimalPtr(quantity)
	tx.Price = decimalPtr(price)
	return &tx, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}
