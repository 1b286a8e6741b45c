package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/portfolio-holdings/internal/models"
)

// AccountRepository handles account persistence
type AccountRepository struct {
	db *PostgresDB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *PostgresDB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create creates a new account
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	account.CreatedAt = time.Now()

	query := `
		INSERT INTO accounts (id, owner_id, name, type, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		account.ID,
		account.OwnerID,
		account.Name,
		account.Type,
		account.CreatedAt,
	)
	if err != nil {
		return classifyPgError("accounts", "create account", err)
	}

	return nil
}

// FindAccountsByIDs returns the owner's accounts among ids. Accounts of other
// owners are never returned.
func (r *AccountRepository) FindAccountsByIDs(ctx context.Context, ownerID string, ids []string) ([]models.Account, error) {
	accounts := []models.Account{}
	if len(ids) == 0 {
		return accounts, nil
	}

	query := `
		SELECT id, owner_id, name, type, created_at
		FROM accounts
		WHERE owner_id = $1 AND id = ANY($2)
	`

	rows, err := r.db.Pool().Query(ctx, query, ownerID, ids)
	if err != nil {
		return nil, classifyPgError("accounts", "find accounts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Type, &a.CreatedAt); err != nil {
			return nil, classifyPgError("accounts", "scan account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("accounts", "iterate accounts", err)
	}

	return accounts, nil
}
