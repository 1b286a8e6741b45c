package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/portfolio-holdings/internal/models"
)

// PositionRepository reads and writes precomputed positions. Reads serve the
// holdings fast path.
type PositionRepository struct {
	db *PostgresDB
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *PostgresDB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Find returns the owner's positions, optionally for one account. An owner
// without positions gets an empty slice, not an error.
func (r *PositionRepository) Find(ctx context.Context, ownerID string, accountID *string) ([]models.Position, error) {
	query := `
		SELECT p.security_id, p.account_id, p.quantity, p.avg_price, p.book_value, p.updated_at
		FROM positions p
		JOIN accounts a ON a.id = p.account_id
		WHERE a.owner_id = $1
	`
	args := []interface{}{ownerID}

	if accountID != nil {
		args = append(args, *accountID)
		query += fmt.Sprintf(" AND p.account_id = $%d", len(args))
	}
	query += " ORDER BY p.account_id, p.security_id"

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, classifyPgError("positions", "find positions", err)
	}
	defer rows.Close()

	positions := []models.Position{}
	for rows.Next() {
		var p models.Position
		err := rows.Scan(&p.SecurityID, &p.AccountID, &p.Quantity, &p.AvgPrice, &p.BookValue, &p.UpdatedAt)
		if err != nil {
			return nil, classifyPgError("positions", "scan position", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("positions", "iterate positions", err)
	}

	return positions, nil
}

// Upsert writes a position snapshot, replacing any existing row for the same
// security and account
func (r *PositionRepository) Upsert(ctx context.Context, position *models.Position) error {
	position.UpdatedAt = time.Now()

	query := `
		INSERT INTO positions (security_id, account_id, quantity, avg_price, book_value, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (security_id, account_id) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    avg_price = EXCLUDED.avg_price,
		    book_value = EXCLUDED.book_value,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool().Exec(ctx, query,
		position.SecurityID,
		position.AccountID,
		position.Quantity,
		position.AvgPrice,
		position.BookValue,
		position.UpdatedAt,
	)
	if err != nil {
		return classifyPgError("positions", "upsert position", err)
	}

	return nil
}
