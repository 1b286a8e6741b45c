package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/portfolio-holdings/internal/models"
)

// PriceSnapshotRepository handles stored price snapshots
type PriceSnapshotRepository struct {
	db *PostgresDB
}

// NewPriceSnapshotRepository creates a new price snapshot repository
func NewPriceSnapshotRepository(db *PostgresDB) *PriceSnapshotRepository {
	return &PriceSnapshotRepository{db: db}
}

// Create stores a snapshot and fills in its ID and insertion sequence
func (r *PriceSnapshotRepository) Create(ctx context.Context, snapshot *models.PriceSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}

	query := `
		INSERT INTO price_snapshots (id, security_id, date, price)
		VALUES ($1, $2, $3, $4)
		RETURNING seq
	`

	err := r.db.Pool().QueryRow(ctx, query,
		snapshot.ID,
		snapshot.SecurityID,
		snapshot.Date,
		snapshot.Price,
	).Scan(&snapshot.Seq)
	if err != nil {
		return classifyPgError("price_snapshots", "create price snapshot", err)
	}

	return nil
}

// FindBySecurityIDs returns the latest snapshot per security. DISTINCT ON keeps
// the first row of each group under the date, seq ordering.
func (r *PriceSnapshotRepository) FindBySecurityIDs(ctx context.Context, ids []string) ([]models.PriceSnapshot, error) {
	snapshots := []models.PriceSnapshot{}
	if len(ids) == 0 {
		return snapshots, nil
	}

	query := `
		SELECT DISTINCT ON (security_id) id, security_id, date, price, seq
		FROM price_snapshots
		WHERE security_id = ANY($1)
		ORDER BY security_id, date DESC, seq DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, ids)
	if err != nil {
		return nil, classifyPgError("price_snapshots", "find price snapshots", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.PriceSnapshot
		if err := rows.Scan(&s.ID, &s.SecurityID, &s.Date, &s.Price, &s.Seq); err != nil {
			return nil, classifyPgError("price_snapshots", "scan price snapshot", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("price_snapshots", "iterate price snapshots", err)
	}

	return snapshots, nil
}
