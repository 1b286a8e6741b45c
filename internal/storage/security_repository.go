package storage

import (
	"context"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/portfolio-holdings/internal/errors"
	"github.com/portfolio-holdings/internal/models"
)

// SecurityRepository handles security reference data
type SecurityRepository struct {
	db *PostgresDB
}

// NewSecurityRepository creates a new security repository
func NewSecurityRepository(db *PostgresDB) *SecurityRepository {
	return &SecurityRepository{db: db}
}

// Create stores a security. Symbols are upper-cased and unique.
func (r *SecurityRepository) Create(ctx context.Context, security *models.Security) error {
	if security.ID == "" {
		security.ID = uuid.New().String()
	}
	security.Symbol = strings.ToUpper(strings.TrimSpace(security.Symbol))

	query := `
		INSERT INTO securities (id, symbol, name, asset_class, sector)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		security.ID,
		security.Symbol,
		security.Name,
		security.AssetClass,
		security.Sector,
	)
	if err != nil {
		return classifyPgError("securities", "create security", err)
	}

	return nil
}

// GetBySymbol looks a security up by ticker
func (r *SecurityRepository) GetBySymbol(ctx context.Context, symbol string) (*models.Security, error) {
	query := `SELECT id, symbol, name, asset_class, sector FROM securities WHERE symbol = $1`

	var s models.Security
	err := r.db.Pool().QueryRow(ctx, query, strings.ToUpper(symbol)).Scan(
		&s.ID, &s.Symbol, &s.Name, &s.AssetClass, &s.Sector,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.NewNotFoundError("security", symbol)
		}
		return nil, classifyPgError("securities", "get security", err)
	}

	return &s, nil
}

// FindSecuritiesByIDs returns the securities with the given ids. Unknown ids are skipped.
func (r *SecurityRepository) FindSecuritiesByIDs(ctx context.Context, ids []string) ([]models.Security, error) {
	securities := []models.Security{}
	if len(ids) == 0 {
		return securities, nil
	}

	query := `SELECT id, symbol, name, asset_class, sector FROM securities WHERE id = ANY($1)`

	rows, err := r.db.Pool().Query(ctx, query, ids)
	if err != nil {
		return nil, classifyPgError("securities", "find securities", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.Security
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Name, &s.AssetClass, &s.Sector); err != nil {
			return nil, classifyPgError("securities", "scan security", err)
		}
		securities = append(securities, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("securities", "iterate securities", err)
	}

	return securities, nil
}
