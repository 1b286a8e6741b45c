package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/portfolio-holdings/internal/models"
)

// PriceResolver finds the latest stored price per security
type PriceResolver struct {
	reader PriceSnapshotReader
}

// NewPriceResolver creates a new price resolver
func NewPriceResolver(reader PriceSnapshotReader) *PriceResolver {
	return &PriceResolver{reader: reader}
}

// Latest returns the most recent price for each security that has at least one
// snapshot. Securities without snapshots are absent from the result.
func (r *PriceResolver) Latest(ctx context.Context, securityIDs []string) (map[string]decimal.Decimal, error) {
	ids := uniqueIDs(securityIDs)
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	snapshots, err := r.reader.FindBySecurityIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	return SelectLatestPrices(snapshots), nil
}

// SelectLatestPrices picks, per security, the snapshot with the latest date.
// On a date tie the later insertion wins: higher Seq, then later position in
// the input.
func SelectLatestPrices(snapshots []models.PriceSnapshot) map[string]decimal.Decimal {
	best := make(map[string]models.PriceSnapshot, len(snapshots))
	for _, s := range snapshots {
		current, ok := best[s.SecurityID]
		if !ok || supersedes(s, current) {
			best[s.SecurityID] = s
		}
	}

	prices := make(map[string]decimal.Decimal, len(best))
	for id, s := range best {
		prices[id] = s.Price
	}
	return prices
}

func supersedes(candidate, current models.PriceSnapshot) bool {
	if !candidate.Date.Equal(current.Date) {
		return candidate.Date.After(current.Date)
	}
	return candidate.Seq >= current.Seq
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
