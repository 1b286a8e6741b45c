package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// accountFilter reads the optional accountId query parameter
func accountFilter(r *http.Request) *string {
	accountID := strings.TrimSpace(r.URL.Query().Get("accountId"))
	if accountID == "" {
		return nil
	}
	return &accountID
}

// handleGetHoldings handles GET /api/holdings. With strict=true read failures
// are reported instead of degrading to an empty list.
func (s *Server) handleGetHoldings(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromRequest(r)
	accountID := accountFilter(r)

	strict := false
	if raw := r.URL.Query().Get("strict"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "strict must be a boolean", nil)
			return
		}
		strict = parsed
	}

	if !strict {
		respondJSON(w, http.StatusOK, s.holdings.GetHoldings(r.Context(), ownerID, accountID))
		return
	}

	holdings, err := s.holdings.LoadHoldings(r.Context(), ownerID, accountID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, holdings)
}

// portfolioValueResponse is returned by GET /api/holdings/value
type portfolioValueResponse struct {
	OwnerID   string          `json:"ownerId"`
	AccountID *string         `json:"accountId,omitempty"`
	Value     decimal.Decimal `json:"value"`
}

// handleGetPortfolioValue handles GET /api/holdings/value
func (s *Server) handleGetPortfolioValue(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromRequest(r)
	accountID := accountFilter(r)

	respondJSON(w, http.StatusOK, portfolioValueResponse{
		OwnerID:   ownerID,
		AccountID: accountID,
		Value:     s.holdings.GetPortfolioValue(r.Context(), ownerID, accountID),
	})
}

// handleGetPortfolioSummary handles GET /api/holdings/summary
func (s *Server) handleGetPortfolioSummary(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromRequest(r)
	respondJSON(w, http.StatusOK, s.holdings.GetPortfolioSummary(r.Context(), ownerID, accountFilter(r)))
}

// handleInvalidateHoldings handles POST /api/holdings/invalidate
func (s *Server) handleInvalidateHoldings(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromRequest(r)
	if ownerID == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return
	}

	if err := s.holdings.InvalidateHoldingsCache(r.Context(), ownerID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
