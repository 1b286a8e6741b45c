package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/portfolio-holdings/internal/models"
	"github.com/portfolio-holdings/internal/types"
)

// transactionRequest is the body of POST and PUT /api/transactions
type transactionRequest struct {
	Date       string           `json:"date"`
	AccountID  string           `json:"accountId"`
	SecurityID *string          `json:"securityId,omitempty"`
	Type       string           `json:"type"`
	Quantity   *decimal.Decimal `json:"quantity,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Fees       *decimal.Decimal `json:"fees,omitempty"`
	Notes      *string          `json:"notes,omitempty"`
}

func (req *transactionRequest) toModel() (*models.Transaction, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		Date:       date,
		AccountID:  strings.TrimSpace(req.AccountID),
		SecurityID: req.SecurityID,
		Type:       types.ParseTransactionType(req.Type),
		Quantity:   req.Quantity,
		Price:      req.Price,
		Notes:      req.Notes,
	}
	if req.Fees != nil {
		tx.Fees = *req.Fees
	}
	return tx, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD or RFC 3339: %q", raw)
	}
	return t.UTC(), nil
}

// requireOwner writes a 401 and returns false when the caller has no owner id
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID := ownerFromRequest(r)
	if ownerID == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return "", false
	}
	return ownerID, true
}

// handleCreateTransaction handles POST /api/transactions
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req transactionRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	tx, err := req.toModel()
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	if err := s.ledger.RecordTransaction(r.Context(), ownerID, tx); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, tx)
}

// handleUpdateTransaction handles PUT /api/transactions/{id}
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	id := mux.Vars(r)["id"]
	if id == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Transaction ID required", nil)
		return
	}

	var req transactionRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	tx, err := req.toModel()
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	tx.ID = id

	if err := s.ledger.UpdateTransaction(r.Context(), ownerID, tx); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tx)
}

// handleDeleteTransaction handles DELETE /api/transactions/{id}
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	if err := s.ledger.DeleteTransaction(r.Context(), ownerID, mux.Vars(r)["id"]); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRecordPrice handles POST /api/prices
func (s *Server) handleRecordPrice(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req struct {
		SecurityID string          `json:"securityId"`
		Date       string          `json:"date"`
		Price      decimal.Decimal `json:"price"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	snapshot := &models.PriceSnapshot{SecurityID: strings.TrimSpace(req.SecurityID), Date: date, Price: req.Price}
	if err := s.ledger.RecordPrice(r.Context(), ownerID, snapshot); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, snapshot)
}

// handleUpsertPosition handles PUT /api/positions
func (s *Server) handleUpsertPosition(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req struct {
		SecurityID string          `json:"securityId"`
		AccountID  string          `json:"accountId"`
		Quantity   decimal.Decimal `json:"quantity"`
		AvgPrice   decimal.Decimal `json:"avgPrice"`
		BookValue  decimal.Decimal `json:"bookValue"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	position := &models.Position{
		SecurityID: strings.TrimSpace(req.SecurityID),
		AccountID:  strings.TrimSpace(req.AccountID),
		Quantity:   req.Quantity,
		AvgPrice:   req.AvgPrice,
		BookValue:  req.BookValue,
	}
	if err := s.ledger.UpsertPosition(r.Context(), ownerID, position); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, position)
}
