package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/portfolio-holdings/internal/errors"
	"github.com/portfolio-holdings/internal/logging"
	"github.com/portfolio-holdings/internal/models"
	"github.com/portfolio-holdings/internal/types"
)

// Mock services for testing

type mockHoldingsService struct {
	holdings      []models.Holding
	loadErr       error
	invalidateErr error

	lastOwner       string
	lastAccount     *string
	invalidatedFor  []string
	strictCallCount int
}

func (m *mockHoldingsService) GetHoldings(ctx context.Context, ownerID string, accountID *string) []models.Holding {
	m.lastOwner, m.lastAccount = ownerID, accountID
	if ownerID == "" || m.loadErr != nil {
		return []models.Holding{}
	}
	return m.holdings
}

func (m *mockHoldingsService) LoadHoldings(ctx context.Context, ownerID string, accountID *string) ([]models.Holding, error) {
	m.strictCallCount++
	m.lastOwner, m.lastAccount = ownerID, accountID
	if ownerID == "" {
		return nil, apperrors.NewNotAuthenticatedError()
	}
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.holdings, nil
}

func (m *mockHoldingsService) GetPortfolioValue(ctx context.Context, ownerID string, accountID *string) decimal.Decimal {
	total := decimal.Zero
	for _, h := range m.GetHoldings(ctx, ownerID, accountID) {
		total = total.Add(h.MarketValue)
	}
	return total
}

func (m *mockHoldingsService) GetPortfolioSummary(ctx context.Context, ownerID string, accountID *string) models.PortfolioSummary {
	holdings := m.GetHoldings(ctx, ownerID, accountID)
	return models.PortfolioSummary{OwnerID: ownerID, AccountID: accountID, HoldingCount: len(holdings), Allocation: []models.AssetAllocation{}}
}

func (m *mockHoldingsService) InvalidateHoldingsCache(ctx context.Context, ownerID string) error {
	m.invalidatedFor = append(m.invalidatedFor, ownerID)
	return m.invalidateErr
}

type mockLedgerService struct {
	err error

	recorded  []*models.Transaction
	updated   []*models.Transaction
	deleted   []string
	prices    []*models.PriceSnapshot
	positions []*models.Position
}

func (m *mockLedgerService) RecordTransaction(ctx context.Context, ownerID string, tx *models.Transaction) error {
	if m.err != nil {
		return m.err
	}
	tx.ID = "tx-1"
	tx.OwnerID = ownerID
	m.recorded = append(m.recorded, tx)
	return nil
}

func (m *mockLedgerService) UpdateTransaction(ctx context.Context, ownerID string, tx *models.Transaction) error {
	if m.err != nil {
		return m.err
	}
	m.updated = append(m.updated, tx)
	return nil
}

func (m *mockLedgerService) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockLedgerService) RecordPrice(ctx context.Context, ownerID string, snapshot *models.PriceSnapshot) error {
	if m.err != nil {
		return m.err
	}
	m.prices = append(m.prices, snapshot)
	return nil
}

func (m *mockLedgerService) UpsertPosition(ctx context.Context, ownerID string, position *models.Position) error {
	if m.err != nil {
		return m.err
	}
	m.positions = append(m.positions, position)
	return nil
}

func sampleHoldings() []models.Holding {
	return []models.Holding{
		{SecurityID: "s1", Symbol: "AAPL", AssetType: types.AssetStock, Quantity: decimal.NewFromInt(15), MarketValue: decimal.NewFromInt(2700), AccountID: "a1"},
		{SecurityID: "s2", Symbol: "VTI", AssetType: types.AssetETF, Quantity: decimal.NewFromInt(4), MarketValue: decimal.NewFromInt(1000), AccountID: "a2"},
	}
}

// Helper function to create test server
func createTestServer(holdings *mockHoldingsService, ledger *mockLedgerService) *Server {
	config := &ServerConfig{
		Host:              "localhost",
		Port:              "8080",
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
	}
	logger := logging.NewLogger(logging.LevelFatal, logging.FormatJSON)
	return NewServer(config, holdings, ledger, prometheus.NewRegistry(), logger)
}

func doRequest(s *Server, method, path, owner string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ServiceError {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Error
}

func TestHealthEndpoint(t *testing.T) {
	s := createTestServer(&mockHoldingsService{}, &mockLedgerService{})

	w := doRequest(s, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := createTestServer(&mockHoldingsService{}, &mockLedgerService{})

	w := doRequest(s, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetHoldings_Success(t *testing.T) {
	holdings := &mockHoldingsService{holdings: sampleHoldings()}
	s := createTestServer(holdings, &mockLedgerService{})

	w := doRequest(s, "GET", "/api/holdings?accountId=a1", "user1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got []models.Holding
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Len(t, got, 2)
	assert.Equal(t, "user1", holdings.lastOwner)
	require.NotNil(t, holdings.lastAccount)
	assert.Equal(t, "a1", *holdings.lastAccount)
}

func TestGetHoldings_NoOwnerReturnsEmptyList(t *testing.T) {
	s := createTestServer(&mockHoldingsService{holdings: sampleHoldings()}, &mockLedgerService{})

	w := doRequest(s, "GET", "/api/holdings", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestGetHoldings_StrictSurfacesErrors(t *testing.T) {
	holdings := &mockHoldingsService{loadErr: apperrors.NewPermissionDeniedError("transactions", nil)}
	s := createTestServer(holdings, &mockLedgerService{})

	w := doRequest(s, "GET", "/api/holdings?strict=true", "user1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperrors.CodePermissionDenied, decodeError(t, w).Code)

	w = doRequest(s, "GET", "/api/holdings", "user1", nil)
	assert.Equal(t, http.StatusOK, w.Code, "non-strict reads degrade")

	w = doRequest(s, "GET", "/api/holdings?strict=maybe", "user1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetHoldings_StrictHidesInternalMessages(t *testing.T) {
	holdings := &mockHoldingsService{loadErr: apperrors.NewDatabaseError("find transactions", assert.AnError)}
	s := createTestServer(holdings, &mockLedgerService{})

	w := doRequest(s, "GET", "/api/holdings?strict=1", "user1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	errResp := decodeError(t, w)
	assert.Equal(t, apperrors.CodeDatabaseError, errResp.Code)
	assert.NotContains(t, errResp.Message, assert.AnError.Error())
}

func TestGetPortfolioValue(t *testing.T) {
	s := createTestServer(&mockHoldingsService{holdings: sampleHoldings()}, &mockLedgerService{})

	w := doRequest(s, "GET", "/api/holdings/value", "user1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp portfolioValueResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Value.Equal(decimal.NewFromInt(3700)))
	assert.Nil(t, resp.AccountID)

	w = doRequest(s, "GET", "/api/holdings/value", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Value.IsZero())
}

func TestGetPortfolioSummary(t *testing.T) {
	s := createTestServer(&mockHoldingsService{holdings: sampleHoldings()}, &mockLedgerService{})

	w := doRequest(s, "GET", "/api/holdings/summary", "user1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var summary models.PortfolioSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Equal(t, 2, summary.HoldingCount)
}

func TestInvalidateHoldings(t *testing.T) {
	holdings := &mockHoldingsService{}
	s := createTestServer(holdings, &mockLedgerService{})

	w := doRequest(s, "POST", "/api/holdings/invalidate", "user1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"user1"}, holdings.invalidatedFor)

	w = doRequest(s, "POST", "/api/holdings/invalidate", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	holdings.invalidateErr = apperrors.NewCacheError("invalidate", assert.AnError)
	w = doRequest(s, "POST", "/api/holdings/invalidate", "user1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCreateTransaction_Success(t *testing.T) {
	ledger := &mockLedgerService{}
	s := createTestServer(&mockHoldingsService{}, ledger)

	body := map[string]interface{}{
		"date":       "2024-03-01",
		"accountId":  "a1",
		"securityId": "s1",
		"type":       "BUY",
		"quantity":   "10",
		"price":      100.5,
		"fees":       "1",
	}
	w := doRequest(s, "POST", "/api/transactions", "user1", body)
	require.Equal(t, http.StatusCreated, w.Code)

	require.Len(t, ledger.recorded, 1)
	tx := ledger.recorded[0]
	assert.Equal(t, types.TransactionBuy, tx.Type)
	assert.True(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Equal(tx.Date))
	assert.True(t, tx.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, tx.Price.Equal(decimal.RequireFromString("100.5")))
	assert.True(t, tx.Fees.Equal(decimal.NewFromInt(1)))
}

func TestCreateTransaction_MissingOwner(t *testing.T) {
	ledger := &mockLedgerService{}
	s := createTestServer(&mockHoldingsService{}, ledger)

	w := doRequest(s, "POST", "/api/transactions", "", map[string]interface{}{"type": "buy"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, ledger.recorded)
}

func TestCreateTransaction_BadInput(t *testing.T) {
	s := createTestServer(&mockHoldingsService{}, &mockLedgerService{})

	w := doRequest(s, "POST", "/api/transactions", "user1", map[string]interface{}{"unknown": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(s, "POST", "/api/transactions", "user1", map[string]interface{}{"date": "03/01/2024", "type": "buy"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateTransaction_ValidationError(t *testing.T) {
	ledger := &mockLedgerService{err: apperrors.NewInvalidParameterError("quantity", "must not be negative")}
	s := createTestServer(&mockHoldingsService{}, ledger)

	w := doRequest(s, "POST", "/api/transactions", "user1", map[string]interface{}{"date": "2024-03-01", "type": "buy", "quantity": "-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeInvalidParameter, decodeError(t, w).Code)
}

func TestUpdateTransaction(t *testing.T) {
	ledger := &mockLedgerService{}
	s := createTestServer(&mockHoldingsService{}, ledger)

	w := doRequest(s, "PUT", "/api/transactions/tx-9", "user1", map[string]interface{}{
		"date": "2024-03-01T15:04:05Z", "accountId": "a1", "securityId": "s1", "type": "sell", "quantity": "1", "price": "2",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ledger.updated, 1)
	assert.Equal(t, "tx-9", ledger.updated[0].ID)

	ledger.err = apperrors.NewNotFoundError("transaction", "tx-9")
	w = doRequest(s, "PUT", "/api/transactions/tx-9", "user1", map[string]interface{}{"date": "2024-03-01", "type": "sell"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteTransaction(t *testing.T) {
	ledger := &mockLedgerService{}
	s := createTestServer(&mockHoldingsService{}, ledger)

	w := doRequest(s, "DELETE", "/api/transactions/tx-3", "user1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"tx-3"}, ledger.deleted)

	w = doRequest(s, "DELETE", "/api/transactions/tx-3", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecordPrice(t *testing.T) {
	ledger := &mockLedgerService{}
	s := createTestServer(&mockHoldingsService{}, ledger)

	w := doRequest(s, "POST", "/api/prices", "user1", map[string]interface{}{"securityId": "s1", "date": "2024-03-01", "price": "180.25"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, ledger.prices, 1)
	assert.True(t, ledger.prices[0].Price.Equal(decimal.RequireFromString("180.25")))
}

func TestUpsertPosition(t *testing.T) {
	ledger := &mockLedgerService{}
	s := createTestServer(&mockHoldingsService{}, ledger)

	w := doRequest(s, "PUT", "/api/positions", "user1", map[string]interface{}{
		"securityId": "s1", "accountId": "a1", "quantity": "5", "avgPrice": "10", "bookValue": "50",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ledger.positions, 1)
	assert.Equal(t, "a1", ledger.positions[0].AccountID)
}

func TestRateLimitPerOwner(t *testing.T) {
	config := &ServerConfig{Host: "localhost", Port: "0", RequestsPerSecond: 1, Burst: 2}
	logger := logging.NewLogger(logging.LevelFatal, logging.FormatJSON)
	s := NewServer(config, &mockHoldingsService{}, &mockLedgerService{}, prometheus.NewRegistry(), logger)

	for i := 0; i < 2; i++ {
		w := doRequest(s, "GET", "/api/holdings", "user1", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := doRequest(s, "GET", "/api/holdings", "user1", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, ErrCodeRateLimited, decodeError(t, w).Code)

	// another owner has its own budget
	w = doRequest(s, "GET", "/api/holdings", "user2", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// health is not rate limited
	w = doRequest(s, "GET", "/health", "user1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSHeaders(t *testing.T) {
	s := createTestServer(&mockHoldingsService{}, &mockLedgerService{})

	w := doRequest(s, "GET", "/health", "", nil)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-User-ID")
}
