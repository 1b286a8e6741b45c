// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/portfolio-holdings/internal/logging"
	"github.com/portfolio-holdings/internal/models"
)

// Service interfaces for dependency injection and testing

// HoldingsServiceInterface defines the holdings read operations
type HoldingsServiceInterface interface {
	GetHoldings(ctx context.Context, ownerID string, accountID *string) []models.Holding
	LoadHoldings(ctx context.Context, ownerID string, accountID *string) ([]models.Holding, error)
	GetPortfolioValue(ctx context.Context, ownerID string, accountID *string) decimal.Decimal
	GetPortfolioSummary(ctx context.Context, ownerID string, accountID *string) models.PortfolioSummary
	InvalidateHoldingsCache(ctx context.Context, ownerID string) error
}

// LedgerServiceInterface defines the ledger mutation operations
type LedgerServiceInterface interface {
	RecordTransaction(ctx context.Context, ownerID string, tx *models.Transaction) error
	UpdateTransaction(ctx context.Context, ownerID string, tx *models.Transaction) error
	DeleteTransaction(ctx context.Context, ownerID, id string) error
	RecordPrice(ctx context.Context, ownerID string, snapshot *models.PriceSnapshot) error
	UpsertPosition(ctx context.Context, ownerID string, position *models.Position) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	holdings   HoldingsServiceInterface
	ledger     LedgerServiceInterface
	gatherer   prometheus.Gatherer
	logger     *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestsPerSecond float64 // per owner
	Burst             int
}

// NewServer creates a new API server instance. A nil gatherer serves the
// default prometheus registry.
func NewServer(
	config *ServerConfig,
	holdings HoldingsServiceInterface,
	ledger LedgerServiceInterface,
	gatherer prometheus.Gatherer,
	logger *logging.Logger,
) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router:   mux.NewRouter(),
		holdings: holdings,
		ledger:   ledger,
		gatherer: gatherer,
		logger:   logger.WithField("component", "api"),
		config:   config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// owner-scoped routes are rate limited per X-User-ID
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)))

	// Holdings endpoints
	api.HandleFunc("/holdings", s.handleGetHoldings).Methods("GET")
	api.HandleFunc("/holdings/value", s.handleGetPortfolioValue).Methods("GET")
	api.HandleFunc("/holdings/summary", s.handleGetPortfolioSummary).Methods("GET")
	api.HandleFunc("/holdings/invalidate", s.handleInvalidateHoldings).Methods("POST")

	// Ledger endpoints
	api.HandleFunc("/transactions", s.handleCreateTransaction).Methods("POST")
	api.HandleFunc("/transactions/{id}", s.handleUpdateTransaction).Methods("PUT")
	api.HandleFunc("/transactions/{id}", s.handleDeleteTransaction).Methods("DELETE")
	api.HandleFunc("/prices", s.handleRecordPrice).Methods("POST")
	api.HandleFunc("/positions", s.handleUpsertPosition).Methods("PUT")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portfolio-holdings",
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
