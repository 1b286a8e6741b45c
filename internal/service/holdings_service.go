package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/portfolio-holdings/internal/errors"
	"github.com/portfolio-holdings/internal/logging"
	"github.com/portfolio-holdings/internal/models"
	"github.com/portfolio-holdings/internal/storage"
)

// DefaultHoldingsTTL is used when no cache TTL is configured
const DefaultHoldingsTTL = 30 * time.Second

// DefaultComputeTimeout bounds a shared computation once it no longer follows
// any single caller's context
const DefaultComputeTimeout = 30 * time.Second

// HoldingsServiceConfig wires the collaborators of a HoldingsService.
// Positions and Aggregator are optional; zero durations take the defaults.
type HoldingsServiceConfig struct {
	Positions      PositionSource
	Transactions   TransactionReader
	Securities     SecurityReader
	Accounts       AccountReader
	Prices         PriceSnapshotReader
	Aggregator     Aggregator
	Cache          storage.HoldingsCache
	CacheTTL       time.Duration
	ComputeTimeout time.Duration
	Metrics        *Metrics
	Logger         *logging.Logger
}

// HoldingsService computes portfolio holdings. A call first consults the
// cache, then precomputed positions, and finally replays the ledger.
type HoldingsService struct {
	positions    PositionSource
	transactions TransactionReader
	securities   SecurityReader
	accounts     AccountReader
	prices       *PriceResolver
	aggregator   Aggregator
	assembler    *HoldingsAssembler
	cache        storage.HoldingsCache
	ttl          time.Duration
	timeout      time.Duration
	metrics      *Metrics
	logger       *logging.Logger

	flights singleflight.Group
}

// NewHoldingsService creates a new holdings service
func NewHoldingsService(cfg HoldingsServiceConfig) (*HoldingsService, error) {
	if cfg.Transactions == nil || cfg.Securities == nil || cfg.Accounts == nil || cfg.Prices == nil {
		return nil, errors.New("holdings service requires transaction, security, account and price readers")
	}
	if cfg.Cache == nil {
		return nil, errors.New("holdings service requires a cache")
	}
	if cfg.Aggregator == nil {
		cfg.Aggregator = NewCostBasisAggregator()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultHoldingsTTL
	}
	if cfg.ComputeTimeout <= 0 {
		cfg.ComputeTimeout = DefaultComputeTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetGlobalLogger()
	}

	return &HoldingsService{
		positions:    cfg.Positions,
		transactions: cfg.Transactions,
		securities:   cfg.Securities,
		accounts:     cfg.Accounts,
		prices:       NewPriceResolver(cfg.Prices),
		aggregator:   cfg.Aggregator,
		assembler:    NewHoldingsAssembler(),
		cache:        cfg.Cache,
		ttl:          cfg.CacheTTL,
		timeout:      cfg.ComputeTimeout,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.WithField("component", "holdings_service"),
	}, nil
}

// GetHoldings returns the owner's holdings, optionally for one account. Any
// failure to read data, including a missing owner or a storage permission
// error, is logged and yields an empty list.
func (s *HoldingsService) GetHoldings(ctx context.Context, ownerID string, accountID *string) []models.Holding {
	holdings, err := s.LoadHoldings(ctx, ownerID, accountID)
	if err == nil {
		return holdings
	}

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		s.logger.WithField("ownerId", ownerID).WithError(err).Debug("holdings request ended before the result was ready")
		return []models.Holding{}
	}

	catErr := apperrors.Categorize(err)
	s.metrics.degraded(catErr.Code)

	logger := s.logger.WithFields(map[string]interface{}{
		"ownerId":       ownerID,
		"accountFilter": scopeLabel(accountID),
		"code":          catErr.Code,
	}).WithError(err)
	switch {
	case catErr.Code == apperrors.CodeNotAuthenticated:
		logger.Debug("holdings requested without owner context")
	case apperrors.IsNoDataCondition(err):
		logger.Warn("holdings unavailable, returning empty result")
	default:
		logger.Error("holdings computation failed, returning empty result")
	}

	return []models.Holding{}
}

// LoadHoldings is the strict form of GetHoldings: failures are returned as
// categorized errors for the caller to handle.
func (s *HoldingsService) LoadHoldings(ctx context.Context, ownerID string, accountID *string) ([]models.Holding, error) {
	if ownerID == "" {
		return nil, apperrors.NewNotAuthenticatedError()
	}
	if accountID != nil && *accountID == "" {
		accountID = nil
	}

	generation, err := s.cache.Generation(ctx, ownerID)
	if err != nil {
		// without a generation a write could outlive an invalidation, so
		// compute for this caller only and leave the cache alone
		s.logger.WithError(err).WithField("ownerId", ownerID).Warn("holdings cache generation unavailable, computing uncached")
		s.metrics.cacheMiss()
		return s.compute(ctx, ownerID, accountID)
	}

	key := storage.HoldingsCacheKey(ownerID, generation, accountID)
	if cached, ok := s.cache.Get(ctx, key); ok {
		s.metrics.cacheHit()
		return cached, nil
	}
	s.metrics.cacheMiss()

	// The flight outlives any one caller: it runs detached from the first
	// caller's cancellation, and each caller waits on its own context.
	results := s.flights.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		holdings, err := s.compute(flightCtx, ownerID, accountID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Put(flightCtx, key, holdings, s.ttl); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("failed to cache holdings")
		}
		return holdings, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.([]models.Holding)
		out := make([]models.Holding, len(shared))
		copy(out, shared)
		return out, nil
	}
}

// GetPortfolioValue sums the market value of the owner's holdings
func (s *HoldingsService) GetPortfolioValue(ctx context.Context, ownerID string, accountID *string) decimal.Decimal {
	return SumMarketValue(s.GetHoldings(ctx, ownerID, accountID))
}

// GetPortfolioSummary returns totals and allocation by asset type
func (s *HoldingsService) GetPortfolioSummary(ctx context.Context, ownerID string, accountID *string) models.PortfolioSummary {
	return Summarize(ownerID, accountID, s.GetHoldings(ctx, ownerID, accountID))
}

// InvalidateHoldingsCache drops every cached scope for the owner. It must be
// called after any change to the owner's transactions, positions or prices.
// The cache advances the owner's generation, so computations already in
// flight cannot repopulate it with stale results.
func (s *HoldingsService) InvalidateHoldingsCache(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return apperrors.NewNotAuthenticatedError()
	}

	if err := s.cache.Invalidate(ctx, ownerID); err != nil {
		s.logger.WithError(err).WithField("ownerId", ownerID).Warn("failed to invalidate holdings cache")
		return err
	}
	return nil
}

func (s *HoldingsService) compute(ctx context.Context, ownerID string, accountID *string) ([]models.Holding, error) {
	started := time.Now()

	if s.positions != nil {
		positions, err := s.positions.Find(ctx, ownerID, accountID)
		if err != nil {
			return nil, repositoryError("find positions", err)
		}
		if len(positions) > 0 {
			securityIDs := make([]string, 0, len(positions))
			accountIDs := make([]string, 0, len(positions))
			for _, p := range positions {
				securityIDs = append(securityIDs, p.SecurityID)
				accountIDs = append(accountIDs, p.AccountID)
			}

			refs, err := s.loadReferences(ctx, ownerID, securityIDs, accountIDs)
			if err != nil {
				return nil, err
			}

			holdings := s.assembler.FromPositions(positions, refs.prices, refs.securities, refs.accounts)
			s.metrics.computed(PathFast, started)
			return holdings, nil
		}
	}

	transactions, err := s.transactions.FindTransactions(ctx, ownerID, models.TransactionFilter{AccountID: accountID})
	if err != nil {
		return nil, repositoryError("find transactions", err)
	}

	aggregates := s.aggregator.Replay(transactions)

	securityIDs := make([]string, 0, len(aggregates))
	accountIDs := make([]string, 0, len(aggregates))
	for key, state := range aggregates {
		if !state.Quantity.IsPositive() {
			continue
		}
		securityIDs = append(securityIDs, key.SecurityID)
		accountIDs = append(accountIDs, key.AccountID)
	}

	refs, err := s.loadReferences(ctx, ownerID, securityIDs, accountIDs)
	if err != nil {
		return nil, err
	}

	holdings := s.assembler.FromAggregates(aggregates, refs.prices, refs.securities, refs.accounts)
	s.metrics.computed(PathFallback, started)
	return holdings, nil
}

type references struct {
	securities map[string]models.Security
	accounts   map[string]models.Account
	prices     map[string]decimal.Decimal
}

// loadReferences issues the security, account and price lookups concurrently
func (s *HoldingsService) loadReferences(ctx context.Context, ownerID string, securityIDs, accountIDs []string) (*references, error) {
	securityIDs = uniqueIDs(securityIDs)
	accountIDs = uniqueIDs(accountIDs)

	refs := &references{
		securities: make(map[string]models.Security, len(securityIDs)),
		accounts:   make(map[string]models.Account, len(accountIDs)),
		prices:     map[string]decimal.Decimal{},
	}
	if len(securityIDs) == 0 && len(accountIDs) == 0 {
		return refs, nil
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if len(securityIDs) == 0 {
			return nil
		}
		securities, err := s.securities.FindSecuritiesByIDs(gctx, securityIDs)
		if err != nil {
			return repositoryError("find securities", err)
		}
		for _, sec := range securities {
			refs.securities[sec.ID] = sec
		}
		return nil
	})

	g.Go(func() error {
		if len(accountIDs) == 0 {
			return nil
		}
		accounts, err := s.accounts.FindAccountsByIDs(gctx, ownerID, accountIDs)
		if err != nil {
			return repositoryError("find accounts", err)
		}
		for _, acc := range accounts {
			refs.accounts[acc.ID] = acc
		}
		return nil
	})

	g.Go(func() error {
		prices, err := s.prices.Latest(gctx, securityIDs)
		if err != nil {
			return repositoryError("find prices", err)
		}
		refs.prices = prices
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

// repositoryError keeps categorized errors and treats anything else from a
// reader as a database failure
func repositoryError(operation string, err error) error {
	var catErr *apperrors.CategorizedError
	if errors.As(err, &catErr) {
		return err
	}
	return apperrors.NewDatabaseError(operation, err)
}

func scopeLabel(accountID *string) string {
	if accountID == nil {
		return "all"
	}
	return *accountID
}
