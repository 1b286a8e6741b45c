package service

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/portfolio-holdings/internal/errors"
	"github.com/portfolio-holdings/internal/logging"
	"github.com/portfolio-holdings/internal/models"
	"github.com/portfolio-holdings/internal/retry"
)

// HoldingsInvalidator drops cached holdings for an owner
type HoldingsInvalidator interface {
	InvalidateHoldingsCache(ctx context.Context, ownerID string) error
}

// LedgerServiceConfig wires the collaborators of a LedgerService. Mirror is
// optional; MirrorRetry defaults to retry.DefaultConfig.
type LedgerServiceConfig struct {
	Transactions TransactionWriter
	Accounts     AccountReader
	Prices       PriceSnapshotWriter
	Positions    PositionWriter
	Holders      SecurityHolderReader
	Mirror       LedgerMirror
	MirrorRetry  *retry.Config
	Invalidator  HoldingsInvalidator
	Logger       *logging.Logger
}

// LedgerService applies ledger mutations. Every successful mutation
// invalidates the owner's cached holdings.
type LedgerService struct {
	transactions TransactionWriter
	accounts     AccountReader
	prices       PriceSnapshotWriter
	positions    PositionWriter
	holders      SecurityHolderReader
	mirror       LedgerMirror
	mirrorRetry  *retry.Config
	invalidator  HoldingsInvalidator
	logger       *logging.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(cfg LedgerServiceConfig) (*LedgerService, error) {
	if cfg.Transactions == nil || cfg.Accounts == nil || cfg.Prices == nil || cfg.Positions == nil {
		return nil, errors.New("ledger service requires transaction, account, price and position stores")
	}
	if cfg.Invalidator == nil {
		return nil, errors.New("ledger service requires a holdings invalidator")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetGlobalLogger()
	}
	if cfg.MirrorRetry == nil {
		cfg.MirrorRetry = retry.DefaultConfig()
	}

	return &LedgerService{
		transactions: cfg.Transactions,
		accounts:     cfg.Accounts,
		prices:       cfg.Prices,
		positions:    cfg.Positions,
		holders:      cfg.Holders,
		mirror:       cfg.Mirror,
		mirrorRetry:  cfg.MirrorRetry,
		invalidator:  cfg.Invalidator,
		logger:       cfg.Logger.WithField("component", "ledger_service"),
	}, nil
}

// RecordTransaction validates and stores a new ledger entry for the owner
func (s *LedgerService) RecordTransaction(ctx context.Context, ownerID string, tx *models.Transaction) error {
	if ownerID == "" {
		return apperrors.NewNotAuthenticatedError()
	}
	tx.OwnerID = ownerID
	if err := s.validateTransaction(ctx, tx); err != nil {
		return err
	}

	if err := s.transactions.Create(ctx, tx); err != nil {
		return err
	}

	s.mirrorSave(ctx, tx)
	s.invalidate(ctx, ownerID)
	return nil
}

// UpdateTransaction replaces an existing ledger entry owned by ownerID
func (s *LedgerService) UpdateTransaction(ctx context.Context, ownerID string, tx *models.Transaction) error {
	if ownerID == "" {
		return apperrors.NewNotAuthenticatedError()
	}
	if tx.ID == "" {
		return apperrors.NewInvalidParameterError("id", "transaction id is required")
	}
	tx.OwnerID = ownerID

	if _, err := s.transactions.GetByID(ctx, ownerID, tx.ID); err != nil {
		return err
	}
	if err := s.validateTransaction(ctx, tx); err != nil {
		return err
	}

	if err := s.transactions.Update(ctx, tx); err != nil {
		return err
	}

	s.mirrorSave(ctx, tx)
	s.invalidate(ctx, ownerID)
	return nil
}

// DeleteTransaction removes a ledger entry owned by ownerID
func (s *LedgerService) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	if ownerID == "" {
		return apperrors.NewNotAuthenticatedError()
	}
	if id == "" {
		return apperrors.NewInvalidParameterError("id", "transaction id is required")
	}

	if err := s.transactions.Delete(ctx, ownerID, id); err != nil {
		return err
	}

	if s.mirror != nil {
		err := retry.WithRetry(ctx, s.mirrorRetry, func(ctx context.Context, attempt int) error {
			return s.mirror.Remove(ctx, ownerID, id)
		})
		if err != nil {
			s.logger.WithError(err).WithField("transactionId", id).Warn("failed to mirror ledger delete")
		}
	}
	s.invalidate(ctx, ownerID)
	return nil
}

// RecordPrice stores a price snapshot. Prices are shared across owners but
// only the caller's cache is dropped here; other owners pick the price up
// when their entries expire.
func (s *LedgerService) RecordPrice(ctx context.Context, ownerID string, snapshot *models.PriceSnapshot) error {
	if ownerID == "" {
		return apperrors.NewNotAuthenticatedError()
	}
	if strings.TrimSpace(snapshot.SecurityID) == "" {
		return apperrors.NewInvalidParameterError("securityId", "security is required")
	}
	if snapshot.Date.IsZero() {
		return apperrors.NewInvalidParameterError("date", "date is required")
	}
	if !snapshot.Price.IsPositive() {
		return apperrors.NewInvalidParameterError("price", "must be greater than zero")
	}

	if err := s.prices.Create(ctx, snapshot); err != nil {
		return err
	}

	for _, owner := range s.priceDependents(ctx, ownerID, snapshot.SecurityID) {
		s.invalidate(ctx, owner)
	}
	return nil
}

// priceDependents lists the caller followed by every other owner holding the
// security. Prices are shared, so all of them see the new snapshot.
func (s *LedgerService) priceDependents(ctx context.Context, ownerID, securityID string) []string {
	owners := []string{ownerID}
	if s.holders == nil {
		return owners
	}

	holders, err := s.holders.FindOwnersBySecurity(ctx, securityID)
	if err != nil {
		s.logger.WithError(err).WithField("securityId", securityID).Warn("failed to find security holders, invalidating the caller only")
		return owners
	}
	for _, holder := range holders {
		if holder != "" && holder != ownerID {
			owners = append(owners, holder)
		}
	}
	return owners
}

// UpsertPosition writes a precomputed position for one of the owner's accounts
func (s *LedgerService) UpsertPosition(ctx context.Context, ownerID string, position *models.Position) error {
	if ownerID == "" {
		return apperrors.NewNotAuthenticatedError()
	}
	if strings.TrimSpace(position.SecurityID) == "" {
		return apperrors.NewInvalidParameterError("securityId", "security is required")
	}
	switch {
	case position.Quantity.IsNegative():
		return apperrors.NewInvalidParameterError("quantity", "must not be negative")
	case position.AvgPrice.IsNegative():
		return apperrors.NewInvalidParameterError("avgPrice", "must not be negative")
	case position.BookValue.IsNegative():
		return apperrors.NewInvalidParameterError("bookValue", "must not be negative")
	}
	if err := s.checkAccount(ctx, ownerID, position.AccountID); err != nil {
		return err
	}

	if err := s.positions.Upsert(ctx, position); err != nil {
		return err
	}

	s.invalidate(ctx, ownerID)
	return nil
}

func (s *LedgerService) validateTransaction(ctx context.Context, tx *models.Transaction) error {
	if !tx.Type.Valid() {
		return apperrors.NewInvalidParameterError("type", "unknown transaction type")
	}
	if tx.Date.IsZero() {
		return apperrors.NewInvalidParameterError("date", "date is required")
	}
	if tx.SecurityID != nil && strings.TrimSpace(*tx.SecurityID) == "" {
		tx.SecurityID = nil
	}
	if tx.Type.AffectsCostBasis() && tx.SecurityID == nil {
		return apperrors.NewInvalidParameterError("securityId", "required for buy and sell")
	}
	if tx.Quantity != nil && tx.Quantity.IsNegative() {
		return apperrors.NewInvalidParameterError("quantity", "must not be negative")
	}
	if tx.Price != nil && tx.Price.IsNegative() {
		return apperrors.NewInvalidParameterError("price", "must not be negative")
	}
	if tx.Fees.IsNegative() {
		return apperrors.NewInvalidParameterError("fees", "must not be negative")
	}

	return s.checkAccount(ctx, tx.OwnerID, tx.AccountID)
}

// checkAccount rejects accounts that do not belong to the owner
func (s *LedgerService) checkAccount(ctx context.Context, ownerID, accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return apperrors.NewInvalidParameterError("accountId", "account is required")
	}

	accounts, err := s.accounts.FindAccountsByIDs(ctx, ownerID, []string{accountID})
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		if acc.ID == accountID && acc.OwnerID == ownerID {
			return nil
		}
	}
	return apperrors.NewNotFoundError("account", accountID)
}

func (s *LedgerService) mirrorSave(ctx context.Context, tx *models.Transaction) {
	if s.mirror == nil {
		return
	}
	err := retry.WithRetry(ctx, s.mirrorRetry, func(ctx context.Context, attempt int) error {
		return s.mirror.Save(ctx, tx)
	})
	if err != nil {
		s.logger.WithError(err).WithField("transactionId", tx.ID).Warn("failed to mirror ledger write")
	}
}

// invalidate never fails the mutation; the write has already landed
func (s *LedgerService) invalidate(ctx context.Context, ownerID string) {
	if err := s.invalidator.InvalidateHoldingsCache(ctx, ownerID); err != nil {
		s.logger.WithError(err).WithField("ownerId", ownerID).Error("holdings cache invalidation failed after ledger write")
	}
}
