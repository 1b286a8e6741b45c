package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/portfolio-holdings/internal/errors"
	"github.com/portfolio-holdings/internal/logging"
	"github.com/portfolio-holdings/internal/models"
	"github.com/portfolio-holdings/internal/types"
)

// memoryStore is an in-memory stand-in for every repository the services use
type memoryStore struct {
	mu           sync.Mutex
	nextSeq      int64
	transactions map[string]models.Transaction
	securities   map[string]models.Security
	accounts     map[string]models.Account
	positions    map[models.PositionKey]models.Position
	prices       []models.PriceSnapshot

	// fail maps an operation name to the error it returns
	fail  map[string]error
	calls map[string]int

	beforeFindTransactions func()
	afterFindTransactions  func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		transactions: make(map[string]models.Transaction),
		securities:   make(map[string]models.Security),
		accounts:     make(map[string]models.Account),
		positions:    make(map[models.PositionKey]models.Position),
		fail:         make(map[string]error),
		calls:        make(map[string]int),
	}
}

func (m *memoryStore) record(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	return m.fail[op]
}

func (m *memoryStore) callCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *memoryStore) failOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = err
}

func (m *memoryStore) addAccount(id, ownerID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[id] = models.Account{ID: id, OwnerID: ownerID, Name: name, Type: "brokerage"}
}

func (m *memoryStore) addSecurity(id, symbol, name, class string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.securities[id] = models.Security{ID: id, Symbol: symbol, Name: name, AssetClass: class}
}

func (m *memoryStore) addPrice(securityID string, date time.Time, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	m.prices = append(m.prices, models.PriceSnapshot{
		ID:         fmt.Sprintf("px-%d", m.nextSeq),
		SecurityID: securityID,
		Date:       date,
		Price:      decimal.RequireFromString(price),
		Seq:        m.nextSeq,
	})
}

func (m *memoryStore) addTransaction(tx models.Transaction) models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	if tx.ID == "" {
		tx.ID = fmt.Sprintf("tx-%d", m.nextSeq)
	}
	tx.Seq = m.nextSeq
	m.transactions[tx.ID] = tx
	return tx
}

func (m *memoryStore) addPosition(p models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.Key()] = p
}

// TransactionReader / TransactionWriter

func (m *memoryStore) FindTransactions(ctx context.Context, ownerID string, filter models.TransactionFilter) ([]models.Transaction, error) {
	if m.beforeFindTransactions != nil {
		m.beforeFindTransactions()
	}
	if err := m.record("FindTransactions"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	out := []models.Transaction{}
	for _, tx := range m.transactions {
		if tx.OwnerID != ownerID {
			continue
		}
		if filter.AccountID != nil && tx.AccountID != *filter.AccountID {
			continue
		}
		out = append(out, tx)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })

	if m.afterFindTransactions != nil {
		m.afterFindTransactions()
	}
	return out, nil
}

func (m *memoryStore) Create(ctx context.Context, tx *models.Transaction) error {
	if err := m.record("CreateTransaction"); err != nil {
		return err
	}
	*tx = m.addTransaction(*tx)
	return nil
}

func (m *memoryStore) Update(ctx context.Context, tx *models.Transaction) error {
	if err := m.record("UpdateTransaction"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.transactions[tx.ID]
	if !ok || existing.OwnerID != tx.OwnerID {
		return apperrors.NewNotFoundError("transaction", tx.ID)
	}
	tx.Seq = existing.Seq
	m.transactions[tx.ID] = *tx
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, ownerID, id string) error {
	if err := m.record("DeleteTransaction"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.transactions[id]
	if !ok || existing.OwnerID != ownerID {
		return apperrors.NewNotFoundError("transaction", id)
	}
	delete(m.transactions, id)
	return nil
}

func (m *memoryStore) GetByID(ctx context.Context, ownerID, id string) (*models.Transaction, error) {
	if err := m.record("GetTransaction"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.transactions[id]
	if !ok || existing.OwnerID != ownerID {
		return nil, apperrors.NewNotFoundError("transaction", id)
	}
	return &existing, nil
}

// SecurityReader

func (m *memoryStore) FindSecuritiesByIDs(ctx context.Context, ids []string) ([]models.Security, error) {
	if err := m.record("FindSecurities"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Security{}
	for _, id := range ids {
		if s, ok := m.securities[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// SecurityHolderReader

func (m *memoryStore) FindOwnersBySecurity(ctx context.Context, securityID string) ([]string, error) {
	if err := m.record("FindOwnersBySecurity"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	for _, tx := range m.transactions {
		if tx.SecurityID != nil && *tx.SecurityID == securityID {
			seen[tx.OwnerID] = true
		}
	}
	for _, pos := range m.positions {
		if acc, ok := m.accounts[pos.AccountID]; ok && pos.SecurityID == securityID {
			seen[acc.OwnerID] = true
		}
	}
	out := make([]string, 0, len(seen))
	for owner := range seen {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out, nil
}

// AccountReader

func (m *memoryStore) FindAccountsByIDs(ctx context.Context, ownerID string, ids []string) ([]models.Account, error) {
	if err := m.record("FindAccounts"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Account{}
	for _, id := range ids {
		if a, ok := m.accounts[id]; ok && a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	return out, nil
}

// PriceSnapshotReader

func (m *memoryStore) FindBySecurityIDs(ctx context.Context, ids []string) ([]models.PriceSnapshot, error) {
	if err := m.record("FindPrices"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	out := []models.PriceSnapshot{}
	for _, p := range m.prices {
		if wanted[p.SecurityID] {
			out = append(out, p)
		}
	}
	return out, nil
}

// positionStore adapts memoryStore to PositionSource and PositionWriter, whose
// method names collide with the transaction methods
type positionStore struct{ *memoryStore }

func (p positionStore) Find(ctx context.Context, ownerID string, accountID *string) ([]models.Position, error) {
	if err := p.record("FindPositions"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []models.Position{}
	for _, pos := range p.positions {
		acc, ok := p.accounts[pos.AccountID]
		if !ok || acc.OwnerID != ownerID {
			continue
		}
		if accountID != nil && pos.AccountID != *accountID {
			continue
		}
		out = append(out, pos)
	}
	return out, nil
}

func (p positionStore) Upsert(ctx context.Context, position *models.Position) error {
	if err := p.record("UpsertPosition"); err != nil {
		return err
	}
	p.addPosition(*position)
	return nil
}

// priceStore adapts memoryStore to PriceSnapshotWriter
type priceStore struct{ *memoryStore }

func (p priceStore) Create(ctx context.Context, snapshot *models.PriceSnapshot) error {
	if err := p.record("CreatePrice"); err != nil {
		return err
	}
	p.addPrice(snapshot.SecurityID, snapshot.Date, snapshot.Price.String())
	return nil
}

// countingAggregator records how often the ledger is replayed
type countingAggregator struct {
	mu    sync.Mutex
	calls int
	inner Aggregator
}

func (a *countingAggregator) Replay(transactions []models.Transaction) map[models.PositionKey]AggregateState {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return a.inner.Replay(transactions)
}

func (a *countingAggregator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func quietLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelFatal, logging.FormatJSON)
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func strPtr(s string) *string {
	return &s
}

func buy(owner, account, security string, date time.Time, qty, price, fees string) models.Transaction {
	return models.Transaction{
		OwnerID:    owner,
		Date:       date,
		AccountID:  account,
		SecurityID: strPtr(security),
		Type:       types.TransactionBuy,
		Quantity:   decPtr(qty),
		Price:      decPtr(price),
		Fees:       dec(fees),
	}
}

func sell(owner, account, security string, date time.Time, qty, price string) models.Transaction {
	return models.Transaction{
		OwnerID:    owner,
		Date:       date,
		AccountID:  account,
		SecurityID: strPtr(security),
		Type:       types.TransactionSell,
		Quantity:   decPtr(qty),
		Price:      decPtr(price),
	}
}
