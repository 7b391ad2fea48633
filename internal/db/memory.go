package db

import (
	// Go Internal Packages
	"context"
	"sort"
	"sync"
	"time"

	// Local Packages
	errors "github.com/markjakearzadon/momopay-gobackend/internal/errors"
	"github.com/markjakearzadon/momopay-gobackend/internal/models"

	// External Packages
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore keeps transactions and payment records in process memory. It
// serves the "memory" store driver and the tests; a single mutex gives
// UpdateStatusIfPending the same atomicity FindOneAndUpdate gives in Mongo,
// but only within one process.
type MemoryStore struct {
	mu           sync.Mutex
	transactions map[string]models.Transaction
	payments     map[string]models.PaymentRecord
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: map[string]models.Transaction{},
		payments:     map[string]models.PaymentRecord{},
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *MemoryStore) Create(_ context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transactions[tx.RequestID]; ok {
		return errors.E(errors.Exists, "transaction already exists", nil)
	}

	now := m.now()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	m.transactions[tx.RequestID] = *tx
	return nil
}

func (m *MemoryStore) Get(_ context.Context, requestID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[requestID]
	if !ok {
		return nil, errors.TransactionNotFoundErr(requestID)
	}
	return &tx, nil
}

func (m *MemoryStore) UpdateStatusIfPending(_ context.Context, requestID string, update models.StatusUpdate) (*models.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[requestID]
	if !ok {
		return nil, false, errors.TransactionNotFoundErr(requestID)
	}

	if tx.IsTerminal() {
		if update.CallbackReceived {
			tx = m.markCallbackLocked(tx, update.CallbackData)
		}
		return &tx, false, nil
	}

	tx.Status = update.Status
	if update.Reason != "" {
		tx.Reason = update.Reason
	}
	if update.FinancialTransactionID != "" {
		tx.FinancialTransactionID = update.FinancialTransactionID
	}
	if update.CallbackReceived {
		tx.CallbackReceived = true
		tx.CallbackData = update.CallbackData
	}
	tx.UpdatedAt = m.now()
	m.transactions[requestID] = tx
	return &tx, true, nil
}

func (m *MemoryStore) MarkCallbackReceived(_ context.Context, requestID, data string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[requestID]
	if !ok {
		return nil, errors.TransactionNotFoundErr(requestID)
	}
	tx = m.markCallbackLocked(tx, data)
	return &tx, nil
}

// markCallbackLocked sets the callback flag and payload once. m.mu must be held.
func (m *MemoryStore) markCallbackLocked(tx models.Transaction, data string) models.Transaction {
	if tx.CallbackReceived {
		return tx
	}
	tx.CallbackReceived = true
	tx.CallbackData = data
	tx.UpdatedAt = m.now()
	m.transactions[tx.RequestID] = tx
	return tx
}

func (m *MemoryStore) ListPending(_ context.Context, olderThan time.Time, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var txs []models.Transaction
	for _, tx := range m.transactions {
		if tx.Status == models.StatusPending && tx.CreatedAt.Before(olderThan) {
			txs = append(txs, tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.Before(txs[j].CreatedAt) })
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (m *MemoryStore) Insert(_ context.Context, record *models.PaymentRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record.ID = primitive.NewObjectID().Hex()
	record.CreatedAt = m.now()
	m.payments[record.ID] = *record
	return record.ID, nil
}

// Payment returns a stored payment record.
func (m *MemoryStore) Payment(id string) (models.PaymentRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	return p, ok
}
