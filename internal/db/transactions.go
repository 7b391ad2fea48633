package db

import (
	// Go Internal Packages
	"context"
	stderrors "errors"
	"fmt"
	"time"

	// Local Packages
	errors "github.com/markjakearzadon/momopay-gobackend/internal/errors"
	"github.com/markjakearzadon/momopay-gobackend/internal/models"

	// External Packages
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TransactionStore persists transactions in MongoDB, one document per
// request id.
type TransactionStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewTransactionStore(db *mongo.Database) *TransactionStore {
	return &TransactionStore{
		collection: db.Collection(TransactionsCollection),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the indexes the store and the reconciler rely on.
func (s *TransactionStore) EnsureIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "reference", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create transaction indexes: %w", err)
	}
	return nil
}

func (s *TransactionStore) Create(ctx context.Context, tx *models.Transaction) error {
	now := s.now()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	if _, err := s.collection.InsertOne(ctx, tx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.E(errors.Exists, "transaction already exists", err)
		}
		return errors.E(errors.Internal, "failed to save transaction", err)
	}
	return nil
}

func (s *TransactionStore) Get(ctx context.Context, requestID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.collection.FindOne(ctx, bson.M{"_id": requestID}).Decode(&tx)
	if err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.TransactionNotFoundErr(requestID)
		}
		return nil, errors.E(errors.Internal, "failed to fetch transaction", err)
	}
	return &tx, nil
}

// UpdateStatusIfPending applies update only while the stored status is
// PENDING. The filter and the write are one FindOneAndUpdate, so concurrent
// writers across processes cannot both win. applied is false when the
// transaction was already terminal; the stored record is returned unchanged.
func (s *TransactionStore) UpdateStatusIfPending(ctx context.Context, requestID string, update models.StatusUpdate) (*models.Transaction, bool, error) {
	filter := bson.M{"_id": requestID, "status": models.StatusPending}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var tx models.Transaction
	err := s.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": updateFields(update, s.now())}, opts).Decode(&tx)
	if err == nil {
		return &tx, true, nil
	}
	if !stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, errors.E(errors.Internal, "failed to update transaction", err)
	}

	// Either missing or already terminal.
	if update.CallbackReceived {
		return s.markCallback(ctx, requestID, update.CallbackData)
	}
	current, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// MarkCallbackReceived records the first webhook delivery without touching the
// status. Later deliveries leave the record unchanged.
func (s *TransactionStore) MarkCallbackReceived(ctx context.Context, requestID, data string) (*models.Transaction, error) {
	tx, _, err := s.markCallback(ctx, requestID, data)
	return tx, err
}

// markCallback sets callback_received and callback_data once. The status is
// left alone.
func (s *TransactionStore) markCallback(ctx context.Context, requestID, data string) (*models.Transaction, bool, error) {
	filter := bson.M{"_id": requestID, "callback_received": bson.M{"$ne": true}}
	set := bson.M{"$set": bson.M{
		"callback_received": true,
		"callback_data":     data,
		"updated_at":        s.now(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var tx models.Transaction
	err := s.collection.FindOneAndUpdate(ctx, filter, set, opts).Decode(&tx)
	if err == nil {
		return &tx, false, nil
	}
	if !stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, errors.E(errors.Internal, "failed to update transaction", err)
	}
	current, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// ListPending returns up to limit PENDING transactions created before olderThan,
// oldest first.
func (s *TransactionStore) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]models.Transaction, error) {
	filter := bson.M{
		"status":     models.StatusPending,
		"created_at": bson.M{"$lt": olderThan},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(int64(limit))

	cur, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.E(errors.Internal, "failed to fetch pending transactions", err)
	}
	defer cur.Close(ctx)

	var txs []models.Transaction
	if err := cur.All(ctx, &txs); err != nil {
		return nil, errors.E(errors.Internal, "failed to decode pending transactions", err)
	}
	return txs, nil
}

func updateFields(u models.StatusUpdate, now time.Time) bson.M {
	set := bson.M{
		"status":     u.Status,
		"updated_at": now,
	}
	if u.Reason != "" {
		set["reason"] = u.Reason
	}
	if u.FinancialTransactionID != "" {
		set["financial_transaction_id"] = u.FinancialTransactionID
	}
	if u.CallbackReceived {
		set["callback_received"] = true
		set["callback_data"] = u.CallbackData
	}
	return set
}
