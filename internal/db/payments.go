package db

import (
	// Go Internal Packages
	"context"
	"time"

	// Local Packages
	errors "github.com/markjakearzadon/momopay-gobackend/internal/errors"
	"github.com/markjakearzadon/momopay-gobackend/internal/models"

	// External Packages
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// PaymentStore appends generic payment records. Records are never updated.
type PaymentStore struct {
	collection *mongo.Collection
}

func NewPaymentStore(db *mongo.Database) *PaymentStore {
	return &PaymentStore{collection: db.Collection(PaymentsCollection)}
}

// Insert stores record under a freshly generated id and returns that id.
func (s *PaymentStore) Insert(ctx context.Context, record *models.PaymentRecord) (string, error) {
	record.ID = primitive.NewObjectID().Hex()
	record.CreatedAt = time.Now().UTC()

	if _, err := s.collection.InsertOne(ctx, record); err != nil {
		return "", errors.E(errors.Internal, "failed to save payment", err)
	}
	return record.ID, nil
}
