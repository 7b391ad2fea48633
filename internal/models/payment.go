package models

import (
	"time"
)

// PaymentRecordStatusDefault is used when the caller does not send a status.
const PaymentRecordStatusDefault = "completed"

// PaymentRecord is a ledger entry for a payment settled by another provider.
type PaymentRecord struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	UserID        string    `bson:"user_id" json:"userId"`
	Amount        string    `bson:"amount" json:"amount"`
	Currency      string    `bson:"currency" json:"currency"`
	Method        string    `bson:"method" json:"method"`
	TransactionID string    `bson:"transaction_id" json:"transactionId"`
	Service       string    `bson:"service" json:"service"`
	Status        string    `bson:"status" json:"status"`
	CreatedAt     time.Time `bson:"created_at" json:"createdAt"`
}
