package models

import (
	"strings"
	"time"
)

// Transaction statuses the state machine knows by name. The gateway may
// report other terminal values; those are stored verbatim.
const (
	StatusPending    = "PENDING"
	StatusSuccessful = "SUCCESSFUL"
	StatusFailed     = "FAILED"
)

// Transaction is one mobile-money request-to-pay, keyed by the correlation id
// sent to the gateway.
type Transaction struct {
	RequestID              string    `bson:"_id" json:"requestId"`
	Reference              string    `bson:"reference" json:"reference"`
	PayerIdentifier        string    `bson:"payer_identifier" json:"payerIdentifier"`
	Amount                 string    `bson:"amount" json:"amount"` // canonical decimal
	Currency               string    `bson:"currency" json:"currency"`
	Status                 string    `bson:"status" json:"status"`
	Reason                 string    `bson:"reason,omitempty" json:"reason,omitempty"`
	FinancialTransactionID string    `bson:"financial_transaction_id,omitempty" json:"financialTransactionId,omitempty"`
	CallbackReceived       bool      `bson:"callback_received" json:"callbackReceived"`
	CallbackData           string    `bson:"callback_data,omitempty" json:"-"` // raw webhook JSON
	CreatedAt              time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt              time.Time `bson:"updated_at" json:"updatedAt"`
}

// IsTerminal reports whether the transaction can no longer change status.
func (t *Transaction) IsTerminal() bool {
	return IsTerminalStatus(t.Status)
}

// IsTerminalStatus compares case-insensitively since gateway statuses are
// stored as reported.
func IsTerminalStatus(status string) bool {
	return status != "" && !strings.EqualFold(status, StatusPending)
}

// StatusUpdate is the only mutation a stored transaction accepts.
type StatusUpdate struct {
	Status                 string
	Reason                 string
	FinancialTransactionID string
	// CallbackReceived and CallbackData are set by the webhook path only.
	CallbackReceived bool
	CallbackData     string
}
