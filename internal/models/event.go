package models

import "time"

// Status event sources.
const (
	SourcePoll     = "poll"
	SourceCallback = "callback"
)

// StatusEvent announces that a transaction reached a terminal status.
type StatusEvent struct {
	RequestID  string    `json:"requestId"`
	Reference  string    `json:"reference"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurredAt"`
}
