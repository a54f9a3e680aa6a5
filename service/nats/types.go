package nats

import (
	"time"

	"github.com/mintrelay/mintrelay/service/db"
)

// SubmissionEvent represents a terminal transaction-submission outcome
// published to NATS. Events land on the subject "submissions.{fee_payer}" in
// JetStream so downstream consumers can react to mints and transfers without
// polling the service.
type SubmissionEvent struct {
	// Transaction identifiers
	Signature string `json:"signature"`
	Slot      int64  `json:"slot,omitempty"`

	// Flow information
	Kind     string `json:"kind"` // "create_mint" or "transfer"
	FeePayer string `json:"fee_payer"`
	Mint     string `json:"mint,omitempty"`
	Amount   int64  `json:"amount,omitempty"`

	// Outcome
	Status string `json:"status"` // "confirmed", "rejected", "timeout"
	Error  string `json:"error,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromSubmission converts a stored submission to an event for publishing.
func FromSubmission(sub *db.Submission) *SubmissionEvent {
	event := &SubmissionEvent{
		Signature:   sub.Signature,
		Kind:        sub.Kind,
		FeePayer:    sub.FeePayer,
		Status:      sub.Status,
		PublishedAt: time.Now().UTC(),
	}
	if sub.Mint != nil {
		event.Mint = *sub.Mint
	}
	if sub.Amount != nil {
		event.Amount = *sub.Amount
	}
	if sub.Slot != nil {
		event.Slot = *sub.Slot
	}
	if sub.Error != nil {
		event.Error = *sub.Error
	}
	return event
}
