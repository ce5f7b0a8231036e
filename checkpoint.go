package payflow

import (
	"context"
	"encoding/json"
	"time"

	"go.jetify.com/typeid"
)

// CheckpointStatus is the lifecycle of a suspension point: created PENDING,
// resolved exactly once, never deleted.
type CheckpointStatus string

const (
	CheckpointPending  CheckpointStatus = "PENDING"
	CheckpointResolved CheckpointStatus = "RESOLVED"
)

// Decision is a reviewer's verdict on a suspended workflow.
type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

// ParseDecision validates a decision value before any store mutation.
func ParseDecision(value string) (Decision, error) {
	switch Decision(value) {
	case DecisionAccept:
		return DecisionAccept, nil
	case DecisionReject:
		return DecisionReject, nil
	default:
		return "", NewValidationError("decision must be ACCEPT or REJECT, got %q", value)
	}
}

// NewCheckpointID returns a new prefixed checkpoint identifier.
func NewCheckpointID() string {
	id, err := typeid.WithPrefix("ckpt")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// Checkpoint is a durable suspension point capturing the full workflow state,
// pending an external decision.
type Checkpoint struct {
	ID           string           `json:"checkpoint_id"`
	WorkflowID   string           `json:"workflow_id"`
	InvoiceID    string           `json:"invoice_id"`
	State        json.RawMessage  `json:"state"`
	PausedReason string           `json:"paused_reason"`
	Status       CheckpointStatus `json:"status"`
	Decision     Decision         `json:"decision,omitempty"`
	ReviewerID   string           `json:"reviewer_id,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	DecidedAt    time.Time        `json:"decided_at,omitzero"`
}

// ReviewQueueEntry is the denormalized projection of a checkpoint shown to
// reviewers. Its status mirrors the checkpoint's, kept in sync by the same
// transaction that resolves the checkpoint.
type ReviewQueueEntry struct {
	CheckpointID  string           `json:"checkpoint_id"`
	InvoiceID     string           `json:"invoice_id"`
	VendorName    string           `json:"vendor_name"`
	Amount        float64          `json:"amount"`
	Currency      string           `json:"currency"`
	ReasonForHold string           `json:"reason_for_hold"`
	ReviewURL     string           `json:"review_url"`
	CreatedAt     time.Time        `json:"created_at"`
	Status        CheckpointStatus `json:"status"`
}

// DecisionRecord is a resolved review joined with its queue metadata,
// for the decision history listing.
type DecisionRecord struct {
	CheckpointID string    `json:"checkpoint_id"`
	InvoiceID    string    `json:"invoice_id"`
	VendorName   string    `json:"vendor_name"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	Decision     Decision  `json:"decision"`
	Notes        string    `json:"notes,omitempty"`
	ReviewerID   string    `json:"reviewer_id"`
	DecidedAt    time.Time `json:"decided_at"`
}

// CheckpointStore is the durable, transactional home of suspended workflow
// state. It is the only resource concurrent tasks contend on for the same
// key, so Create must be atomic and Resolve must compare-and-swap.
type CheckpointStore interface {
	// Create persists a checkpoint and its review queue entry in a single
	// transaction: both rows exist afterwards, or neither does. The
	// checkpoint id is unique.
	Create(ctx context.Context, checkpoint *Checkpoint, entry *ReviewQueueEntry) error

	// Get returns the full snapshot plus metadata, or ErrNotFound.
	Get(ctx context.Context, checkpointID string) (*Checkpoint, error)

	// Resolve transitions PENDING to RESOLVED, recording the decision, and
	// mirrors the status onto the queue entry in the same transaction.
	// Concurrent resolvers serialize so exactly one succeeds; the rest
	// observe ErrAlreadyResolved. An unknown id yields ErrNotFound.
	Resolve(ctx context.Context, checkpointID string, decision Decision, reviewerID, notes string) error

	// ListPending returns PENDING queue entries, most recent first.
	ListPending(ctx context.Context) ([]ReviewQueueEntry, error)

	// ListResolved returns resolved reviews joined with queue metadata,
	// most recently decided first.
	ListResolved(ctx context.Context) ([]DecisionRecord, error)
}
