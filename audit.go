package payflow

import (
	"context"
	"time"
)

// AuditEntry is one line of the append-only provenance trail. Entries are a
// pure side channel: nothing reads them back to drive control flow.
type AuditEntry struct {
	WorkflowID string         `json:"workflow_id"`
	Stage      string         `json:"stage"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// AuditLog is the durable trail of stage executions per workflow.
type AuditLog interface {
	// Append records an entry. Entries are never updated or deleted.
	Append(ctx context.Context, entry AuditEntry) error

	// ListByWorkflow returns a workflow's entries ordered by timestamp
	// ascending, with insertion order breaking ties. Safe to call repeatedly.
	ListByWorkflow(ctx context.Context, workflowID string) ([]AuditEntry, error)
}
