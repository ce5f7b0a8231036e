package payflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryAuditLogOrdering(t *testing.T) {
	log := NewMemoryAuditLog()
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, log.Append(ctx, AuditEntry{WorkflowID: "wf-1", Stage: "intake", Timestamp: base}))
	require.NoError(t, log.Append(ctx, AuditEntry{WorkflowID: "wf-2", Stage: "intake", Timestamp: base}))
	// Same timestamp as the first entry: insertion order breaks the tie.
	require.NoError(t, log.Append(ctx, AuditEntry{WorkflowID: "wf-1", Stage: "understand", Timestamp: base}))
	require.NoError(t, log.Append(ctx, AuditEntry{WorkflowID: "wf-1", Stage: "match", Timestamp: base.Add(time.Second)}))

	entries, err := log.ListByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "intake", entries[0].Stage)
	require.Equal(t, "understand", entries[1].Stage)
	require.Equal(t, "match", entries[2].Stage)
}

func TestFileAuditLog(t *testing.T) {
	log, err := NewFileAuditLog(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, log.Append(ctx, AuditEntry{
		WorkflowID: "wf-1",
		Stage:      "intake",
		Action:     "invoice_ingested",
		Details:    map[string]any{"invoice_id": "INV-1"},
		Timestamp:  base,
	}))
	require.NoError(t, log.Append(ctx, AuditEntry{
		WorkflowID: "wf-1",
		Stage:      "match",
		Action:     "matching_completed",
		Timestamp:  base.Add(time.Second),
	}))
	require.NoError(t, log.Append(ctx, AuditEntry{
		WorkflowID: "wf-2",
		Stage:      "intake",
		Timestamp:  base,
	}))

	entries, err := log.ListByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "intake", entries[0].Stage)
	require.Equal(t, "INV-1", entries[0].Details["invoice_id"])
	require.Equal(t, "match", entries[1].Stage)

	// Unknown workflow reads as empty, not as an error.
	entries, err = log.ListByWorkflow(ctx, "wf-absent")
	require.NoError(t, err)
	require.Empty(t, entries)

	// Entries without a workflow id are rejected before touching disk.
	err = log.Append(ctx, AuditEntry{Stage: "intake"})
	require.Error(t, err)
}
