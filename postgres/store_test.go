package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/payflow"
)

// Tests run only against a real database, named by PAYFLOW_POSTGRES_DSN.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PAYFLOW_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PAYFLOW_POSTGRES_DSN not set")
	}
	store, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testCheckpoint(t *testing.T) (*payflow.Checkpoint, *payflow.ReviewQueueEntry) {
	t.Helper()
	id := fmt.Sprintf("ckpt_%d", time.Now().UnixNano())
	now := time.Now().UTC()
	checkpoint := &payflow.Checkpoint{
		ID:           id,
		WorkflowID:   "wf-" + id,
		InvoiceID:    "INV-2024-001",
		State:        json.RawMessage(`{"workflow_id":"wf-` + id + `"}`),
		PausedReason: "match score 0.85 below threshold 0.90",
		Status:       payflow.CheckpointPending,
		CreatedAt:    now,
	}
	entry := &payflow.ReviewQueueEntry{
		CheckpointID:  id,
		InvoiceID:     "INV-2024-001",
		VendorName:    "Acme Corp",
		Amount:        850,
		Currency:      "USD",
		ReasonForHold: checkpoint.PausedReason,
		CreatedAt:     now,
		Status:        payflow.CheckpointPending,
	}
	return checkpoint, entry
}

func TestStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	checkpoint, entry := testCheckpoint(t)
	require.NoError(t, store.Create(ctx, checkpoint, entry))

	loaded, err := store.Get(ctx, checkpoint.ID)
	require.NoError(t, err)
	require.Equal(t, checkpoint.WorkflowID, loaded.WorkflowID)
	require.Equal(t, payflow.CheckpointPending, loaded.Status)
	require.JSONEq(t, string(checkpoint.State), string(loaded.State))

	require.NoError(t, store.Resolve(ctx, checkpoint.ID, payflow.DecisionAccept, "reviewer-1", "ok"))

	resolved, err := store.Get(ctx, checkpoint.ID)
	require.NoError(t, err)
	require.Equal(t, payflow.CheckpointResolved, resolved.Status)
	require.Equal(t, payflow.DecisionAccept, resolved.Decision)

	err = store.Resolve(ctx, checkpoint.ID, payflow.DecisionReject, "reviewer-2", "")
	require.Error(t, err)
	require.True(t, errors.Is(err, payflow.ErrAlreadyResolved))
}

func TestStoreNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "ckpt_never_created")
	require.Error(t, err)
	require.True(t, errors.Is(err, payflow.ErrNotFound))

	err = store.Resolve(context.Background(), "ckpt_never_created", payflow.DecisionAccept, "r", "")
	require.Error(t, err)
	require.True(t, errors.Is(err, payflow.ErrNotFound))
}

func TestStoreAuditLog(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	workflowID := fmt.Sprintf("wf-audit-%d", time.Now().UnixNano())
	base := time.Now().UTC()
	require.NoError(t, store.Append(ctx, payflow.AuditEntry{
		WorkflowID: workflowID, Stage: "intake", Action: "invoice_ingested", Timestamp: base,
	}))
	require.NoError(t, store.Append(ctx, payflow.AuditEntry{
		WorkflowID: workflowID, Stage: "match", Action: "matching_completed", Timestamp: base.Add(time.Second),
	}))

	entries, err := store.ListByWorkflow(ctx, workflowID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "intake", entries[0].Stage)
	require.Equal(t, "match", entries[1].Stage)
}
