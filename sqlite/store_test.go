package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/payflow"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "payflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testCheckpoint(id string) (*payflow.Checkpoint, *payflow.ReviewQueueEntry) {
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
		ReviewURL:     "http://localhost:8000/review/" + id,
		CreatedAt:     now,
		Status:        payflow.CheckpointPending,
	}
	return checkpoint, entry
}

func TestStoreCreateAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	checkpoint, entry := testCheckpoint("ckpt_01")
	require.NoError(t, store.Create(ctx, checkpoint, entry))

	loaded, err := store.Get(ctx, "ckpt_01")
	require.NoError(t, err)
	require.Equal(t, checkpoint.WorkflowID, loaded.WorkflowID)
	require.Equal(t, checkpoint.InvoiceID, loaded.InvoiceID)
	require.Equal(t, payflow.CheckpointPending, loaded.Status)
	require.JSONEq(t, string(checkpoint.State), string(loaded.State))
	require.Empty(t, loaded.Decision)
	require.True(t, loaded.DecidedAt.IsZero())
}

func TestStoreGetUnknown(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "ckpt_missing")
	require.Error(t, err)
	require.True(t, errors.Is(err, payflow.ErrNotFound))
}

func TestStoreResolve(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	checkpoint, entry := testCheckpoint("ckpt_01")
	require.NoError(t, store.Create(ctx, checkpoint, entry))

	require.NoError(t, store.Resolve(ctx, "ckpt_01", payflow.DecisionAccept, "reviewer-1", "fine"))

	loaded, err := store.Get(ctx, "ckpt_01")
	require.NoError(t, err)
	require.Equal(t, payflow.CheckpointResolved, loaded.Status)
	require.Equal(t, payflow.DecisionAccept, loaded.Decision)
	require.Equal(t, "reviewer-1", loaded.ReviewerID)
	require.Equal(t, "fine", loaded.Notes)
	require.False(t, loaded.DecidedAt.IsZero())

	// The queue entry left the pending list in the same transaction.
	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	// Second resolve loses.
	err = store.Resolve(ctx, "ckpt_01", payflow.DecisionReject, "reviewer-2", "")
	require.Error(t, err)
	require.True(t, errors.Is(err, payflow.ErrAlreadyResolved))

	err = store.Resolve(ctx, "ckpt_missing", payflow.DecisionAccept, "reviewer-1", "")
	require.Error(t, err)
	require.True(t, errors.Is(err, payflow.ErrNotFound))
}

func TestStoreConcurrentResolveExactlyOneWins(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	checkpoint, entry := testCheckpoint("ckpt_01")
	require.NoError(t, store.Create(ctx, checkpoint, entry))

	const resolvers = 8
	results := make([]error, resolvers)
	var wg sync.WaitGroup
	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.Resolve(ctx, "ckpt_01", payflow.DecisionAccept, "reviewer-1", "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			require.True(t, errors.Is(err, payflow.ErrAlreadyResolved))
		}
	}
	require.Equal(t, 1, wins)
}

func TestStoreListPendingOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, firstEntry := testCheckpoint("ckpt_01")
	firstEntry.CreatedAt = time.Now().UTC().Add(-time.Hour)
	first.CreatedAt = firstEntry.CreatedAt
	require.NoError(t, store.Create(ctx, first, firstEntry))

	second, secondEntry := testCheckpoint("ckpt_02")
	require.NoError(t, store.Create(ctx, second, secondEntry))

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "ckpt_02", pending[0].CheckpointID)
	require.Equal(t, "ckpt_01", pending[1].CheckpointID)
}

func TestStoreListResolved(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	checkpoint, entry := testCheckpoint("ckpt_01")
	require.NoError(t, store.Create(ctx, checkpoint, entry))
	require.NoError(t, store.Resolve(ctx, "ckpt_01", payflow.DecisionReject, "reviewer-1", "too far off"))

	records, err := store.ListResolved(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "ckpt_01", records[0].CheckpointID)
	require.Equal(t, payflow.DecisionReject, records[0].Decision)
	require.Equal(t, "Acme Corp", records[0].VendorName)
	require.Equal(t, 850.0, records[0].Amount)
	require.Equal(t, "too far off", records[0].Notes)
}

func TestStoreAuditLog(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	entries := []payflow.AuditEntry{
		{WorkflowID: "wf-1", Stage: "intake", Action: "invoice_ingested",
			Details: map[string]any{"invoice_id": "INV-1"}, Timestamp: base},
		{WorkflowID: "wf-1", Stage: "match", Action: "matching_completed", Timestamp: base.Add(time.Second)},
		{WorkflowID: "wf-2", Stage: "intake", Action: "invoice_ingested", Timestamp: base},
	}
	for _, entry := range entries {
		require.NoError(t, store.Append(ctx, entry))
	}

	got, err := store.ListByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "intake", got[0].Stage)
	require.Equal(t, "match", got[1].Stage)
	require.Equal(t, "INV-1", got[0].Details["invoice_id"])

	got, err = store.ListByWorkflow(ctx, "wf-absent")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestStoreReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payflow.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	checkpoint, entry := testCheckpoint("ckpt_01")
	require.NoError(t, store.Create(ctx, checkpoint, entry))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Get(ctx, "ckpt_01")
	require.NoError(t, err)
	require.Equal(t, checkpoint.WorkflowID, loaded.WorkflowID)
}
