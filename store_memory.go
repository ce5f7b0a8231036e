package payflow

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory CheckpointStore. It honors the same atomicity
// and compare-and-swap guarantees as the durable stores, so it substitutes
// for them in tests and single-process use.
type MemoryStore struct {
	mu          sync.Mutex
	checkpoints map[string]*Checkpoint
	queue       map[string]*ReviewQueueEntry
}

// NewMemoryStore returns an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: map[string]*Checkpoint{},
		queue:       map[string]*ReviewQueueEntry{},
	}
}

func (m *MemoryStore) Create(ctx context.Context, checkpoint *Checkpoint, entry *ReviewQueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checkpoints[checkpoint.ID]; exists {
		return NewValidationError("checkpoint %q already exists", checkpoint.ID)
	}
	cp := *checkpoint
	cp.State = append([]byte(nil), checkpoint.State...)
	qe := *entry
	m.checkpoints[checkpoint.ID] = &cp
	m.queue[entry.CheckpointID] = &qe
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, checkpointID string) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil, NewNotFoundError(checkpointID)
	}
	out := *cp
	out.State = append([]byte(nil), cp.State...)
	return &out, nil
}

func (m *MemoryStore) Resolve(ctx context.Context, checkpointID string, decision Decision, reviewerID, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return NewNotFoundError(checkpointID)
	}
	if cp.Status != CheckpointPending {
		return NewAlreadyResolvedError(checkpointID)
	}
	cp.Status = CheckpointResolved
	cp.Decision = decision
	cp.ReviewerID = reviewerID
	cp.Notes = notes
	cp.DecidedAt = time.Now().UTC()
	if qe, ok := m.queue[checkpointID]; ok {
		qe.Status = CheckpointResolved
	}
	return nil
}

func (m *MemoryStore) ListPending(ctx context.Context) ([]ReviewQueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReviewQueueEntry, 0, len(m.queue))
	for _, qe := range m.queue {
		if qe.Status == CheckpointPending {
			out = append(out, *qe)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CheckpointID > out[j].CheckpointID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) ListResolved(ctx context.Context) ([]DecisionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DecisionRecord, 0)
	for id, cp := range m.checkpoints {
		if cp.Status != CheckpointResolved {
			continue
		}
		record := DecisionRecord{
			CheckpointID: id,
			InvoiceID:    cp.InvoiceID,
			Decision:     cp.Decision,
			Notes:        cp.Notes,
			ReviewerID:   cp.ReviewerID,
			DecidedAt:    cp.DecidedAt,
		}
		if qe, ok := m.queue[id]; ok {
			record.VendorName = qe.VendorName
			record.Amount = qe.Amount
			record.Currency = qe.Currency
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DecidedAt.Equal(out[j].DecidedAt) {
			return out[i].CheckpointID > out[j].CheckpointID
		}
		return out[i].DecidedAt.After(out[j].DecidedAt)
	})
	return out, nil
}

// MemoryAuditLog is an in-memory AuditLog preserving insertion order.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewMemoryAuditLog returns an empty in-memory audit log.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (m *MemoryAuditLog) Append(ctx context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MemoryAuditLog) ListByWorkflow(ctx context.Context, workflowID string) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditEntry, 0)
	for _, entry := range m.entries {
		if entry.WorkflowID == workflowID {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}
