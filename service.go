package payflow

import (
	"context"
	"io"
	"log/slog"

	"github.com/deepnoodle-ai/payflow/selector"
)

// ServiceOptions configures the invoice processing service.
type ServiceOptions struct {
	Engine   *Engine
	Store    CheckpointStore
	Audit    AuditLog
	Selector *selector.Selector
	Logger   *slog.Logger
}

// Service is the operation surface over the engine and its stores: submit an
// invoice, work the review queue, and inspect provenance.
type Service struct {
	engine   *Engine
	store    CheckpointStore
	audit    AuditLog
	selector *selector.Selector
	logger   *slog.Logger
}

// NewService validates options and builds a service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Engine == nil {
		return nil, NewValidationError("service requires an engine")
	}
	if opts.Store == nil {
		return nil, NewValidationError("service requires a checkpoint store")
	}
	if opts.Audit == nil {
		return nil, NewValidationError("service requires an audit log")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		engine:   opts.Engine,
		store:    opts.Store,
		audit:    opts.Audit,
		selector: opts.Selector,
		logger:   logger,
	}, nil
}

// Submit runs an invoice through the pipeline. A failing two-way match leaves
// the workflow PENDING with a checkpoint id the caller can hand to reviewers.
func (s *Service) Submit(ctx context.Context, payload InvoicePayload) (*Result, error) {
	return s.engine.Run(ctx, payload)
}

// ListPendingReviews returns the open review queue, most recent first.
func (s *Service) ListPendingReviews(ctx context.Context) ([]ReviewQueueEntry, error) {
	return s.store.ListPending(ctx)
}

// CheckpointDetail is the reviewer-facing projection of a suspended workflow:
// checkpoint metadata plus the invoice and match evidence pulled from the
// state snapshot.
type CheckpointDetail struct {
	Checkpoint *Checkpoint    `json:"checkpoint"`
	Invoice    InvoicePayload `json:"invoice"`
	Vendor     VendorProfile  `json:"vendor"`
	MatchScore float64        `json:"match_score"`
	Result     string         `json:"match_result"`
	Errors     []StageError   `json:"errors,omitempty"`
}

// GetCheckpoint returns a checkpoint with its snapshot decoded for review.
func (s *Service) GetCheckpoint(ctx context.Context, checkpointID string) (*CheckpointDetail, error) {
	if checkpointID == "" {
		return nil, NewValidationError("checkpoint_id is required")
	}
	checkpoint, err := s.store.Get(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	state, err := RestoreState(checkpoint.State)
	if err != nil {
		return nil, NewFatalError("checkpoint %s state: %v", checkpointID, err)
	}
	score, _ := state.MatchScore()
	return &CheckpointDetail{
		Checkpoint: checkpoint,
		Invoice:    state.InvoicePayload(),
		Vendor:     state.VendorProfile(),
		MatchScore: score,
		Result:     state.MatchResult(),
		Errors:     state.StageErrors(),
	}, nil
}

// SubmitDecision validates and applies a reviewer decision, resuming the
// suspended workflow to its terminal status. The decision value is checked
// before any store access: a bad value never consumes the checkpoint.
func (s *Service) SubmitDecision(ctx context.Context, checkpointID, decision, reviewerID, notes string) (*Result, error) {
	if checkpointID == "" {
		return nil, NewValidationError("checkpoint_id is required")
	}
	parsed, err := ParseDecision(decision)
	if err != nil {
		return nil, err
	}
	return s.engine.Resume(ctx, checkpointID, parsed, reviewerID, notes)
}

// GetAuditLog returns the durable audit trail for a workflow, oldest first.
func (s *Service) GetAuditLog(ctx context.Context, workflowID string) ([]AuditEntry, error) {
	if workflowID == "" {
		return nil, NewValidationError("workflow_id is required")
	}
	return s.audit.ListByWorkflow(ctx, workflowID)
}

// DecisionHistory returns resolved reviews, most recently decided first.
func (s *Service) DecisionHistory(ctx context.Context) ([]DecisionRecord, error) {
	return s.store.ListResolved(ctx)
}

// SelectionHistory returns the tool choices made across runs in this process,
// in the order they were made.
func (s *Service) SelectionHistory() []selector.Record {
	if s.selector == nil {
		return nil
	}
	return s.selector.History()
}
