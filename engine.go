package payflow

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Workflow terminal statuses.
const (
	// StatusCompleted means the walk reached the terminal node normally.
	StatusCompleted = "COMPLETED"

	// StatusPending means the workflow is durably suspended awaiting a
	// reviewer decision.
	StatusPending = "PENDING"

	// StatusManualHandoff means a reviewer rejected the invoice and it left
	// the automated path.
	StatusManualHandoff = "MANUAL_HANDOFF"
)

// EngineOptions configures a workflow engine.
type EngineOptions struct {
	Pipeline *Pipeline
	Store    CheckpointStore
	Audit    AuditLog
	Logger   *slog.Logger
}

// Engine walks a pipeline over invoice state, suspending at the suspend node
// and resuming from durable checkpoints. An Engine is safe for concurrent use;
// each walk owns its State exclusively.
type Engine struct {
	pipeline *Pipeline
	store    CheckpointStore
	audit    AuditLog
	logger   *slog.Logger
}

// Result is the outcome of a walk: either a terminal status or a pending
// suspension with the checkpoint to resume from.
type Result struct {
	Status       string
	WorkflowID   string
	InvoiceID    string
	CheckpointID string
	ReviewURL    string
	State        *State
}

// NewEngine validates options and builds an engine.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Pipeline == nil {
		return nil, NewValidationError("engine requires a pipeline")
	}
	if opts.Store == nil {
		return nil, NewValidationError("engine requires a checkpoint store")
	}
	if opts.Audit == nil {
		return nil, NewValidationError("engine requires an audit log")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		pipeline: opts.Pipeline,
		store:    opts.Store,
		audit:    opts.Audit,
		logger:   logger,
	}, nil
}

// Run processes an invoice from the entry node. It returns a COMPLETED result,
// or a PENDING result naming the checkpoint when the walk suspends for review.
func (e *Engine) Run(ctx context.Context, payload InvoicePayload) (*Result, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	s := NewState(payload)
	e.logger.Info("workflow started", "invoice_id", payload.InvoiceID)
	return e.walk(ctx, s, e.pipeline.Entry())
}

// Resume applies a reviewer decision to a suspended workflow and continues
// the walk past the suspend node. The checkpoint resolves exactly once:
// concurrent resumes serialize in the store and the losers observe
// ErrAlreadyResolved with no effect on state.
func (e *Engine) Resume(ctx context.Context, checkpointID string, decision Decision, reviewerID, notes string) (*Result, error) {
	if _, err := ParseDecision(string(decision)); err != nil {
		return nil, err
	}
	if reviewerID == "" {
		return nil, NewValidationError("reviewer_id is required")
	}

	// Resolve first: the compare-and-swap is the only gate against a second
	// resume racing this one.
	if err := e.store.Resolve(ctx, checkpointID, decision, reviewerID, notes); err != nil {
		return nil, err
	}
	checkpoint, err := e.store.Get(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	s, err := RestoreState(checkpoint.State)
	if err != nil {
		return nil, NewFatalError("checkpoint %s state: %v", checkpointID, err)
	}
	s.set(FieldHumanDecision, string(decision))
	s.set(FieldReviewerID, reviewerID)

	suspend := e.pipeline.Suspend()
	if suspend == nil {
		return nil, NewFatalError("pipeline %q has no suspend node to resume from", e.pipeline.Name())
	}
	next, err := e.pipeline.next(suspend, s)
	if err != nil {
		return nil, err
	}

	e.logger.Info("workflow resumed",
		"checkpoint_id", checkpointID,
		"workflow_id", s.WorkflowID(),
		"decision", string(decision),
		"reviewer_id", reviewerID)
	return e.walk(ctx, s, next)
}

func (e *Engine) walk(ctx context.Context, s *State, node *Node) (*Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if node.Kind == NodeKindTerminal {
			s.set(FieldStatus, terminalStatus(s))
		}

		if err := e.executeNode(ctx, s, node); err != nil {
			return nil, err
		}

		switch node.Kind {
		case NodeKindSuspend:
			return e.suspendAt(ctx, s)
		case NodeKindTerminal:
			status := s.Status()
			e.logger.Info("workflow finished",
				"workflow_id", s.WorkflowID(), "status", status)
			return &Result{
				Status:       status,
				WorkflowID:   s.WorkflowID(),
				InvoiceID:    s.InvoicePayload().InvoiceID,
				CheckpointID: s.CheckpointRef(),
				State:        s,
			}, nil
		}

		next, err := e.pipeline.next(node, s)
		if err != nil {
			return nil, err
		}
		node = next
	}
}

// executeNode runs one handler, enforces its declared outputs, merges its
// update, advances the stage pointer, and records the audit entry.
func (e *Engine) executeNode(ctx context.Context, s *State, node *Node) error {
	update, err := node.Handler(ctx, s)
	if err != nil {
		e.logger.Error("stage failed", "stage", node.Name, "error", err)
		return err
	}
	if update == nil {
		update = &StageUpdate{}
	}

	declared := make(map[Field]bool, len(node.Outputs))
	for _, f := range node.Outputs {
		declared[f] = true
	}
	for f := range update.Fields {
		if !declared[f] {
			return NewFatalError("stage %q wrote undeclared field %q", node.Name, f)
		}
	}

	if err := s.Merge(update); err != nil {
		return err
	}
	s.set(FieldCurrentStage, node.Name)

	entry := AuditEntry{
		WorkflowID: s.WorkflowID(),
		Stage:      node.Name,
		Action:     update.Action,
		Details:    update.Details,
		Timestamp:  time.Now().UTC(),
	}
	s.appendAudit(entry)
	if err := e.audit.Append(ctx, entry); err != nil {
		// The in-state trail still carries the entry; losing the durable
		// copy is an operational fault, not a workflow one.
		e.logger.Warn("audit append failed",
			"workflow_id", entry.WorkflowID, "stage", entry.Stage, "error", err)
	}

	e.logger.Debug("stage completed",
		"workflow_id", s.WorkflowID(), "stage", node.Name, "action", update.Action)
	return nil
}

// suspendAt persists the checkpoint and review queue entry produced by the
// suspend node, then halts the walk with a PENDING result.
func (e *Engine) suspendAt(ctx context.Context, s *State) (*Result, error) {
	checkpointID := s.CheckpointRef()
	if checkpointID == "" {
		return nil, NewFatalError("suspend node completed without a checkpoint reference")
	}
	s.set(FieldStatus, StatusPending)

	snapshot, err := s.Snapshot()
	if err != nil {
		return nil, NewFatalError("checkpoint %s: %v", checkpointID, err)
	}
	payload := s.InvoicePayload()
	now := time.Now().UTC()

	checkpoint := &Checkpoint{
		ID:           checkpointID,
		WorkflowID:   s.WorkflowID(),
		InvoiceID:    payload.InvoiceID,
		State:        snapshot,
		PausedReason: s.PausedReason(),
		Status:       CheckpointPending,
		CreatedAt:    now,
	}
	entry := &ReviewQueueEntry{
		CheckpointID:  checkpointID,
		InvoiceID:     payload.InvoiceID,
		VendorName:    payload.VendorName,
		Amount:        payload.Amount,
		Currency:      payload.Currency,
		ReasonForHold: s.PausedReason(),
		ReviewURL:     s.ReviewURL(),
		CreatedAt:     now,
		Status:        CheckpointPending,
	}
	if err := e.store.Create(ctx, checkpoint, entry); err != nil {
		return nil, err
	}

	e.logger.Info("workflow suspended",
		"workflow_id", s.WorkflowID(),
		"checkpoint_id", checkpointID,
		"reason", s.PausedReason())
	return &Result{
		Status:       StatusPending,
		WorkflowID:   s.WorkflowID(),
		InvoiceID:    payload.InvoiceID,
		CheckpointID: checkpointID,
		ReviewURL:    s.ReviewURL(),
		State:        s,
	}, nil
}

// terminalStatus derives the final status from the reviewer verdict, if any.
func terminalStatus(s *State) string {
	if s.HumanDecision() == DecisionReject {
		return StatusManualHandoff
	}
	return StatusCompleted
}
