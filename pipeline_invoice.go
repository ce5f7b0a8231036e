package payflow

import (
	"io"
	"log/slog"

	"github.com/deepnoodle-ai/payflow/capability"
	"github.com/deepnoodle-ai/payflow/selector"
)

// Route labels of the invoice pipeline's two conditional edges.
const (
	// RouteContinue proceeds past matching when the score meets the threshold.
	RouteContinue Route = "continue"

	// RouteHold diverts to human review when matching fails.
	RouteHold Route = "hold"

	// RouteProceed resumes normal processing after an accepting decision.
	RouteProceed Route = "proceed"

	// RouteReject short-circuits to completion for manual handling.
	RouteReject Route = "reject"
)

// InvoicePipelineOptions configures the standard invoice pipeline.
type InvoicePipelineOptions struct {
	Capabilities capability.Invoker
	Selector     *selector.Selector
	Config       Config
	Logger       *slog.Logger
}

// NewInvoicePipeline builds the fixed invoice processing graph:
//
//	intake -> understand -> prepare -> retrieve -> match
//	match ? continue -> reconcile, hold -> review
//	review [suspend] -> decision
//	decision ? proceed -> reconcile, reject -> complete
//	reconcile -> approve -> post -> notify -> complete [terminal]
func NewInvoicePipeline(opts InvoicePipelineOptions) (*Pipeline, error) {
	if opts.Capabilities == nil {
		return nil, NewValidationError("invoice pipeline requires a capability invoker")
	}
	if opts.Selector == nil {
		return nil, NewValidationError("invoice pipeline requires a tool selector")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	st := &stages{
		capabilities: opts.Capabilities,
		selector:     opts.Selector,
		config:       opts.Config,
		logger:       logger,
	}

	return NewPipeline(PipelineOptions{
		Name:  "invoice",
		Entry: StageIntake,
		Nodes: []*Node{
			{
				Name:    StageIntake,
				Handler: st.intake,
				Outputs: []Field{FieldWorkflowID, FieldRawID, FieldIngestTS, FieldValidated},
				Next:    StageUnderstand,
			},
			{
				Name:    StageUnderstand,
				Handler: st.understand,
				Outputs: []Field{FieldInvoiceText, FieldParsedLineItems, FieldDetectedPOs, FieldParsedDates},
				Next:    StagePrepare,
			},
			{
				Name:    StagePrepare,
				Handler: st.prepare,
				Outputs: []Field{FieldVendorProfile, FieldNormalizedInvoice, FieldFlags},
				Next:    StageRetrieve,
			},
			{
				Name:    StageRetrieve,
				Handler: st.retrieve,
				Outputs: []Field{FieldMatchedPOs, FieldMatchedGRNs, FieldHistory},
				Next:    StageMatch,
			},
			{
				Name:    StageMatch,
				Handler: st.match,
				Outputs: []Field{FieldMatchScore, FieldMatchResult, FieldTolerancePct, FieldMatchEvidence},
				Router:  routeAfterMatch,
				Routes: map[Route]string{
					RouteContinue: StageReconcile,
					RouteHold:     StageReview,
				},
			},
			{
				Name:    StageReview,
				Kind:    NodeKindSuspend,
				Handler: st.review,
				Outputs: []Field{FieldCheckpointRef, FieldReviewURL, FieldPausedReason},
				Next:    StageDecision,
			},
			{
				Name:    StageDecision,
				Handler: st.decision,
				Outputs: []Field{FieldResumeToken},
				Router:  routeAfterDecision,
				Routes: map[Route]string{
					RouteProceed: StageReconcile,
					RouteReject:  StageComplete,
				},
			},
			{
				Name:    StageReconcile,
				Handler: st.reconcile,
				Outputs: []Field{FieldAccountingEntries, FieldReconciliationReport},
				Next:    StageApprove,
			},
			{
				Name:    StageApprove,
				Handler: st.approve,
				Outputs: []Field{FieldApprovalStatus, FieldApproverID},
				Next:    StagePost,
			},
			{
				Name:    StagePost,
				Handler: st.post,
				Outputs: []Field{FieldPosted, FieldERPTxnID, FieldScheduledPaymentID},
				Next:    StageNotify,
			},
			{
				Name:    StageNotify,
				Handler: st.notify,
				Outputs: []Field{FieldNotifyStatus, FieldNotifiedParties},
				Next:    StageComplete,
			},
			{
				Name:    StageComplete,
				Kind:    NodeKindTerminal,
				Handler: st.complete,
				Outputs: []Field{FieldFinalPayload},
			},
		},
	})
}

// routeAfterMatch holds the workflow for review unless the match succeeded.
func routeAfterMatch(s *State) Route {
	if s.MatchResult() == "MATCHED" {
		return RouteContinue
	}
	return RouteHold
}

// routeAfterDecision short-circuits rejected invoices to completion.
func routeAfterDecision(s *State) Route {
	if s.HumanDecision() == DecisionReject {
		return RouteReject
	}
	return RouteProceed
}
