package payflow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/deepnoodle-ai/payflow/capability"
	"github.com/deepnoodle-ai/payflow/selector"
)

// Stage node names of the invoice pipeline.
const (
	StageIntake     = "intake"
	StageUnderstand = "understand"
	StagePrepare    = "prepare"
	StageRetrieve   = "retrieve"
	StageMatch      = "match"
	StageReview     = "review"
	StageDecision   = "decision"
	StageReconcile  = "reconcile"
	StageApprove    = "approve"
	StagePost       = "post"
	StageNotify     = "notify"
	StageComplete   = "complete"
)

var poReferencePattern = regexp.MustCompile(`PO-\d+-\d+`)

// stages holds the collaborators shared by all invoice stage handlers.
type stages struct {
	capabilities capability.Invoker
	selector     *selector.Selector
	config       Config
	logger       *slog.Logger
}

func newUpdate(action string) *StageUpdate {
	return &StageUpdate{
		Fields:         map[Field]any{},
		ToolSelections: map[string]string{},
		Details:        map[string]any{},
		Action:         action,
	}
}

// invoke runs a capability, folding any failure into the stage's output as
// data so the walk continues.
func (st *stages) invoke(ctx context.Context, u *StageUpdate, stage string, name capability.Name, params map[string]any) map[string]any {
	result, err := st.capabilities.Invoke(ctx, name, params)
	if err != nil {
		st.logger.Warn("capability failed",
			"stage", stage, "capability", string(name), "error", err)
		u.Errors = append(u.Errors, StageError{
			Stage:      stage,
			Capability: string(name),
			Message:    err.Error(),
		})
		return map[string]any{}
	}
	return result
}

// selectTool picks a tool implementation and records the choice under
// "<stage>_<capability>".
func (st *stages) selectTool(u *StageUpdate, stage, toolCapability string, priority selector.Priority) {
	tool, err := st.selector.Choose(toolCapability, priority)
	if err != nil {
		u.Errors = append(u.Errors, StageError{Stage: stage, Message: err.Error()})
		return
	}
	u.ToolSelections[stage+"_"+toolCapability] = tool.Name
}

// intake validates and persists the raw invoice, assigning the workflow id.
func (st *stages) intake(ctx context.Context, s *State) (*StageUpdate, error) {
	payload := s.InvoicePayload()
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	workflowID := uuid.NewString()

	u := newUpdate("invoice_ingested")
	st.selectTool(u, StageIntake, "storage", selector.PrioritySpeed)

	validation := st.invoke(ctx, u, StageIntake, capability.ValidateSchema,
		map[string]any{"invoice_id": payload.InvoiceID})
	persisted := st.invoke(ctx, u, StageIntake, capability.PersistRawInvoice,
		map[string]any{"invoice_id": payload.InvoiceID})

	rawID := resultString(persisted, "raw_id", "RAW_"+workflowID)
	ingestTS := resultString(persisted, "stored_at", time.Now().UTC().Format(time.RFC3339))

	u.Fields[FieldWorkflowID] = workflowID
	u.Fields[FieldRawID] = rawID
	u.Fields[FieldIngestTS] = ingestTS
	u.Fields[FieldValidated] = resultBool(validation, "validated")
	u.Details["invoice_id"] = payload.InvoiceID
	u.Details["raw_id"] = rawID
	return u, nil
}

// understand extracts text from attachments and parses line items.
func (st *stages) understand(ctx context.Context, s *State) (*StageUpdate, error) {
	payload := s.InvoicePayload()

	u := newUpdate("ocr_completed")
	st.selectTool(u, StageUnderstand, "ocr", selector.PriorityAccuracy)

	ocr := st.invoke(ctx, u, StageUnderstand, capability.OCRExtract,
		map[string]any{"attachments": payload.Attachments})
	text := resultString(ocr, "extracted_text", "")

	parsed := st.invoke(ctx, u, StageUnderstand, capability.ParseLineItems,
		map[string]any{"line_items": payload.LineItems, "text": text})
	items, _ := parsed["parsed_items"].([]LineItem)

	u.Fields[FieldInvoiceText] = text
	u.Fields[FieldParsedLineItems] = parsed["parsed_items"]
	u.Fields[FieldDetectedPOs] = poReferencePattern.FindAllString(text, -1)
	u.Fields[FieldParsedDates] = map[string]string{
		"invoice_date": payload.InvoiceDate,
		"due_date":     payload.DueDate,
	}
	u.Details["items_parsed"] = len(items)
	return u, nil
}

// prepare normalizes the vendor name and enriches the vendor profile.
func (st *stages) prepare(ctx context.Context, s *State) (*StageUpdate, error) {
	payload := s.InvoicePayload()

	u := newUpdate("vendor_enriched")

	normalized := st.invoke(ctx, u, StagePrepare, capability.NormalizeVendor,
		map[string]any{"vendor_name": payload.VendorName})
	normalizedName := resultString(normalized, "normalized_name", payload.VendorName)

	st.selectTool(u, StagePrepare, "enrichment", selector.PriorityAccuracy)
	enriched := st.invoke(ctx, u, StagePrepare, capability.EnrichVendor,
		map[string]any{"vendor_name": normalizedName, "tax_id": payload.VendorTaxID})
	enrichmentData, _ := enriched["enrichment_data"].(map[string]any)

	taxID := payload.VendorTaxID
	if v, ok := enrichmentData["tax_id"].(string); ok && v != "" {
		taxID = v
	}
	profile := VendorProfile{
		NormalizedName: normalizedName,
		TaxID:          taxID,
		EnrichmentMeta: enrichmentData,
	}

	flagged := st.invoke(ctx, u, StagePrepare, capability.ComputeFlags,
		map[string]any{"vendor_name": normalizedName, "amount": payload.Amount})

	u.Fields[FieldVendorProfile] = profile
	u.Fields[FieldNormalizedInvoice] = map[string]any{
		"amount":   payload.Amount,
		"currency": payload.Currency,
	}
	u.Fields[FieldFlags] = flagged["flags"]
	u.Details["normalized_name"] = normalizedName
	return u, nil
}

// retrieve fetches the purchase orders, goods received notes, and invoice
// history used as matching reference data.
func (st *stages) retrieve(ctx context.Context, s *State) (*StageUpdate, error) {
	vendorName := s.VendorProfile().NormalizedName

	u := newUpdate("erp_data_fetched")
	st.selectTool(u, StageRetrieve, "erp_connector", selector.PrioritySpeed)

	pos := st.invoke(ctx, u, StageRetrieve, capability.FetchPO,
		map[string]any{"vendor_name": vendorName})
	grns := st.invoke(ctx, u, StageRetrieve, capability.FetchGRN,
		map[string]any{"vendor_name": vendorName, "pos": pos["purchase_orders"]})
	history := st.invoke(ctx, u, StageRetrieve, capability.FetchHistory,
		map[string]any{"vendor_name": vendorName})

	u.Fields[FieldMatchedPOs] = pos["purchase_orders"]
	u.Fields[FieldMatchedGRNs] = grns["goods_received_notes"]
	u.Fields[FieldHistory] = history["historical_invoices"]
	u.Details["pos_found"] = resultLen(pos["purchase_orders"])
	u.Details["grns_found"] = resultLen(grns["goods_received_notes"])
	return u, nil
}

// match computes the two-way match score between the invoice amount and the
// referenced purchase order amount.
func (st *stages) match(ctx context.Context, s *State) (*StageUpdate, error) {
	payload := s.InvoicePayload()
	poAmount := s.FirstPOAmount()

	u := newUpdate("matching_completed")

	result := st.invoke(ctx, u, StageMatch, capability.ComputeMatchScore, map[string]any{
		"invoice_amount": payload.Amount,
		"po_amount":      poAmount,
		"threshold":      st.config.MatchThreshold,
	})

	score := resultFloat(result, "match_score")
	matchResult := resultString(result, "match_result", "FAILED")

	u.Fields[FieldMatchScore] = score
	u.Fields[FieldMatchResult] = matchResult
	u.Fields[FieldTolerancePct] = resultFloat(result, "tolerance_pct")
	u.Fields[FieldMatchEvidence] = result["match_evidence"]
	u.Details["match_score"] = score
	u.Details["match_result"] = matchResult
	u.Details["threshold"] = st.config.MatchThreshold
	return u, nil
}

// review prepares the durable suspension: checkpoint reference, reviewer
// link, and the reason the workflow is held. The engine persists the
// checkpoint when this node completes.
func (st *stages) review(ctx context.Context, s *State) (*StageUpdate, error) {
	if s.WorkflowID() == "" {
		return nil, NewFatalError("review stage requires a workflow id")
	}
	checkpointID := NewCheckpointID()
	score, _ := s.MatchScore()

	u := newUpdate("checkpoint_created")
	st.selectTool(u, StageReview, "db", selector.PrioritySpeed)

	u.Fields[FieldCheckpointRef] = checkpointID
	u.Fields[FieldReviewURL] = fmt.Sprintf("%s/%s", st.config.ReviewURLBase, checkpointID)
	u.Fields[FieldPausedReason] = fmt.Sprintf(
		"match score %.2f below threshold %.2f - requires human review",
		score, st.config.MatchThreshold)
	u.Details["checkpoint_id"] = checkpointID
	u.Details["reason"] = "matching_failed"
	return u, nil
}

// decision records the reviewer verdict already merged into state by the
// resume call.
func (st *stages) decision(ctx context.Context, s *State) (*StageUpdate, error) {
	verdict := s.HumanDecision()
	if verdict == "" {
		return nil, NewFatalError("decision stage requires a human decision in state")
	}

	u := newUpdate("decision_recorded")
	u.Fields[FieldResumeToken] = "RESUME_" + s.CheckpointRef()
	u.Details["checkpoint_id"] = s.CheckpointRef()
	u.Details["decision"] = string(verdict)
	u.Details["reviewer_id"] = s.ReviewerID()
	return u, nil
}

// reconcile builds the double-entry accounting lines for the invoice.
func (st *stages) reconcile(ctx context.Context, s *State) (*StageUpdate, error) {
	payload := s.InvoicePayload()
	poAmount := s.FirstPOAmount()

	u := newUpdate("accounting_entries_created")

	built := st.invoke(ctx, u, StageReconcile, capability.BuildAccountingEntries, map[string]any{
		"amount":     payload.Amount,
		"vendor":     s.VendorProfile().NormalizedName,
		"invoice_id": payload.InvoiceID,
	})

	u.Fields[FieldAccountingEntries] = built["accounting_entries"]
	u.Fields[FieldReconciliationReport] = map[string]any{
		"invoice_amount": payload.Amount,
		"po_amount":      poAmount,
		"difference":     payload.Amount - poAmount,
		"reconciled":     true,
	}
	u.Details["entries_count"] = resultLen(built["accounting_entries"])
	return u, nil
}

// approve applies the approval policy to the invoice amount.
func (st *stages) approve(ctx context.Context, s *State) (*StageUpdate, error) {
	payload := s.InvoicePayload()

	u := newUpdate("approval_applied")

	applied := st.invoke(ctx, u, StageApprove, capability.ApplyApprovalPolicy, map[string]any{
		"amount":             payload.Amount,
		"vendor":             s.VendorProfile().NormalizedName,
		"auto_approve_limit": st.config.AutoApproveLimit,
	})

	status := resultString(applied, "approval_status", "AUTO_APPROVED")
	approver := resultString(applied, "approver_id", "system")

	u.Fields[FieldApprovalStatus] = status
	u.Fields[FieldApproverID] = approver
	u.Details["approval_status"] = status
	u.Details["approver_id"] = approver
	return u, nil
}

// post writes the invoice to the ledger and schedules its payment.
func (st *stages) post(ctx context.Context, s *State) (*StageUpdate, error) {
	payload := s.InvoicePayload()

	u := newUpdate("posted_to_erp")
	st.selectTool(u, StagePost, "erp_connector", selector.PrioritySpeed)

	posted := st.invoke(ctx, u, StagePost, capability.PostToERP, map[string]any{
		"invoice_id":         payload.InvoiceID,
		"accounting_entries": fieldValue(s, FieldAccountingEntries),
	})
	payment := st.invoke(ctx, u, StagePost, capability.SchedulePayment, map[string]any{
		"invoice_id": payload.InvoiceID,
		"amount":     payload.Amount,
		"due_date":   payload.DueDate,
	})

	txnID := resultString(posted, "erp_txn_id", "")
	paymentID := resultString(payment, "scheduled_payment_id", "")

	u.Fields[FieldPosted] = resultBool(posted, "posted")
	u.Fields[FieldERPTxnID] = txnID
	u.Fields[FieldScheduledPaymentID] = paymentID
	u.Details["erp_txn_id"] = txnID
	u.Details["payment_id"] = paymentID
	return u, nil
}

// notify sends completion notifications to the vendor and finance team.
func (st *stages) notify(ctx context.Context, s *State) (*StageUpdate, error) {
	payload := s.InvoicePayload()

	u := newUpdate("notifications_sent")
	st.selectTool(u, StageNotify, "email", selector.PrioritySpeed)

	sent := st.invoke(ctx, u, StageNotify, capability.SendNotification, map[string]any{
		"invoice_id":   payload.InvoiceID,
		"vendor_email": "vendor@example.com",
		"finance_team": "#finance-team",
	})

	notifications, _ := sent["notifications_sent"].([]map[string]any)
	parties := make([]string, 0, len(notifications))
	for _, n := range notifications {
		if recipient, ok := n["recipient"].(string); ok {
			parties = append(parties, recipient)
		}
	}

	u.Fields[FieldNotifyStatus] = map[string]any{
		"total_sent":    len(notifications),
		"notifications": sent["notifications_sent"],
	}
	u.Fields[FieldNotifiedParties] = parties
	u.Details["parties_notified"] = len(parties)
	return u, nil
}

// complete assembles the final payload. The engine owns the terminal status.
func (st *stages) complete(ctx context.Context, s *State) (*StageUpdate, error) {
	payload := s.InvoicePayload()
	score, _ := s.MatchScore()

	u := newUpdate("workflow_completed")
	st.selectTool(u, StageComplete, "db", selector.PrioritySpeed)

	finalStatus := s.Status()
	if finalStatus == "" || finalStatus == StatusPending {
		finalStatus = StatusCompleted
	}

	u.Fields[FieldFinalPayload] = map[string]any{
		"workflow_id":     s.WorkflowID(),
		"invoice_id":      payload.InvoiceID,
		"status":          finalStatus,
		"vendor":          s.VendorProfile().NormalizedName,
		"amount":          payload.Amount,
		"currency":        payload.Currency,
		"match_score":     score,
		"approval_status": s.stringValue(FieldApprovalStatus),
		"erp_txn_id":      s.stringValue(FieldERPTxnID),
		"payment_id":      s.stringValue(FieldScheduledPaymentID),
		"completed_at":    time.Now().UTC().Format(time.RFC3339),
	}
	u.Details["final_status"] = finalStatus
	return u, nil
}

func fieldValue(s *State, f Field) any {
	v, _ := s.Value(f)
	return v
}

func resultString(result map[string]any, key, fallback string) string {
	if v, ok := result[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func resultBool(result map[string]any, key string) bool {
	v, _ := result[key].(bool)
	return v
}

func resultFloat(result map[string]any, key string) float64 {
	return floatFrom(result[key])
}

func resultLen(v any) int {
	switch list := v.(type) {
	case []map[string]any:
		return len(list)
	case []any:
		return len(list)
	}
	return 0
}
