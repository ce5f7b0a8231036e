package payflow

// Field names a slot in the workflow state. Stage handlers may only write
// fields their node declares as outputs.
type Field string

const (
	// Workflow metadata.
	FieldInvoicePayload Field = "invoice_payload"
	FieldWorkflowID     Field = "workflow_id"
	FieldCurrentStage   Field = "current_stage"
	FieldStatus         Field = "status"

	// Intake outputs.
	FieldRawID     Field = "raw_id"
	FieldIngestTS  Field = "ingest_ts"
	FieldValidated Field = "validated"

	// Understand outputs.
	FieldInvoiceText     Field = "invoice_text"
	FieldParsedLineItems Field = "parsed_line_items"
	FieldDetectedPOs     Field = "detected_pos"
	FieldParsedDates     Field = "parsed_dates"

	// Prepare outputs.
	FieldVendorProfile     Field = "vendor_profile"
	FieldNormalizedInvoice Field = "normalized_invoice"
	FieldFlags             Field = "flags"

	// Retrieve outputs.
	FieldMatchedPOs  Field = "matched_pos"
	FieldMatchedGRNs Field = "matched_grns"
	FieldHistory     Field = "history"

	// Two-way match outputs.
	FieldMatchScore    Field = "match_score"
	FieldMatchResult   Field = "match_result"
	FieldTolerancePct  Field = "tolerance_pct"
	FieldMatchEvidence Field = "match_evidence"

	// Review checkpoint outputs.
	FieldCheckpointRef Field = "checkpoint_ref"
	FieldReviewURL     Field = "review_url"
	FieldPausedReason  Field = "paused_reason"

	// Human decision outputs.
	FieldHumanDecision Field = "human_decision"
	FieldReviewerID    Field = "reviewer_id"
	FieldResumeToken   Field = "resume_token"

	// Reconcile outputs.
	FieldAccountingEntries    Field = "accounting_entries"
	FieldReconciliationReport Field = "reconciliation_report"

	// Approve outputs.
	FieldApprovalStatus Field = "approval_status"
	FieldApproverID     Field = "approver_id"

	// Posting outputs.
	FieldPosted             Field = "posted"
	FieldERPTxnID           Field = "erp_txn_id"
	FieldScheduledPaymentID Field = "scheduled_payment_id"

	// Notify outputs.
	FieldNotifyStatus    Field = "notify_status"
	FieldNotifiedParties Field = "notified_parties"

	// Terminal outputs.
	FieldFinalPayload Field = "final_payload"

	// Accumulators.
	FieldAuditLog       Field = "audit_log"
	FieldToolSelections Field = "tool_selections"
	FieldErrors         Field = "errors"
)

// FieldPolicy declares how a field merges when a stage output lands on state
// that already holds a value for it.
type FieldPolicy int

const (
	// PolicyOverwrite replaces the prior value: last writer wins.
	PolicyOverwrite FieldPolicy = iota

	// PolicyWriteOnce allows exactly one assignment; a second write with a
	// different value is a defect.
	PolicyWriteOnce

	// PolicyAppend concatenates in execution order, duplicates allowed.
	PolicyAppend

	// PolicyUnionRight merges map keys with right bias: a later stage's value
	// for the same key wins, keys from earlier stages persist.
	PolicyUnionRight
)

// PolicyFor returns the merge policy for a field. Fields without a declared
// exception merge by overwrite.
func PolicyFor(f Field) FieldPolicy {
	switch f {
	case FieldWorkflowID:
		return PolicyWriteOnce
	case FieldAuditLog, FieldErrors:
		return PolicyAppend
	case FieldToolSelections:
		return PolicyUnionRight
	default:
		return PolicyOverwrite
	}
}
