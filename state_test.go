package payflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPayload(amount float64) InvoicePayload {
	return InvoicePayload{
		InvoiceID:   "INV-2024-001",
		VendorName:  "Acme Corp",
		VendorTaxID: "TAX-123",
		InvoiceDate: "2024-03-01",
		DueDate:     "2024-03-31",
		Amount:      amount,
		Currency:    "USD",
		LineItems: []LineItem{
			{Description: "Widgets", Quantity: 10, UnitPrice: amount / 10, Total: amount},
		},
	}
}

func TestStateMergeOverwrite(t *testing.T) {
	s := NewState(testPayload(1000))

	require.NoError(t, s.Merge(&StageUpdate{Fields: map[Field]any{FieldMatchResult: "FAILED"}}))
	require.NoError(t, s.Merge(&StageUpdate{Fields: map[Field]any{FieldMatchResult: "MATCHED"}}))
	require.Equal(t, "MATCHED", s.MatchResult())
}

func TestStateMergeWriteOnce(t *testing.T) {
	s := NewState(testPayload(1000))

	require.NoError(t, s.Merge(&StageUpdate{Fields: map[Field]any{FieldWorkflowID: "wf-1"}}))

	// Re-asserting the same value is fine.
	require.NoError(t, s.Merge(&StageUpdate{Fields: map[Field]any{FieldWorkflowID: "wf-1"}}))

	err := s.Merge(&StageUpdate{Fields: map[Field]any{FieldWorkflowID: "wf-2"}})
	require.Error(t, err)
	require.Equal(t, ErrorTypeFatal, TypeOf(err))
	require.Equal(t, "wf-1", s.WorkflowID())
}

func TestStateMergeRejectsDirectAccumulatorWrite(t *testing.T) {
	s := NewState(testPayload(1000))

	err := s.Merge(&StageUpdate{Fields: map[Field]any{FieldErrors: []StageError{{Stage: "x"}}}})
	require.Error(t, err)
	require.Equal(t, ErrorTypeFatal, TypeOf(err))
}

func TestStateAccumulators(t *testing.T) {
	s := NewState(testPayload(1000))

	require.NoError(t, s.Merge(&StageUpdate{
		ToolSelections: map[string]string{"intake_storage": "s3", "understand_ocr": "textract"},
		Errors:         []StageError{{Stage: "intake", Message: "slow"}},
	}))
	require.NoError(t, s.Merge(&StageUpdate{
		ToolSelections: map[string]string{"understand_ocr": "tesseract"},
		Errors:         []StageError{{Stage: "prepare", Message: "partial"}},
	}))

	// Union with right bias: later value for the same key wins.
	selections := s.ToolSelections()
	require.Equal(t, "s3", selections["intake_storage"])
	require.Equal(t, "tesseract", selections["understand_ocr"])

	// Append keeps execution order.
	errs := s.StageErrors()
	require.Len(t, errs, 2)
	require.Equal(t, "intake", errs[0].Stage)
	require.Equal(t, "prepare", errs[1].Stage)
}

func TestStateSnapshotRestore(t *testing.T) {
	s := NewState(testPayload(850))
	require.NoError(t, s.Merge(&StageUpdate{Fields: map[Field]any{
		FieldWorkflowID: "wf-1",
		FieldMatchScore: 0.85,
		FieldVendorProfile: VendorProfile{
			NormalizedName: "ACME CORP",
			TaxID:          "TAX-123",
		},
	}}))
	s.appendAudit(AuditEntry{
		WorkflowID: "wf-1",
		Stage:      StageMatch,
		Action:     "matching_completed",
		Timestamp:  time.Now().UTC(),
	})
	s.set(FieldCurrentStage, StageMatch)

	snapshot, err := s.Snapshot()
	require.NoError(t, err)

	restored, err := RestoreState(snapshot)
	require.NoError(t, err)

	require.Equal(t, "wf-1", restored.WorkflowID())
	require.Equal(t, StageMatch, restored.CurrentStage())
	require.Equal(t, "INV-2024-001", restored.InvoicePayload().InvoiceID)
	require.Equal(t, 850.0, restored.InvoicePayload().Amount)
	require.Equal(t, "ACME CORP", restored.VendorProfile().NormalizedName)

	score, ok := restored.MatchScore()
	require.True(t, ok)
	require.Equal(t, 0.85, score)

	trail := restored.AuditTrail()
	require.Len(t, trail, 1)
	require.Equal(t, StageMatch, trail[0].Stage)
}

func TestStateFirstPOAmountAfterRestore(t *testing.T) {
	s := NewState(testPayload(850))
	require.NoError(t, s.Merge(&StageUpdate{Fields: map[Field]any{
		FieldMatchedPOs: []map[string]any{{"po_number": "PO-2024-042", "amount": 1000.0}},
	}}))
	require.Equal(t, 1000.0, s.FirstPOAmount())

	snapshot, err := s.Snapshot()
	require.NoError(t, err)
	restored, err := RestoreState(snapshot)
	require.NoError(t, err)

	// The restored slice is loosely typed; the accessor still finds the amount.
	require.Equal(t, 1000.0, restored.FirstPOAmount())
}

func TestPolicyFor(t *testing.T) {
	require.Equal(t, PolicyWriteOnce, PolicyFor(FieldWorkflowID))
	require.Equal(t, PolicyAppend, PolicyFor(FieldAuditLog))
	require.Equal(t, PolicyAppend, PolicyFor(FieldErrors))
	require.Equal(t, PolicyUnionRight, PolicyFor(FieldToolSelections))
	require.Equal(t, PolicyOverwrite, PolicyFor(FieldMatchScore))
}
