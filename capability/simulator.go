package capability

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Simulator is a deterministic in-process Provider covering the full
// capability set. It stands in for real OCR, enrichment, ERP, and
// notification backends in tests, demos, and local runs.
type Simulator struct{}

// NewSimulator returns a simulator usable as both the local and external
// provider.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// Execute runs a simulated capability.
func (s *Simulator) Execute(ctx context.Context, name Name, params map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch name {
	case ValidateSchema:
		return map[string]any{"validated": true, "schema_version": "1.0"}, nil

	case PersistRawInvoice:
		return map[string]any{
			"raw_id":    fmt.Sprintf("RAW_%s", stringParam(params, "invoice_id", "unknown")),
			"stored_at": time.Now().UTC().Format(time.RFC3339),
		}, nil

	case ParseLineItems:
		return map[string]any{"parsed_items": params["line_items"]}, nil

	case NormalizeVendor:
		vendor := stringParam(params, "vendor_name", "")
		return map[string]any{
			"normalized_name": strings.ToUpper(strings.TrimSpace(vendor)),
			"confidence":      0.95,
		}, nil

	case ComputeFlags:
		return map[string]any{
			"flags": map[string]any{
				"missing_info":    []any{},
				"risk_score":      0.15,
				"requires_review": false,
			},
		}, nil

	case ComputeMatchScore:
		return computeMatchScore(params), nil

	case BuildAccountingEntries:
		amount := floatParam(params, "amount")
		return map[string]any{
			"accounting_entries": []map[string]any{
				{"account": "Accounts Payable", "debit": 0.0, "credit": amount, "description": "Invoice payable"},
				{"account": "Expense", "debit": amount, "credit": 0.0, "description": "Goods/Services received"},
			},
		}, nil

	case OCRExtract:
		return map[string]any{
			"extracted_text": "INVOICE\nAmount: $1000\nVendor: ACME Corp\nRef: PO-2025-001",
			"confidence":     0.92,
		}, nil

	case EnrichVendor:
		return map[string]any{
			"enrichment_data": map[string]any{
				"tax_id":       stringParam(params, "tax_id", "12-3456789"),
				"credit_score": 750,
				"risk_rating":  "LOW",
			},
		}, nil

	case FetchPO:
		return map[string]any{
			"purchase_orders": []map[string]any{
				{
					"po_number": "PO-2025-001",
					"amount":    1000.00,
					"status":    "APPROVED",
					"vendor":    stringParam(params, "vendor_name", "ACME CORP"),
				},
			},
		}, nil

	case FetchGRN:
		return map[string]any{
			"goods_received_notes": []map[string]any{
				{
					"grn_number":    "GRN-2025-001",
					"po_reference":  "PO-2025-001",
					"received_date": "2025-01-10",
					"quantity":      10,
				},
			},
		}, nil

	case FetchHistory:
		return map[string]any{
			"historical_invoices": []map[string]any{
				{
					"invoice_id": "INV-2024-999",
					"amount":     950.00,
					"status":     "PAID",
					"vendor":     stringParam(params, "vendor_name", "ACME CORP"),
				},
			},
		}, nil

	case ApplyApprovalPolicy:
		amount := floatParam(params, "amount")
		limit := floatParam(params, "auto_approve_limit")
		if limit == 0 {
			limit = 5000
		}
		status, approver := "AUTO_APPROVED", "system"
		if amount >= limit {
			status, approver = "REQUIRES_APPROVAL", "manager_001"
		}
		return map[string]any{
			"approval_status": status,
			"approver_id":     approver,
			"policy_applied":  "standard_approval_policy_v1",
		}, nil

	case PostToERP:
		return map[string]any{
			"posted":     true,
			"erp_txn_id": fmt.Sprintf("ERP_TXN_%s", stringParam(params, "invoice_id", "unknown")),
			"posted_at":  time.Now().UTC().Format(time.RFC3339),
		}, nil

	case SchedulePayment:
		return map[string]any{
			"payment_scheduled":    true,
			"scheduled_payment_id": fmt.Sprintf("PAY_%s", stringParam(params, "invoice_id", "unknown")),
			"scheduled_date":       stringParam(params, "due_date", ""),
		}, nil

	case SendNotification:
		return map[string]any{
			"notifications_sent": []map[string]any{
				{"recipient": stringParam(params, "vendor_email", "vendor@example.com"), "type": "email", "status": "sent"},
				{"recipient": stringParam(params, "finance_team", "#finance-team"), "type": "chat", "status": "sent"},
			},
		}, nil
	}

	return map[string]any{"message": fmt.Sprintf("capability %q simulated", name)}, nil
}

// computeMatchScore scores an invoice amount against its purchase order:
// score = max(0, 1 - |invoice - po| / po), with a zero PO amount scoring 0.
func computeMatchScore(params map[string]any) map[string]any {
	invoiceAmount := floatParam(params, "invoice_amount")
	poAmount := floatParam(params, "po_amount")
	threshold := floatParam(params, "threshold")

	var score, tolerancePct float64
	if poAmount == 0 {
		score = 0
		tolerancePct = 100
	} else {
		difference := math.Abs(invoiceAmount-poAmount) / poAmount
		score = math.Max(0, 1.0-difference)
		tolerancePct = difference * 100
	}

	result := "FAILED"
	if score >= threshold {
		result = "MATCHED"
	}

	return map[string]any{
		"match_score":   score,
		"match_result":  result,
		"tolerance_pct": tolerancePct,
		"match_evidence": map[string]any{
			"invoice_amount": invoiceAmount,
			"po_amount":      poAmount,
			"difference":     math.Abs(invoiceAmount - poAmount),
		},
	}
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func floatParam(params map[string]any, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
