// Package capability defines the contract between workflow stages and the
// pluggable units of delegated work they invoke. Capability names form a
// closed enumeration, each statically classified as locally computed or
// externally interacting.
package capability

import "context"

// Name identifies a capability. The set is closed: stages invoke these
// constants, never ad-hoc strings.
type Name string

const (
	// Locally computed.
	ValidateSchema          Name = "validate_schema"
	PersistRawInvoice       Name = "persist_raw_invoice"
	ParseLineItems          Name = "parse_line_items"
	NormalizeVendor         Name = "normalize_vendor"
	ComputeFlags            Name = "compute_flags"
	ComputeMatchScore       Name = "compute_match_score"
	BuildAccountingEntries  Name = "build_accounting_entries"

	// Externally interacting.
	OCRExtract          Name = "ocr_extract"
	EnrichVendor        Name = "enrich_vendor"
	FetchPO             Name = "fetch_po"
	FetchGRN            Name = "fetch_grn"
	FetchHistory        Name = "fetch_history"
	ApplyApprovalPolicy Name = "apply_approval_policy"
	PostToERP           Name = "post_to_erp"
	SchedulePayment     Name = "schedule_payment"
	SendNotification    Name = "send_notification"
)

// Class partitions capabilities by where their work happens.
type Class string

const (
	// ClassLocal capabilities compute over their inputs alone.
	ClassLocal Class = "local"

	// ClassExternal capabilities interact with outside systems.
	ClassExternal Class = "external"
)

var classes = map[Name]Class{
	ValidateSchema:         ClassLocal,
	PersistRawInvoice:      ClassLocal,
	ParseLineItems:         ClassLocal,
	NormalizeVendor:        ClassLocal,
	ComputeFlags:           ClassLocal,
	ComputeMatchScore:      ClassLocal,
	BuildAccountingEntries: ClassLocal,

	OCRExtract:          ClassExternal,
	EnrichVendor:        ClassExternal,
	FetchPO:             ClassExternal,
	FetchGRN:            ClassExternal,
	FetchHistory:        ClassExternal,
	ApplyApprovalPolicy: ClassExternal,
	PostToERP:           ClassExternal,
	SchedulePayment:     ClassExternal,
	SendNotification:    ClassExternal,
}

// Classify returns a capability's class. The second return is false for
// names outside the enumeration; callers fall back to ClassLocal with a
// warning rather than failing.
func Classify(name Name) (Class, bool) {
	class, ok := classes[name]
	return class, ok
}

// Invoker is the capability-invocation contract consumed by stage handlers.
type Invoker interface {
	Invoke(ctx context.Context, name Name, params map[string]any) (map[string]any, error)
}

// Provider executes capabilities of one class.
type Provider interface {
	Execute(ctx context.Context, name Name, params map[string]any) (map[string]any, error)
}
