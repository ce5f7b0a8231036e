package payflow

import "fmt"

// LineItem is a single billed line on an invoice.
type LineItem struct {
	Description string  `json:"desc" yaml:"desc"`
	Quantity    float64 `json:"qty" yaml:"qty"`
	UnitPrice   float64 `json:"unit_price" yaml:"unit_price"`
	Total       float64 `json:"total" yaml:"total"`
}

// InvoicePayload is the document submitted for processing. It is the sole
// input to a workflow run and is carried unmodified through every stage.
type InvoicePayload struct {
	InvoiceID   string     `json:"invoice_id" yaml:"invoice_id"`
	VendorName  string     `json:"vendor_name" yaml:"vendor_name"`
	VendorTaxID string     `json:"vendor_tax_id" yaml:"vendor_tax_id"`
	InvoiceDate string     `json:"invoice_date" yaml:"invoice_date"`
	DueDate     string     `json:"due_date" yaml:"due_date"`
	Amount      float64    `json:"amount" yaml:"amount"`
	Currency    string     `json:"currency" yaml:"currency"`
	LineItems   []LineItem `json:"line_items" yaml:"line_items"`
	Attachments []string   `json:"attachments,omitempty" yaml:"attachments,omitempty"`
}

// Validate checks the payload carries the minimum identifying information.
func (p InvoicePayload) Validate() error {
	if p.InvoiceID == "" {
		return NewValidationError("invoice_id is required")
	}
	if p.VendorName == "" {
		return NewValidationError("vendor_name is required")
	}
	if p.Amount < 0 {
		return NewValidationError("amount must not be negative: %v", p.Amount)
	}
	return nil
}

// VendorProfile is the enriched vendor identity produced by the prepare stage.
type VendorProfile struct {
	NormalizedName string         `json:"normalized_name"`
	TaxID          string         `json:"tax_id"`
	EnrichmentMeta map[string]any `json:"enrichment_meta,omitempty"`
}

func (p VendorProfile) String() string {
	return fmt.Sprintf("%s (%s)", p.NormalizedName, p.TaxID)
}
