package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInvoiceFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadInvoiceYAML(t *testing.T) {
	path := writeInvoiceFile(t, "invoice.yaml", `
invoice_id: INV-2024-001
vendor_name: Acme Corp
amount: 850.0
currency: USD
line_items:
  - desc: Widgets
    qty: 10
    unit_price: 85.0
    total: 850.0
`)
	payload, err := loadInvoice(path)
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-001", payload.InvoiceID)
	assert.Equal(t, "Acme Corp", payload.VendorName)
	assert.Equal(t, 850.0, payload.Amount)
	require.Len(t, payload.LineItems, 1)
	assert.Equal(t, "Widgets", payload.LineItems[0].Description)
}

func TestLoadInvoiceJSON(t *testing.T) {
	path := writeInvoiceFile(t, "invoice.json",
		`{"invoice_id": "INV-2024-002", "vendor_name": "Globex", "amount": 1000.0}`)
	payload, err := loadInvoice(path)
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-002", payload.InvoiceID)
	assert.Equal(t, 1000.0, payload.Amount)
}

func TestLoadInvoiceMissingFile(t *testing.T) {
	_, err := loadInvoice(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read invoice file")
}

func TestRenderTableAlignment(t *testing.T) {
	out := renderTable(
		[]string{"ID", "AMOUNT"},
		[][]string{{"INV-2024-001", "850.00"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	assert.Contains(t, out, "INV-2024-001")
	assert.Contains(t, out, "850.00")
	assert.Contains(t, out, "ID")
}
