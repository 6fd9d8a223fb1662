// Package billing derives line-item and invoice totals. Everything here is
// pure and synchronous; callers decide when to recompute.
package billing

import (
	"math"

	"astrogems/backend/internal/domain"
)

// ApplyItemPatch merges a partial update into a line item (incoming fields
// win) and re-derives Total from the post-merge quantity and unit price.
// Total is never an independently settable field.
func ApplyItemPatch(item domain.InvoiceItem, patch domain.ItemPatch) domain.InvoiceItem {
	if patch.Particulars != nil {
		item.Particulars = *patch.Particulars
	}
	if patch.Quantity != nil {
		item.Quantity = *patch.Quantity
	}
	if patch.Weight != nil {
		item.Weight = *patch.Weight
	}
	if patch.WeightUnit != nil {
		item.WeightUnit = *patch.WeightUnit
	}
	if patch.UnitPrice != nil {
		item.UnitPrice = *patch.UnitPrice
	}

	item.Total = numericOrZero(item.Quantity) * numericOrZero(item.UnitPrice)
	return item
}

// ComputeTotals sums item totals in list order and applies the tax rule.
// Plain IEEE double summation is acceptable here: inputs are currency-scale
// values entered by a human.
func ComputeTotals(items []domain.InvoiceItem, taxRate float64, gstEnabled bool) domain.Totals {
	subtotal := 0.0
	for _, item := range items {
		subtotal += item.Total
	}

	taxAmount := 0.0
	if gstEnabled {
		taxAmount = subtotal * numericOrZero(taxRate) / 100
	}

	return domain.Totals{
		Subtotal:   subtotal,
		TaxAmount:  taxAmount,
		GrandTotal: subtotal + taxAmount,
	}
}

// numericOrZero treats NaN and ±Inf as 0, the closed-form of the original
// "non-numeric input counts as zero" rule.
func numericOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
