// Package registry maintains the bounded, deduplicated, most-recent-first
// reference lists (customers, products) and the invoice history log.
// The list operations in this file are pure; persistence lives in store.go.
package registry

import (
	"strings"

	"astrogems/backend/internal/domain"
	"astrogems/backend/internal/refid"
)

// UpsertCustomer removes any entry with the same phone (exact match),
// prepends the record and caps the registry. Records missing a name or a
// phone are silently dropped, not reported.
func UpsertCustomer(reg []domain.CustomerDetails, rec domain.CustomerDetails) []domain.CustomerDetails {
	if rec.Name == "" || rec.Phone == "" {
		return reg
	}

	updated := make([]domain.CustomerDetails, 0, len(reg)+1)
	updated = append(updated, rec)
	for _, existing := range reg {
		if existing.Phone == rec.Phone {
			continue
		}
		updated = append(updated, existing)
	}

	if len(updated) > domain.CustomerRegistryCap {
		updated = updated[:domain.CustomerRegistryCap]
	}
	return updated
}

// UpsertProducts folds finalized line items into the catalog. For each item
// with non-empty particulars, in input order: drop any case-insensitive
// particulars match, then prepend a fresh template with a new id. When one
// call carries duplicate particulars the last-processed item wins. The cap
// is applied once, after the loop.
func UpsertProducts(reg []domain.ItemTemplate, items []domain.InvoiceItem) []domain.ItemTemplate {
	updated := reg
	for _, item := range items {
		if item.Particulars == "" {
			continue
		}

		name := strings.ToLower(item.Particulars)
		kept := make([]domain.ItemTemplate, 0, len(updated)+1)
		kept = append(kept, domain.ItemTemplate{
			ID:          refid.NewItemID(),
			Particulars: item.Particulars,
			Weight:      item.Weight,
			WeightUnit:  item.WeightUnit,
			UnitPrice:   item.UnitPrice,
		})
		for _, existing := range updated {
			if strings.ToLower(existing.Particulars) == name {
				continue
			}
			kept = append(kept, existing)
		}
		updated = kept
	}

	if len(updated) > domain.ProductRegistryCap {
		updated = updated[:domain.ProductRegistryCap]
	}
	return updated
}

// SearchCustomers returns entries whose name or phone contains the term as
// a case-insensitive substring, in registry order. Terms shorter than two
// characters match nothing to avoid noisy single-character results.
func SearchCustomers(reg []domain.CustomerDetails, term string) []domain.CustomerDetails {
	if len(term) < 2 {
		return []domain.CustomerDetails{}
	}

	needle := strings.ToLower(term)
	matches := make([]domain.CustomerDetails, 0, 8)
	for _, c := range reg {
		if strings.Contains(strings.ToLower(c.Name), needle) ||
			strings.Contains(strings.ToLower(c.Phone), needle) {
			matches = append(matches, c)
		}
	}
	return matches
}

// SearchProducts matches on particulars only, with the same term rules as
// SearchCustomers.
func SearchProducts(reg []domain.ItemTemplate, term string) []domain.ItemTemplate {
	if len(term) < 2 {
		return []domain.ItemTemplate{}
	}

	needle := strings.ToLower(term)
	matches := make([]domain.ItemTemplate, 0, 8)
	for _, p := range reg {
		if strings.Contains(strings.ToLower(p.Particulars), needle) {
			matches = append(matches, p)
		}
	}
	return matches
}

// AppendInvoice prepends an invoice and caps the history at its capacity.
// History is append-only: there is no update or delete operation.
func AppendInvoice(history []domain.Invoice, inv domain.Invoice) []domain.Invoice {
	updated := make([]domain.Invoice, 0, len(history)+1)
	updated = append(updated, inv)
	updated = append(updated, history...)

	if len(updated) > domain.InvoiceHistoryCap {
		updated = updated[:domain.InvoiceHistoryCap]
	}
	return updated
}
