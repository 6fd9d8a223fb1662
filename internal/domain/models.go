// Package domain holds the shared types for the billing session, the
// bounded registries, and the invoice history, plus the request and
// response envelopes the HTTP layer exchanges.
package domain

// Registry capacities. Each registry keeps its newest entries first and
// drops from the tail once the cap is reached.
const (
	CustomerRegistryCap = 200
	ProductRegistryCap  = 500
	InvoiceHistoryCap   = 100
)

// DefaultWeightUnit is applied when an item arrives without one.
const DefaultWeightUnit = "ct"

// Theme preference values.
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// CustomerDetails identifies a buyer. Phone is the dedupe key for the
// customer registry.
type CustomerDetails struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

// InvoiceItem is one line on the working invoice. Total is always derived
// from Quantity and UnitPrice, never accepted from callers.
type InvoiceItem struct {
	ID          string  `json:"id"`
	Particulars string  `json:"particulars"`
	Quantity    float64 `json:"quantity"`
	Weight      float64 `json:"weight"`
	WeightUnit  string  `json:"weightUnit"`
	UnitPrice   float64 `json:"unitPrice"`
	Total       float64 `json:"total"`
}

// ItemTemplate is a product registry entry, reusable as a starting point
// for new invoice lines.
type ItemTemplate struct {
	ID          string  `json:"id"`
	Particulars string  `json:"particulars"`
	Weight      float64 `json:"weight"`
	WeightUnit  string  `json:"weightUnit"`
	UnitPrice   float64 `json:"unitPrice"`
}

// Invoice is the immutable record appended to history on finalize.
type Invoice struct {
	ID           string          `json:"id"`
	Date         string          `json:"date"`
	Customer     CustomerDetails `json:"customer"`
	Items        []InvoiceItem   `json:"items"`
	Subtotal     float64         `json:"subtotal"`
	TaxRate      float64         `json:"taxRate"`
	TaxAmount    float64         `json:"taxAmount"`
	GrandTotal   float64         `json:"grandTotal"`
	IsGstEnabled bool            `json:"isGstEnabled"`
	FooterText   string          `json:"footerText,omitempty"`
	Signature    string          `json:"signature,omitempty"`
}

// Totals is the derived money summary for the working item list.
type Totals struct {
	Subtotal   float64 `json:"subtotal"`
	TaxAmount  float64 `json:"taxAmount"`
	GrandTotal float64 `json:"grandTotal"`
}

// ItemPatch is a partial update for one invoice line. Nil fields are left
// untouched.
type ItemPatch struct {
	Particulars *string  `json:"particulars,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	Weight      *float64 `json:"weight,omitempty"`
	WeightUnit  *string  `json:"weightUnit,omitempty"`
	UnitPrice   *float64 `json:"unitPrice,omitempty"`
}

// ItemDraft is what the AI parser extracts from free text before defaults
// and IDs are applied.
type ItemDraft struct {
	Particulars string  `json:"particulars"`
	Quantity    float64 `json:"quantity"`
	Weight      float64 `json:"weight"`
	WeightUnit  string  `json:"weightUnit"`
	UnitPrice   float64 `json:"unitPrice"`
}

// Step is the wizard position of the working session.
type Step int

const (
	StepCustomerEntry Step = 1
	StepItemEntry     Step = 2
	StepPreview       Step = 3
)

func (s Step) String() string {
	switch s {
	case StepCustomerEntry:
		return "customer_entry"
	case StepItemEntry:
		return "item_entry"
	case StepPreview:
		return "preview"
	default:
		return "unknown"
	}
}

// SessionState is the full working session as returned to clients.
type SessionState struct {
	Step         Step            `json:"step"`
	StepName     string          `json:"stepName"`
	Customer     CustomerDetails `json:"customer"`
	Items        []InvoiceItem   `json:"items"`
	InvoiceRef   string          `json:"invoiceRef"`
	TaxRate      float64         `json:"taxRate"`
	IsGstEnabled bool            `json:"isGstEnabled"`
	Signature    string          `json:"signature,omitempty"`
	Totals       Totals          `json:"totals"`
}

type SetCustomerRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type SetTaxRequest struct {
	TaxRate      *float64 `json:"taxRate,omitempty"`
	IsGstEnabled *bool    `json:"isGstEnabled,omitempty"`
}

type AddItemRequest struct {
	Particulars string  `json:"particulars"`
	Quantity    float64 `json:"quantity"`
	Weight      float64 `json:"weight"`
	WeightUnit  string  `json:"weightUnit"`
	UnitPrice   float64 `json:"unitPrice"`
}

// AddFromTemplateRequest selects a catalog entry either by ID or by an
// exact (case-insensitive) particulars match.
type AddFromTemplateRequest struct {
	TemplateID  string `json:"templateId,omitempty"`
	Particulars string `json:"particulars,omitempty"`
}

type SmartAddRequest struct {
	Text string `json:"text"`
}

type SmartAddResponse struct {
	Added []InvoiceItem `json:"added"`
	State SessionState  `json:"state"`
}

type SetSignatureRequest struct {
	Signature string `json:"signature"`
}

type FinalizeResponse struct {
	Invoice   Invoice `json:"invoice"`
	ShareText string  `json:"shareText"`
	ShareURL  string  `json:"shareUrl"`
}

type SearchCustomersResponse struct {
	Customers []CustomerDetails `json:"customers"`
}

type SearchProductsResponse struct {
	Products []ItemTemplate `json:"products"`
}

type InvoiceListResponse struct {
	Invoices []Invoice `json:"invoices"`
}

type ThemeRequest struct {
	Theme string `json:"theme"`
}

type ThemeResponse struct {
	Theme string `json:"theme"`
}

// DefaultCatalog seeds the product registry on first run.
func DefaultCatalog() []ItemTemplate {
	return []ItemTemplate{
		{ID: "g1", Particulars: "Blue Sapphire (Neelam)", Weight: 5.25, WeightUnit: "ct", UnitPrice: 12500},
		{ID: "g2", Particulars: "Yellow Sapphire (Pukhraj)", Weight: 4.5, WeightUnit: "ct", UnitPrice: 15000},
		{ID: "g3", Particulars: "Emerald (Panna)", Weight: 3.2, WeightUnit: "ct", UnitPrice: 8000},
		{ID: "g4", Particulars: "Ruby (Manik)", Weight: 6.0, WeightUnit: "ratti", UnitPrice: 9500},
		{ID: "g5", Particulars: "Red Coral (Moonga)", Weight: 8.5, WeightUnit: "ratti", UnitPrice: 2500},
		{ID: "g6", Particulars: "Pearl (Moti)", Weight: 5.0, WeightUnit: "ct", UnitPrice: 3200},
		{ID: "g7", Particulars: "Hessonite (Gomed)", Weight: 7.25, WeightUnit: "ct", UnitPrice: 1800},
		{ID: "g8", Particulars: "Cat's Eye (Lehsuniya)", Weight: 4.8, WeightUnit: "ct", UnitPrice: 4500},
	}
}
