// Package service owns the working invoice session: the three-step wizard,
// its guarded transitions, and the finalize path that commits registry and
// history mutations.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"astrogems/backend/internal/aiparse"
	"astrogems/backend/internal/billing"
	"astrogems/backend/internal/domain"
	"astrogems/backend/internal/metrics"
	"astrogems/backend/internal/money"
	"astrogems/backend/internal/refid"
	"astrogems/backend/internal/registry"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrEmptyItems    = errors.New("working item list is empty")
	ErrBadTransition = errors.New("transition not allowed from current step")
	ErrParseBusy     = errors.New("a parse request is already in flight")
)

const defaultTaxRate = 3.0

type session struct {
	step       domain.Step
	customer   domain.CustomerDetails
	items      []domain.InvoiceItem
	invoiceRef string
	taxRate    float64
	gstEnabled bool
	signature  string
	totals     domain.Totals
}

// Service is the single writer over both the working session and the
// persisted registries. The mutex covers every session read and mutation;
// the only call made outside of it is the AI collaborator request.
type Service struct {
	store  *registry.Store
	parser aiparse.Parser
	logger *zap.Logger

	mu      sync.Mutex
	session session
	aiBusy  bool
}

func New(store *registry.Store, parser aiparse.Parser, logger *zap.Logger) *Service {
	if parser == nil {
		parser = aiparse.NoopParser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:  store,
		parser: parser,
		logger: logger,
	}
	s.session = newSession()
	return s
}

func newSession() session {
	return session{
		step:       domain.StepCustomerEntry,
		items:      []domain.InvoiceItem{},
		taxRate:    defaultTaxRate,
		gstEnabled: true,
	}
}

func (s *Service) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Service) stateLocked() domain.SessionState {
	items := make([]domain.InvoiceItem, len(s.session.items))
	copy(items, s.session.items)

	return domain.SessionState{
		Step:         s.session.step,
		StepName:     s.session.step.String(),
		Customer:     s.session.customer,
		Items:        items,
		InvoiceRef:   s.session.invoiceRef,
		TaxRate:      s.session.taxRate,
		IsGstEnabled: s.session.gstEnabled,
		Signature:    s.session.signature,
		Totals:       s.session.totals,
	}
}

// recomputeTotalsLocked is the memoization point: totals are re-derived only
// when items or tax configuration change, never on unrelated reads.
func (s *Service) recomputeTotalsLocked() {
	s.session.totals = billing.ComputeTotals(s.session.items, s.session.taxRate, s.session.gstEnabled)
}

// Reset clears all working state and returns to customer entry. Persisted
// registries and history are untouched.
func (s *Service) Reset() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = newSession()
	return s.stateLocked()
}

func (s *Service) SetCustomer(cust domain.CustomerDetails) domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.customer = cust
	return s.stateLocked()
}

func (s *Service) SetTax(req domain.SetTaxRequest) domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.TaxRate != nil {
		s.session.taxRate = *req.TaxRate
	}
	if req.IsGstEnabled != nil {
		s.session.gstEnabled = *req.IsGstEnabled
	}
	s.recomputeTotalsLocked()
	return s.stateLocked()
}

// Advance moves CustomerEntry -> ItemEntry. Leaving ItemEntry happens only
// through Finalize, which is the registry/history mutation point.
func (s *Service) Advance() (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.step != domain.StepCustomerEntry {
		return domain.SessionState{}, ErrBadTransition
	}
	s.session.step = domain.StepItemEntry
	return s.stateLocked(), nil
}

func (s *Service) Back() (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.session.step {
	case domain.StepItemEntry:
		s.session.step = domain.StepCustomerEntry
	case domain.StepPreview:
		s.session.step = domain.StepItemEntry
	default:
		return domain.SessionState{}, ErrBadTransition
	}
	return s.stateLocked(), nil
}

func (s *Service) AddItem(req domain.AddItemRequest) domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	unit := req.WeightUnit
	if unit == "" {
		unit = domain.DefaultWeightUnit
	}

	item := billing.ApplyItemPatch(domain.InvoiceItem{
		ID:          refid.NewItemID(),
		Particulars: req.Particulars,
		Quantity:    quantity,
		Weight:      req.Weight,
		WeightUnit:  unit,
		UnitPrice:   req.UnitPrice,
	}, domain.ItemPatch{})

	s.session.items = append(s.session.items, item)
	s.recomputeTotalsLocked()
	return s.stateLocked()
}

// AddFromTemplate copies a catalog entry onto the working list as a fresh
// line item with quantity 1. The line remains independently editable.
func (s *Service) AddFromTemplate(ctx context.Context, req domain.AddFromTemplateRequest) (domain.SessionState, error) {
	products, err := s.store.Products(ctx)
	if err != nil {
		return domain.SessionState{}, err
	}

	var tmpl *domain.ItemTemplate
	for i := range products {
		if req.TemplateID != "" && products[i].ID == req.TemplateID {
			tmpl = &products[i]
			break
		}
		if req.TemplateID == "" && strings.EqualFold(products[i].Particulars, req.Particulars) {
			tmpl = &products[i]
			break
		}
	}
	if tmpl == nil {
		return domain.SessionState{}, fmt.Errorf("%w: catalog template", ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.items = append(s.session.items, domain.InvoiceItem{
		ID:          refid.NewItemID(),
		Particulars: tmpl.Particulars,
		Quantity:    1,
		Weight:      tmpl.Weight,
		WeightUnit:  tmpl.WeightUnit,
		UnitPrice:   tmpl.UnitPrice,
		Total:       tmpl.UnitPrice,
	})
	s.recomputeTotalsLocked()
	return s.stateLocked(), nil
}

func (s *Service) UpdateItem(id string, patch domain.ItemPatch) (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.session.items {
		if s.session.items[i].ID == id {
			s.session.items[i] = billing.ApplyItemPatch(s.session.items[i], patch)
			s.recomputeTotalsLocked()
			return s.stateLocked(), nil
		}
	}
	return domain.SessionState{}, fmt.Errorf("%w: item %s", ErrNotFound, id)
}

func (s *Service) RemoveItem(id string) (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]domain.InvoiceItem, 0, len(s.session.items))
	removed := false
	for _, item := range s.session.items {
		if item.ID == id {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return domain.SessionState{}, fmt.Errorf("%w: item %s", ErrNotFound, id)
	}

	s.session.items = kept
	s.recomputeTotalsLocked()
	return s.stateLocked(), nil
}

// SmartAdd runs the AI collaborator outside the session lock, then applies
// whatever drafts came back to the item list that exists at completion time
// (last write wins, no staleness check). A busy flag enforces at most one
// in-flight parse; there is no queue and no cancellation.
func (s *Service) SmartAdd(ctx context.Context, text string) (domain.SmartAddResponse, error) {
	if strings.TrimSpace(text) == "" {
		return domain.SmartAddResponse{State: s.State()}, nil
	}

	s.mu.Lock()
	if s.aiBusy {
		s.mu.Unlock()
		return domain.SmartAddResponse{}, ErrParseBusy
	}
	s.aiBusy = true
	s.mu.Unlock()

	// Clear the flag even if the parser panics; a stuck flag would lock
	// smart-add out for the rest of the process lifetime.
	defer func() {
		s.mu.Lock()
		s.aiBusy = false
		s.mu.Unlock()
	}()

	drafts := s.parser.ParseItems(ctx, text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(drafts) == 0 {
		metrics.AIParses.WithLabelValues(metrics.ParseOutcomeEmpty).Inc()
		return domain.SmartAddResponse{Added: []domain.InvoiceItem{}, State: s.stateLocked()}, nil
	}

	added := make([]domain.InvoiceItem, 0, len(drafts))
	for _, draft := range drafts {
		item := draftToItem(draft)
		s.session.items = append(s.session.items, item)
		added = append(added, item)
	}
	s.recomputeTotalsLocked()
	metrics.AIParses.WithLabelValues(metrics.ParseOutcomeOK).Inc()

	s.logger.Info("smart-add applied",
		zap.Int("items", len(added)),
	)
	return domain.SmartAddResponse{Added: added, State: s.stateLocked()}, nil
}

func draftToItem(draft domain.ItemDraft) domain.InvoiceItem {
	particulars := draft.Particulars
	if particulars == "" {
		particulars = "New Gem"
	}
	quantity := draft.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	unit := draft.WeightUnit
	if unit == "" {
		unit = domain.DefaultWeightUnit
	}

	return billing.ApplyItemPatch(domain.InvoiceItem{
		ID:          refid.NewItemID(),
		Particulars: particulars,
		Quantity:    quantity,
		Weight:      draft.Weight,
		WeightUnit:  unit,
		UnitPrice:   draft.UnitPrice,
	}, domain.ItemPatch{})
}

func (s *Service) SetSignature(signature string) domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.signature = signature
	return s.stateLocked()
}

// Finalize snapshots the working session into an immutable Invoice, commits
// the registry upserts and the history append, and moves to Preview. This
// is the only operation that mutates persisted state.
func (s *Service) Finalize(ctx context.Context) (domain.FinalizeResponse, error) {
	s.mu.Lock()
	if s.session.step != domain.StepItemEntry {
		s.mu.Unlock()
		return domain.FinalizeResponse{}, ErrBadTransition
	}
	if len(s.session.items) == 0 {
		s.mu.Unlock()
		return domain.FinalizeResponse{}, ErrEmptyItems
	}

	if s.session.invoiceRef == "" {
		s.session.invoiceRef = refid.NewInvoiceRef()
	}

	items := make([]domain.InvoiceItem, len(s.session.items))
	copy(items, s.session.items)

	invoice := domain.Invoice{
		ID:           s.session.invoiceRef,
		Date:         time.Now().Format("02/01/2006"),
		Customer:     s.session.customer,
		Items:        items,
		Subtotal:     s.session.totals.Subtotal,
		TaxRate:      s.session.taxRate,
		TaxAmount:    s.session.totals.TaxAmount,
		GrandTotal:   s.session.totals.GrandTotal,
		IsGstEnabled: s.session.gstEnabled,
		Signature:    s.session.signature,
	}
	customer := s.session.customer
	s.mu.Unlock()

	customers, err := s.store.Customers(ctx)
	if err != nil {
		return domain.FinalizeResponse{}, err
	}
	customers = registry.UpsertCustomer(customers, customer)
	if err := s.store.SaveCustomers(ctx, customers); err != nil {
		return domain.FinalizeResponse{}, err
	}

	products, err := s.store.Products(ctx)
	if err != nil {
		return domain.FinalizeResponse{}, err
	}
	products = registry.UpsertProducts(products, invoice.Items)
	if err := s.store.SaveProducts(ctx, products); err != nil {
		return domain.FinalizeResponse{}, err
	}

	history, err := s.store.History(ctx)
	if err != nil {
		return domain.FinalizeResponse{}, err
	}
	history = registry.AppendInvoice(history, invoice)
	if err := s.store.SaveHistory(ctx, history); err != nil {
		return domain.FinalizeResponse{}, err
	}

	metrics.InvoicesFinalized.Inc()
	metrics.RegistrySize.WithLabelValues("customers").Set(float64(len(customers)))
	metrics.RegistrySize.WithLabelValues("products").Set(float64(len(products)))
	metrics.RegistrySize.WithLabelValues("history").Set(float64(len(history)))

	s.mu.Lock()
	s.session.step = domain.StepPreview
	s.mu.Unlock()

	s.logger.Info("invoice finalized",
		zap.String("ref", invoice.ID),
		zap.Int("items", len(invoice.Items)),
		zap.Float64("grand_total", invoice.GrandTotal),
	)

	return domain.FinalizeResponse{
		Invoice:   invoice,
		ShareText: BuildShareText(invoice),
		ShareURL:  BuildShareURL(invoice),
	}, nil
}

// LoadFromHistory copies a past invoice into the working session and jumps
// to Preview. It never re-triggers registry or history mutations; a later
// Finalize produces a new Invoice, not an edit of the old one.
func (s *Service) LoadFromHistory(ctx context.Context, ref string) (domain.SessionState, error) {
	history, err := s.store.History(ctx)
	if err != nil {
		return domain.SessionState{}, err
	}

	for _, inv := range history {
		if inv.ID != ref {
			continue
		}

		items := make([]domain.InvoiceItem, len(inv.Items))
		copy(items, inv.Items)

		s.mu.Lock()
		s.session = session{
			step:       domain.StepPreview,
			customer:   inv.Customer,
			items:      items,
			invoiceRef: inv.ID,
			taxRate:    inv.TaxRate,
			gstEnabled: inv.IsGstEnabled,
			signature:  inv.Signature,
		}
		s.recomputeTotalsLocked()
		state := s.stateLocked()
		s.mu.Unlock()
		return state, nil
	}
	return domain.SessionState{}, fmt.Errorf("%w: invoice %s", ErrNotFound, ref)
}

// LoadDemo seeds a known customer and two items for a walkthrough session.
// Like loading from history, it touches nothing persisted.
func (s *Service) LoadDemo() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = session{
		step: domain.StepPreview,
		customer: domain.CustomerDetails{
			Name:    "Rajesh Kumar",
			Phone:   "+91 98765 43210",
			Email:   "rajesh@gmail.com",
			Address: "H.No 45, Sector 15, Gurgaon, HR",
		},
		items: []domain.InvoiceItem{
			{ID: refid.NewItemID(), Particulars: "Yellow Sapphire (Certified)", Quantity: 1, Weight: 4.25, WeightUnit: "ct", UnitPrice: 18000, Total: 18000},
			{ID: refid.NewItemID(), Particulars: "Astrological Consultation", Quantity: 1, Weight: 0, WeightUnit: "-", UnitPrice: 1100, Total: 1100},
		},
		invoiceRef: refid.NewInvoiceRef(),
		taxRate:    defaultTaxRate,
		gstEnabled: true,
	}
	s.recomputeTotalsLocked()
	return s.stateLocked()
}

func (s *Service) SearchCustomers(ctx context.Context, term string) ([]domain.CustomerDetails, error) {
	customers, err := s.store.Customers(ctx)
	if err != nil {
		return nil, err
	}
	return registry.SearchCustomers(customers, term), nil
}

func (s *Service) SearchProducts(ctx context.Context, term string) ([]domain.ItemTemplate, error) {
	products, err := s.store.Products(ctx)
	if err != nil {
		return nil, err
	}
	return registry.SearchProducts(products, term), nil
}

func (s *Service) History(ctx context.Context, limit int) ([]domain.Invoice, error) {
	history, err := s.store.History(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	return history, nil
}

func (s *Service) InvoiceByRef(ctx context.Context, ref string) (domain.Invoice, error) {
	history, err := s.store.History(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}
	for _, inv := range history {
		if inv.ID == ref {
			return inv, nil
		}
	}
	return domain.Invoice{}, fmt.Errorf("%w: invoice %s", ErrNotFound, ref)
}

func (s *Service) Theme(ctx context.Context) (string, error) {
	return s.store.Theme(ctx)
}

func (s *Service) SetTheme(ctx context.Context, theme string) error {
	return s.store.SaveTheme(ctx, theme)
}

func (s *Service) MarkIosTipSeen(ctx context.Context) error {
	return s.store.MarkIosTipSeen(ctx)
}

// BuildShareText renders the short bill summary sent over WhatsApp.
func BuildShareText(inv domain.Invoice) string {
	return "✨ *AstroGems Pro Bill* ✨\n" +
		"*Ref:* " + inv.ID + "\n" +
		"*Customer:* " + inv.Customer.Name + "\n" +
		"*Total:* " + money.FormatINR(inv.GrandTotal) + "\n" +
		"Thank you for visiting! ✨"
}

// BuildShareURL builds the wa.me link from the customer phone digits.
func BuildShareURL(inv domain.Invoice) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, inv.Customer.Phone)

	return "https://wa.me/" + digits + "?text=" + url.QueryEscape(BuildShareText(inv))
}
