package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"astrogems/backend/internal/aiparse"
	"astrogems/backend/internal/domain"
	"astrogems/backend/internal/kv"
	"astrogems/backend/internal/registry"
)

type scriptedParser struct {
	drafts  []domain.ItemDraft
	release chan struct{}
	started chan struct{}
}

func (p *scriptedParser) ParseItems(_ context.Context, _ string) []domain.ItemDraft {
	if p.started != nil {
		close(p.started)
	}
	if p.release != nil {
		<-p.release
	}
	return p.drafts
}

type explodingParser struct {
	calls int
}

func (p *explodingParser) ParseItems(_ context.Context, _ string) []domain.ItemDraft {
	p.calls++
	if p.calls == 1 {
		panic("parser exploded")
	}
	return nil
}

func newTestService(parser aiparse.Parser) *Service {
	store := registry.NewStore(kv.NewMemory(), nil)
	return New(store, parser, nil)
}

func floatPtr(v float64) *float64 { return &v }

func TestFinalizeComputesTotalsAndCommits(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	svc.SetCustomer(domain.CustomerDetails{
		Name:  "Rajesh Kumar",
		Phone: "+91 98765 43210",
	})
	if _, err := svc.Advance(); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	svc.AddItem(domain.AddItemRequest{Particulars: "Yellow Sapphire (Certified)", Quantity: 1, Weight: 4.25, WeightUnit: "ct", UnitPrice: 18000})
	svc.AddItem(domain.AddItemRequest{Particulars: "Astrological Consultation", Quantity: 1, WeightUnit: "-", UnitPrice: 1100})

	resp, err := svc.Finalize(ctx)
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	inv := resp.Invoice
	if inv.Subtotal != 19100 {
		t.Fatalf("expected subtotal 19100, got %v", inv.Subtotal)
	}
	if inv.TaxAmount != 573 {
		t.Fatalf("expected tax 573, got %v", inv.TaxAmount)
	}
	if inv.GrandTotal != 19673 {
		t.Fatalf("expected grand total 19673, got %v", inv.GrandTotal)
	}
	if inv.ID == "" {
		t.Fatalf("expected invoice ref to be assigned")
	}

	if svc.State().Step != domain.StepPreview {
		t.Fatalf("expected preview step after finalize")
	}

	customers, err := svc.SearchCustomers(ctx, "rajesh")
	if err != nil || len(customers) != 1 {
		t.Fatalf("expected finalized customer in registry (err=%v, got %d)", err, len(customers))
	}

	products, err := svc.SearchProducts(ctx, "consultation")
	if err != nil || len(products) != 1 {
		t.Fatalf("expected finalized item in product registry (err=%v, got %d)", err, len(products))
	}

	history, err := svc.History(ctx, 0)
	if err != nil || len(history) != 1 {
		t.Fatalf("expected one history entry (err=%v, got %d)", err, len(history))
	}
}

func TestFinalizeGuards(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	if _, err := svc.Finalize(ctx); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("expected bad transition from customer entry, got %v", err)
	}

	if _, err := svc.Advance(); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if _, err := svc.Finalize(ctx); !errors.Is(err, ErrEmptyItems) {
		t.Fatalf("expected empty-items guard, got %v", err)
	}
}

func TestAdvanceOnlyFromCustomerEntry(t *testing.T) {
	svc := newTestService(nil)

	if _, err := svc.Advance(); err != nil {
		t.Fatalf("first advance failed: %v", err)
	}
	if _, err := svc.Advance(); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("expected bad transition on second advance, got %v", err)
	}

	if _, err := svc.Back(); err != nil {
		t.Fatalf("back failed: %v", err)
	}
	if _, err := svc.Back(); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("expected bad transition on back from customer entry, got %v", err)
	}
}

func TestResetClearsWorkingState(t *testing.T) {
	svc := newTestService(nil)

	svc.SetCustomer(domain.CustomerDetails{Name: "Priya", Phone: "123"})
	if _, err := svc.Advance(); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	svc.AddItem(domain.AddItemRequest{Particulars: "Pearl (Moti)", UnitPrice: 3200})
	svc.SetSignature("data:image/png;base64,AAAA")

	state := svc.Reset()
	if state.Step != domain.StepCustomerEntry {
		t.Fatalf("expected customer entry after reset, got %v", state.Step)
	}
	if state.Customer.Name != "" || len(state.Items) != 0 || state.Signature != "" || state.InvoiceRef != "" {
		t.Fatalf("expected cleared session, got %+v", state)
	}
	if state.Totals.GrandTotal != 0 {
		t.Fatalf("expected zero totals, got %+v", state.Totals)
	}
}

func TestUpdateItemRecomputesTotal(t *testing.T) {
	svc := newTestService(nil)
	if _, err := svc.Advance(); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	state := svc.AddItem(domain.AddItemRequest{Particulars: "Ruby (Manik)", Quantity: 1, UnitPrice: 9500})
	itemID := state.Items[0].ID

	updated, err := svc.UpdateItem(itemID, domain.ItemPatch{Quantity: floatPtr(2)})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Items[0].Total != 19000 {
		t.Fatalf("expected total 19000, got %v", updated.Items[0].Total)
	}
	if updated.Totals.Subtotal != 19000 {
		t.Fatalf("expected subtotal 19000, got %v", updated.Totals.Subtotal)
	}

	if _, err := svc.UpdateItem("missing", domain.ItemPatch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveItem(t *testing.T) {
	svc := newTestService(nil)
	state := svc.AddItem(domain.AddItemRequest{Particulars: "Pearl (Moti)", UnitPrice: 3200})

	after, err := svc.RemoveItem(state.Items[0].ID)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(after.Items) != 0 || after.Totals.Subtotal != 0 {
		t.Fatalf("expected empty list and zero totals, got %+v", after)
	}

	if _, err := svc.RemoveItem("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddFromTemplateUsesCatalogValues(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	state, err := svc.AddFromTemplate(ctx, domain.AddFromTemplateRequest{Particulars: "blue sapphire (neelam)"})
	if err != nil {
		t.Fatalf("add from template failed: %v", err)
	}
	item := state.Items[0]
	if item.Particulars != "Blue Sapphire (Neelam)" || item.Quantity != 1 || item.Total != 12500 {
		t.Fatalf("unexpected templated item %+v", item)
	}

	if _, err := svc.AddFromTemplate(ctx, domain.AddFromTemplateRequest{Particulars: "Kryptonite"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown template, got %v", err)
	}
}

func TestSmartAddAppliesDraftsWithDefaults(t *testing.T) {
	parser := &scriptedParser{drafts: []domain.ItemDraft{
		{Particulars: "Blue Sapphire (Neelam)", Quantity: 2, Weight: 5, WeightUnit: "ct", UnitPrice: 12500},
		{UnitPrice: 500},
	}}
	svc := newTestService(parser)

	resp, err := svc.SmartAdd(context.Background(), "2x 5ct neelam at 12500, plus something for 500")
	if err != nil {
		t.Fatalf("smart add failed: %v", err)
	}
	if len(resp.Added) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Added))
	}
	if resp.Added[0].Total != 25000 {
		t.Fatalf("expected derived total 25000, got %v", resp.Added[0].Total)
	}
	if resp.Added[1].Particulars != "New Gem" || resp.Added[1].Quantity != 1 || resp.Added[1].WeightUnit != "ct" {
		t.Fatalf("expected draft defaults, got %+v", resp.Added[1])
	}
}

func TestSmartAddDegradesToNoItems(t *testing.T) {
	svc := newTestService(aiparse.NoopParser{})

	resp, err := svc.SmartAdd(context.Background(), "5ct neelam")
	if err != nil {
		t.Fatalf("smart add must not surface collaborator failure: %v", err)
	}
	if len(resp.Added) != 0 {
		t.Fatalf("expected no items added, got %+v", resp.Added)
	}
}

func TestSmartAddRejectsConcurrentParse(t *testing.T) {
	parser := &scriptedParser{
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	svc := newTestService(parser)

	done := make(chan error, 1)
	go func() {
		_, err := svc.SmartAdd(context.Background(), "first")
		done <- err
	}()

	<-parser.started
	if _, err := svc.SmartAdd(context.Background(), "second"); !errors.Is(err, ErrParseBusy) {
		t.Fatalf("expected busy error for concurrent parse, got %v", err)
	}

	close(parser.release)
	if err := <-done; err != nil {
		t.Fatalf("first smart add failed: %v", err)
	}
}

func TestSmartAddClearsBusyFlagAfterParserPanic(t *testing.T) {
	svc := newTestService(&explodingParser{})

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected parser panic to propagate")
			}
		}()
		_, _ = svc.SmartAdd(context.Background(), "first")
	}()

	if _, err := svc.SmartAdd(context.Background(), "second"); err != nil {
		t.Fatalf("busy flag must be cleared after a panic, got %v", err)
	}
}

func TestLoadFromHistoryDoesNotMutatePersistedState(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	svc.SetCustomer(domain.CustomerDetails{Name: "Rajesh Kumar", Phone: "+91 98765 43210"})
	if _, err := svc.Advance(); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	svc.AddItem(domain.AddItemRequest{Particulars: "Ruby (Manik)", Quantity: 1, UnitPrice: 9500})
	resp, err := svc.Finalize(ctx)
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	productsBefore, _ := svc.SearchProducts(ctx, "ruby")
	historyBefore, _ := svc.History(ctx, 0)

	svc.Reset()
	state, err := svc.LoadFromHistory(ctx, resp.Invoice.ID)
	if err != nil {
		t.Fatalf("load from history failed: %v", err)
	}
	if state.Step != domain.StepPreview {
		t.Fatalf("expected preview step, got %v", state.Step)
	}
	if state.Customer.Name != "Rajesh Kumar" || len(state.Items) != 1 {
		t.Fatalf("loaded session mismatch: %+v", state)
	}

	historyAfter, _ := svc.History(ctx, 0)
	productsAfter, _ := svc.SearchProducts(ctx, "ruby")
	if len(historyAfter) != len(historyBefore) || len(productsAfter) != len(productsBefore) {
		t.Fatalf("loading history must not mutate persisted state")
	}

	if _, err := svc.LoadFromHistory(ctx, "AG-000000-0000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown ref, got %v", err)
	}
}

func TestLoadedInvoiceIsValueSnapshot(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	svc.SetCustomer(domain.CustomerDetails{Name: "Priya Sharma", Phone: "+91 90000 11111"})
	if _, err := svc.Advance(); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	svc.AddItem(domain.AddItemRequest{Particulars: "Pearl (Moti)", Quantity: 1, UnitPrice: 3200})
	resp, err := svc.Finalize(ctx)
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	state, err := svc.LoadFromHistory(ctx, resp.Invoice.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	// Editing the working copy must not reach the stored invoice.
	if _, err := svc.Back(); err != nil {
		t.Fatalf("back failed: %v", err)
	}
	if _, err := svc.UpdateItem(state.Items[0].ID, domain.ItemPatch{UnitPrice: floatPtr(1)}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	stored, err := svc.InvoiceByRef(ctx, resp.Invoice.ID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if stored.Items[0].UnitPrice != 3200 || stored.GrandTotal != resp.Invoice.GrandTotal {
		t.Fatalf("stored invoice mutated: %+v", stored)
	}
}

func TestLoadDemoJumpsToPreviewWithoutPersisting(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	state := svc.LoadDemo()
	if state.Step != domain.StepPreview {
		t.Fatalf("expected preview step, got %v", state.Step)
	}
	if len(state.Items) != 2 || state.Totals.Subtotal != 19100 {
		t.Fatalf("unexpected demo session %+v", state)
	}
	if state.InvoiceRef == "" {
		t.Fatalf("expected demo invoice ref")
	}

	history, err := svc.History(ctx, 0)
	if err != nil || len(history) != 0 {
		t.Fatalf("demo load must not touch history (err=%v, got %d)", err, len(history))
	}
}

func TestHistoryLimit(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.Reset()
		svc.SetCustomer(domain.CustomerDetails{Name: "C", Phone: "1"})
		if _, err := svc.Advance(); err != nil {
			t.Fatalf("advance failed: %v", err)
		}
		svc.AddItem(domain.AddItemRequest{Particulars: "Pearl (Moti)", UnitPrice: 100})
		if _, err := svc.Finalize(ctx); err != nil {
			t.Fatalf("finalize failed: %v", err)
		}
	}

	limited, err := svc.History(ctx, 3)
	if err != nil || len(limited) != 3 {
		t.Fatalf("expected 3 invoices (err=%v, got %d)", err, len(limited))
	}
}

func TestBuildShareTextAndURL(t *testing.T) {
	inv := domain.Invoice{
		ID:         "AG-260901-0042",
		Customer:   domain.CustomerDetails{Name: "Rajesh Kumar", Phone: "+91 98765 43210"},
		GrandTotal: 19673,
	}

	text := BuildShareText(inv)
	for _, want := range []string{"AG-260901-0042", "Rajesh Kumar", "₹19,673.00"} {
		if !strings.Contains(text, want) {
			t.Fatalf("share text missing %q: %q", want, text)
		}
	}

	shareURL := BuildShareURL(inv)
	if !strings.HasPrefix(shareURL, "https://wa.me/919876543210?text=") {
		t.Fatalf("unexpected share url %q", shareURL)
	}
}
