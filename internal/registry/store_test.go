package registry

import (
	"context"
	"encoding/json"
	"testing"

	"astrogems/backend/internal/domain"
	"astrogems/backend/internal/kv"
)

func TestProductsSeedsDefaultCatalogWhenAbsent(t *testing.T) {
	store := NewStore(kv.NewMemory(), nil)
	ctx := context.Background()

	products, err := store.Products(ctx)
	if err != nil {
		t.Fatalf("load products failed: %v", err)
	}
	if len(products) != 8 {
		t.Fatalf("expected 8 seeded gems, got %d", len(products))
	}
	if products[0].Particulars != "Blue Sapphire (Neelam)" {
		t.Fatalf("unexpected first seed entry %q", products[0].Particulars)
	}

	// The seed must have been persisted, not just returned.
	raw, found, err := kvGet(t, store, "astro_product_registry")
	if err != nil || !found || raw == "" {
		t.Fatalf("expected seeded catalog to be persisted (found=%t err=%v)", found, err)
	}
}

func TestCustomersAbsentLoadsEmpty(t *testing.T) {
	store := NewStore(kv.NewMemory(), nil)

	customers, err := store.Customers(context.Background())
	if err != nil {
		t.Fatalf("load customers failed: %v", err)
	}
	if len(customers) != 0 {
		t.Fatalf("expected empty registry, got %+v", customers)
	}
}

func TestMalformedBlobLoadsAsEmpty(t *testing.T) {
	mem := kv.NewMemory()
	ctx := context.Background()
	if err := mem.Set(ctx, "astro_customer_registry", "{not json"); err != nil {
		t.Fatalf("seed malformed blob: %v", err)
	}
	if err := mem.Set(ctx, "astro_invoice_history", "42"); err != nil {
		t.Fatalf("seed malformed history: %v", err)
	}

	store := NewStore(mem, nil)

	customers, err := store.Customers(ctx)
	if err != nil {
		t.Fatalf("malformed customer blob must not error: %v", err)
	}
	if len(customers) != 0 {
		t.Fatalf("expected fail-safe empty registry, got %+v", customers)
	}

	history, err := store.History(ctx)
	if err != nil {
		t.Fatalf("malformed history blob must not error: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected fail-safe empty history, got %+v", history)
	}
}

func TestMalformedProductBlobReseedsDefaults(t *testing.T) {
	mem := kv.NewMemory()
	ctx := context.Background()
	if err := mem.Set(ctx, "astro_product_registry", "[{broken"); err != nil {
		t.Fatalf("seed malformed products: %v", err)
	}

	store := NewStore(mem, nil)

	products, err := store.Products(ctx)
	if err != nil {
		t.Fatalf("malformed product blob must not error: %v", err)
	}
	if len(products) != 8 || products[0].Particulars != "Blue Sapphire (Neelam)" {
		t.Fatalf("expected reseeded default catalog, got %+v", products)
	}

	// The broken blob must have been replaced with the seeded catalog.
	raw, found, err := mem.Get(ctx, "astro_product_registry")
	if err != nil || !found {
		t.Fatalf("expected persisted catalog (found=%t err=%v)", found, err)
	}
	var persisted []domain.ItemTemplate
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		t.Fatalf("persisted catalog must be valid JSON: %v", err)
	}
	if len(persisted) != 8 {
		t.Fatalf("expected 8 persisted defaults, got %d", len(persisted))
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	store := NewStore(kv.NewMemory(), nil)
	ctx := context.Background()

	reg := UpsertCustomer(nil, domain.CustomerDetails{Name: "Rajesh Kumar", Phone: "+91 98765 43210"})
	if err := store.SaveCustomers(ctx, reg); err != nil {
		t.Fatalf("save customers: %v", err)
	}

	reloaded, err := store.Customers(ctx)
	if err != nil {
		t.Fatalf("reload customers: %v", err)
	}
	if len(reloaded) != 1 || reloaded[0].Phone != "+91 98765 43210" {
		t.Fatalf("round trip mismatch: %+v", reloaded)
	}
}

func TestThemeDefaultsAndValidation(t *testing.T) {
	store := NewStore(kv.NewMemory(), nil)
	ctx := context.Background()

	theme, err := store.Theme(ctx)
	if err != nil {
		t.Fatalf("load theme: %v", err)
	}
	if theme != domain.ThemeSystem {
		t.Fatalf("expected system default, got %q", theme)
	}

	if err := store.SaveTheme(ctx, "neon"); err == nil {
		t.Fatalf("expected invalid theme to be rejected")
	}

	if err := store.SaveTheme(ctx, domain.ThemeDark); err != nil {
		t.Fatalf("save theme: %v", err)
	}
	theme, err = store.Theme(ctx)
	if err != nil {
		t.Fatalf("reload theme: %v", err)
	}
	if theme != domain.ThemeDark {
		t.Fatalf("expected dark, got %q", theme)
	}
}

func TestIosTipFlagRoundTrip(t *testing.T) {
	store := NewStore(kv.NewMemory(), nil)
	ctx := context.Background()

	seen, err := store.IosTipSeen(ctx)
	if err != nil || seen {
		t.Fatalf("expected unseen tip initially (seen=%t err=%v)", seen, err)
	}

	if err := store.MarkIosTipSeen(ctx); err != nil {
		t.Fatalf("mark tip seen: %v", err)
	}
	seen, err = store.IosTipSeen(ctx)
	if err != nil || !seen {
		t.Fatalf("expected tip marked seen (seen=%t err=%v)", seen, err)
	}
}

func kvGet(t *testing.T, store *Store, key string) (string, bool, error) {
	t.Helper()
	return store.kv.Get(context.Background(), key)
}
