package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"astrogems/backend/internal/domain"
	"astrogems/backend/internal/kv"
)

// KV keys, kept byte-compatible with the original storage layout.
const (
	customerRegistryKey = "astro_customer_registry"
	productRegistryKey  = "astro_product_registry"
	invoiceHistoryKey   = "astro_invoice_history"
	themeKey            = "astro_theme"
	iosTipSeenKey       = "has_seen_ios_tip_astro"
)

// Store persists the registries and history as whole JSON blobs in a
// key-value store. Every mutation is load-modify-save; there is exactly one
// writer, so no optimistic concurrency is needed.
type Store struct {
	kv     kv.Store
	logger *zap.Logger
}

func NewStore(kvStore kv.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kvStore, logger: logger}
}

// Customers loads the customer registry. Absent or malformed blobs load as
// an empty registry; malformed JSON is logged and discarded rather than
// poisoning the session.
func (s *Store) Customers(ctx context.Context) ([]domain.CustomerDetails, error) {
	var reg []domain.CustomerDetails
	found, err := s.loadJSON(ctx, customerRegistryKey, &reg)
	if err != nil {
		return nil, err
	}
	if !found || reg == nil {
		reg = []domain.CustomerDetails{}
	}
	return reg, nil
}

func (s *Store) SaveCustomers(ctx context.Context, reg []domain.CustomerDetails) error {
	return s.saveJSON(ctx, customerRegistryKey, reg)
}

// Products loads the product registry, seeding and persisting the default
// gem catalog when nothing has been stored yet.
func (s *Store) Products(ctx context.Context) ([]domain.ItemTemplate, error) {
	var reg []domain.ItemTemplate
	found, err := s.loadJSON(ctx, productRegistryKey, &reg)
	if err != nil {
		return nil, err
	}
	if !found || reg == nil {
		reg = domain.DefaultCatalog()
		if err := s.saveJSON(ctx, productRegistryKey, reg); err != nil {
			return nil, err
		}
		s.logger.Info("seeded default gem catalog", zap.Int("entries", len(reg)))
	}
	return reg, nil
}

func (s *Store) SaveProducts(ctx context.Context, reg []domain.ItemTemplate) error {
	return s.saveJSON(ctx, productRegistryKey, reg)
}

func (s *Store) History(ctx context.Context) ([]domain.Invoice, error) {
	var history []domain.Invoice
	found, err := s.loadJSON(ctx, invoiceHistoryKey, &history)
	if err != nil {
		return nil, err
	}
	if !found || history == nil {
		history = []domain.Invoice{}
	}
	return history, nil
}

func (s *Store) SaveHistory(ctx context.Context, history []domain.Invoice) error {
	return s.saveJSON(ctx, invoiceHistoryKey, history)
}

// Theme returns the persisted theme preference, defaulting to "system".
func (s *Store) Theme(ctx context.Context) (string, error) {
	raw, found, err := s.kv.Get(ctx, themeKey)
	if err != nil {
		return "", err
	}
	if !found {
		return domain.ThemeSystem, nil
	}
	switch raw {
	case domain.ThemeLight, domain.ThemeDark, domain.ThemeSystem:
		return raw, nil
	default:
		s.logger.Warn("unknown persisted theme, using system", zap.String("theme", raw))
		return domain.ThemeSystem, nil
	}
}

func (s *Store) SaveTheme(ctx context.Context, theme string) error {
	switch theme {
	case domain.ThemeLight, domain.ThemeDark, domain.ThemeSystem:
		return s.kv.Set(ctx, themeKey, theme)
	default:
		return fmt.Errorf("invalid theme %q", theme)
	}
}

func (s *Store) IosTipSeen(ctx context.Context) (bool, error) {
	raw, found, err := s.kv.Get(ctx, iosTipSeenKey)
	if err != nil {
		return false, err
	}
	return found && raw == "true", nil
}

func (s *Store) MarkIosTipSeen(ctx context.Context) error {
	return s.kv.Set(ctx, iosTipSeenKey, "true")
}

// loadJSON reports whether a usable blob was found. A blob that fails to
// decode counts as absent: the fail-safe is an empty registry, not a fatal
// parse error.
func (s *Store) loadJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		s.logger.Warn("discarding malformed persisted blob",
			zap.String("key", key),
			zap.Error(err),
		)
		return false, nil
	}
	return true, nil
}

func (s *Store) saveJSON(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, key, string(payload))
}
