// Package httpapi exposes the billing session and registries over a JSON
// HTTP surface.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"astrogems/backend/internal/domain"
	"astrogems/backend/internal/kv"
	"astrogems/backend/internal/metrics"
	"astrogems/backend/internal/service"
)

type API struct {
	service       *service.Service
	allowedOrigin string
	logger        *zap.Logger
}

func New(svc *service.Service, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		allowedOrigin: allowedOrigin,
		logger:        logger,
	}
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.corsMiddleware)
	r.Use(a.requestLogger)
	r.Use(metrics.HTTPMiddleware)

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", a.handleSessionState)
			r.Post("/reset", a.handleReset)
			r.Post("/advance", a.handleAdvance)
			r.Post("/back", a.handleBack)
			r.Put("/customer", a.handleSetCustomer)
			r.Put("/tax", a.handleSetTax)
			r.Put("/signature", a.handleSetSignature)
			r.Post("/items", a.handleAddItem)
			r.Post("/items/from-template", a.handleAddFromTemplate)
			r.Post("/items/smart-add", a.handleSmartAdd)
			r.Patch("/items/{id}", a.handleUpdateItem)
			r.Delete("/items/{id}", a.handleRemoveItem)
			r.Post("/finalize", a.handleFinalize)
			r.Post("/load/{ref}", a.handleLoadFromHistory)
			r.Post("/demo", a.handleLoadDemo)
		})

		r.Get("/customers", a.handleSearchCustomers)
		r.Get("/products", a.handleSearchProducts)
		r.Get("/invoices", a.handleListInvoices)
		r.Get("/invoices/{ref}", a.handleGetInvoice)

		r.Get("/preferences/theme", a.handleGetTheme)
		r.Put("/preferences/theme", a.handleSetTheme)
		r.Post("/preferences/ios-tip-seen", a.handleIosTipSeen)
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleSessionState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.service.State())
}

func (a *API) handleReset(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.service.Reset())
}

func (a *API) handleAdvance(w http.ResponseWriter, _ *http.Request) {
	state, err := a.service.Advance()
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleBack(w http.ResponseWriter, _ *http.Request) {
	state, err := a.service.Back()
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleSetCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.SetCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, a.logger)
		return
	}
	state := a.service.SetCustomer(domain.CustomerDetails{
		Name:    strings.TrimSpace(req.Name),
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
	})
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleSetTax(w http.ResponseWriter, r *http.Request) {
	var req domain.SetTaxRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, a.logger)
		return
	}
	if req.TaxRate != nil && *req.TaxRate < 0 {
		writeError(w, http.StatusBadRequest, errors.New("tax rate must not be negative"), a.logger)
		return
	}
	writeJSON(w, http.StatusOK, a.service.SetTax(req))
}

func (a *API) handleSetSignature(w http.ResponseWriter, r *http.Request) {
	var req domain.SetSignatureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, a.service.SetSignature(req.Signature))
}

func (a *API) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req domain.AddItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, a.logger)
		return
	}
	writeJSON(w, http.StatusCreated, a.service.AddItem(req))
}

func (a *API) handleAddFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req domain.AddFromTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, a.logger)
		return
	}
	if req.TemplateID == "" && strings.TrimSpace(req.Particulars) == "" {
		writeError(w, http.StatusBadRequest, errors.New("templateId or particulars is required"), a.logger)
		return
	}
	state, err := a.service.AddFromTemplate(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (a *API) handleSmartAdd(w http.ResponseWriter, r *http.Request) {
	var req domain.SmartAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, a.logger)
		return
	}
	resp, err := a.service.SmartAdd(r.Context(), req.Text)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var patch domain.ItemPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err, a.logger)
		return
	}
	state, err := a.service.UpdateItem(chi.URLParam(r, "id"), patch)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	state, err := a.service.RemoveItem(chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleFinalize(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.Finalize(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleLoadFromHistory(w http.ResponseWriter, r *http.Request) {
	state, err := a.service.LoadFromHistory(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleLoadDemo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.service.LoadDemo())
}

func (a *API) handleSearchCustomers(w http.ResponseWriter, r *http.Request) {
	results, err := a.service.SearchCustomers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SearchCustomersResponse{Customers: results})
}

func (a *API) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	results, err := a.service.SearchProducts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SearchProductsResponse{Products: results})
}

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 0, domain.InvoiceHistoryCap)
	invoices, err := a.service.History(r.Context(), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.InvoiceListResponse{Invoices: invoices})
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := a.service.InvoiceByRef(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (a *API) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := a.service.Theme(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ThemeResponse{Theme: theme})
}

func (a *API) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	var req domain.ThemeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, a.logger)
		return
	}
	switch req.Theme {
	case domain.ThemeLight, domain.ThemeDark, domain.ThemeSystem:
	default:
		writeError(w, http.StatusBadRequest, errors.New("theme must be light, dark or system"), a.logger)
		return
	}
	if err := a.service.SetTheme(r.Context(), req.Theme); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ThemeResponse{Theme: req.Theme})
}

func (a *API) handleIosTipSeen(w http.ResponseWriter, r *http.Request) {
	if err := a.service.MarkIosTipSeen(r.Context()); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps service sentinels onto HTTP statuses. Anything
// unrecognized is treated as an internal failure.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err, a.logger)
	case errors.Is(err, service.ErrEmptyItems):
		writeError(w, http.StatusUnprocessableEntity, err, a.logger)
	case errors.Is(err, service.ErrBadTransition):
		writeError(w, http.StatusConflict, err, a.logger)
	case errors.Is(err, service.ErrParseBusy):
		writeError(w, http.StatusConflict, err, a.logger)
	case errors.Is(err, kv.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err, a.logger)
	default:
		writeError(w, http.StatusInternalServerError, err, a.logger)
	}
}

func (a *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodGet && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(startedAt)),
		)
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// 5xx responses get a generic message so internal details never reach
// clients; 4xx messages are user-facing and pass through.
func writeError(w http.ResponseWriter, status int, err error, logger *zap.Logger) {
	msg := err.Error()
	if status >= 500 {
		if logger != nil {
			logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		}
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
