package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/silkthread/api/internal/platform/httpx"
	"github.com/silkthread/api/internal/repositories"
	"github.com/silkthread/api/internal/services"
)

const defaultUnconvertedLimit = 50

// AdminHandlers exposes operator actions. Unlike webhook traffic, failures
// here propagate to the caller so the dashboard can show them.
type AdminHandlers struct {
	converter services.ConversionService
	catalog   services.CatalogSyncService
	webhooks  services.SupplierWebhookService
}

// AdminHandlersDeps bundles constructor inputs for the admin handlers.
type AdminHandlersDeps struct {
	Converter services.ConversionService
	Catalog   services.CatalogSyncService
	Webhooks  services.SupplierWebhookService
}

// NewAdminHandlers constructs the admin endpoints.
func NewAdminHandlers(deps AdminHandlersDeps) (*AdminHandlers, error) {
	if deps.Converter == nil {
		return nil, errors.New("admin handlers: conversion service is required")
	}
	return &AdminHandlers{
		converter: deps.Converter,
		catalog:   deps.Catalog,
		webhooks:  deps.Webhooks,
	}, nil
}

// Routes registers the admin endpoints on the /admin group.
func (h *AdminHandlers) Routes() RouteRegistrar {
	return func(r chi.Router) {
		r.Post("/orders/{orderId}/retry-conversion", h.RetryConversion)
		r.Get("/orders/{orderId}/supplier", h.SupplierOrder)
		r.Get("/orders/unconverted", h.ListUnconverted)
		r.Post("/products/sync", h.SyncProducts)
		r.Post("/supplier/webhooks", h.RegisterSupplierWebhooks)
	}
}

// RetryConversion re-enters the converter for one order. The converter's
// claim guard makes repeated retries safe.
func (h *AdminHandlers) RetryConversion(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_order_id", "order id is required", http.StatusBadRequest))
		return
	}

	if err := h.converter.Convert(r.Context(), orderID); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("conversion_failed", err.Error(), http.StatusBadGateway))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orderId": orderID, "converted": true})
}

// SupplierOrder proxies the supplier-side view of a converted order so the
// dashboard can show fulfilment state the local record has not caught up with.
func (h *AdminHandlers) SupplierOrder(w http.ResponseWriter, r *http.Request) {
	if h.webhooks == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("not_configured", "supplier webhook service is not configured", http.StatusNotImplemented))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_order_id", "order id is required", http.StatusBadRequest))
		return
	}

	detail, err := h.webhooks.SupplierOrder(r.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotConverted):
			httpx.WriteError(r.Context(), w, httpx.NewError("not_converted", "order has no supplier order yet", http.StatusConflict))
		case isNotFoundError(err):
			httpx.WriteError(r.Context(), w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		default:
			httpx.WriteError(r.Context(), w, httpx.NewError("supplier_lookup_failed", err.Error(), http.StatusBadGateway))
		}
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func isNotFoundError(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// ListUnconverted returns paid orders still awaiting a supplier purchase order.
func (h *AdminHandlers) ListUnconverted(w http.ResponseWriter, r *http.Request) {
	limit := defaultUnconvertedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_limit", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	orders, err := h.converter.ListUnconverted(r.Context(), limit)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("list_failed", err.Error(), http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders, "count": len(orders)})
}

// SyncProducts runs a supplier catalog import for a keyword.
func (h *AdminHandlers) SyncProducts(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("not_configured", "catalog sync is not configured", http.StatusNotImplemented))
		return
	}

	var req struct {
		Keyword string `json:"keyword"`
		Pages   int    `json:"pages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_body", "body must be JSON with keyword and pages", http.StatusBadRequest))
		return
	}

	report, err := h.catalog.SyncProducts(r.Context(), req.Keyword, req.Pages)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("sync_failed", err.Error(), http.StatusBadGateway).WithDetails(map[string]any{
			"report": report,
		}))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RegisterSupplierWebhooks points the supplier callbacks at this deployment.
func (h *AdminHandlers) RegisterSupplierWebhooks(w http.ResponseWriter, r *http.Request) {
	if h.webhooks == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("not_configured", "supplier webhook service is not configured", http.StatusNotImplemented))
		return
	}

	var req struct {
		StatusURL   string `json:"statusUrl"`
		TrackingURL string `json:"trackingUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_body", "body must be JSON with statusUrl and trackingUrl", http.StatusBadRequest))
		return
	}
	if req.StatusURL == "" && req.TrackingURL == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_body", "at least one callback URL is required", http.StatusBadRequest))
		return
	}

	if err := h.webhooks.RegisterWebhooks(r.Context(), req.StatusURL, req.TrackingURL); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("registration_failed", err.Error(), http.StatusBadGateway))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"registered": true})
}
