package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/silkthread/api/internal/platform/httpx"
	"github.com/silkthread/api/internal/services"
)

// PublicHandlers serves unauthenticated storefront endpoints.
type PublicHandlers struct {
	catalog services.CatalogSyncService
}

// NewPublicHandlers constructs the public endpoints.
func NewPublicHandlers(catalog services.CatalogSyncService) (*PublicHandlers, error) {
	if catalog == nil {
		return nil, errors.New("public handlers: catalog service is required")
	}
	return &PublicHandlers{catalog: catalog}, nil
}

// Routes registers the public endpoints on the /public group.
func (h *PublicHandlers) Routes() RouteRegistrar {
	return func(r chi.Router) {
		r.Get("/freight-estimate", h.FreightEstimate)
	}
}

// FreightEstimate quotes shipping for variants passed as repeated vid query
// parameters with an optional qty suffix ("vid:qty").
func (h *PublicHandlers) FreightEstimate(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	items, err := parseFreightItems(query["vid"])
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_items", err.Error(), http.StatusBadRequest))
		return
	}

	estimate, err := h.catalog.EstimateFreight(r.Context(), services.FreightEstimateRequest{
		DestCountryCode: strings.TrimSpace(query.Get("country")),
		PostalCode:      strings.TrimSpace(query.Get("zip")),
		Items:           items,
	})
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("estimate_failed", err.Error(), http.StatusBadGateway))
		return
	}

	writeJSON(w, http.StatusOK, estimate)
}

func parseFreightItems(raw []string) ([]services.FreightEstimateItem, error) {
	if len(raw) == 0 {
		return nil, errors.New("at least one vid parameter is required")
	}
	items := make([]services.FreightEstimateItem, 0, len(raw))
	for _, value := range raw {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		quantity := 1
		if idx := strings.IndexByte(value, ':'); idx >= 0 {
			parsed, err := strconv.Atoi(value[idx+1:])
			if err != nil || parsed <= 0 {
				return nil, errors.New("vid quantity suffix must be a positive integer")
			}
			quantity = parsed
			value = value[:idx]
		}
		items = append(items, services.FreightEstimateItem{VariantID: value, Quantity: quantity})
	}
	if len(items) == 0 {
		return nil, errors.New("at least one vid parameter is required")
	}
	return items, nil
}
