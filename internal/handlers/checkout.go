package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/silkthread/api/internal/platform/httpx"
	"github.com/silkthread/api/internal/services"
)

// CheckoutHandlers opens payment checkout sessions for storefront orders.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs the checkout endpoints.
func NewCheckoutHandlers(checkout services.CheckoutService) (*CheckoutHandlers, error) {
	if checkout == nil {
		return nil, errors.New("checkout handlers: checkout service is required")
	}
	return &CheckoutHandlers{checkout: checkout}, nil
}

// Routes registers the checkout endpoints on the /checkout group.
func (h *CheckoutHandlers) Routes() RouteRegistrar {
	return func(r chi.Router) {
		r.Post("/session", h.CreateSession)
	}
}

// CreateSession opens a checkout session for the order in the request body.
func (h *CheckoutHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"orderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.OrderID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_body", "body must be JSON with orderId", http.StatusBadRequest))
		return
	}

	session, err := h.checkout.CreateSession(r.Context(), req.OrderID)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("checkout_failed", err.Error(), http.StatusBadGateway))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":   session.ID,
		"redirectUrl": session.RedirectURL,
		"expiresAt":   session.ExpiresAt,
	})
}
