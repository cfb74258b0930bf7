package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/silkthread/api/internal/platform/httpx"
	"github.com/silkthread/api/internal/services"
)

// maxWebhookBody bounds inbound webhook payloads.
const maxWebhookBody = 1 << 20

// stripeSignatureHeader carries the payment provider's request signature.
const stripeSignatureHeader = "Stripe-Signature"

// supplierTokenHeader carries the shared secret the supplier echoes back on
// its callbacks. The registration URL may carry it as a `token` query
// parameter instead.
const supplierTokenHeader = "CJ-Webhook-Token"

// WebhookHandlers terminates inbound payment and supplier callbacks.
//
// Response contracts differ by sender: the payment provider gets a 400 on
// signature failure and {received:true} otherwise; the supplier always gets
// its success envelope with HTTP 200, including on internal errors, so it
// never enters a retry storm.
type WebhookHandlers struct {
	payments       services.PaymentWebhookService
	supplier       services.SupplierWebhookService
	supplierSecret string
}

// WebhookHandlersDeps bundles constructor inputs for the webhook handlers.
type WebhookHandlersDeps struct {
	Payments services.PaymentWebhookService
	Supplier services.SupplierWebhookService
	// SupplierWebhookSecret, when set, must be echoed back on supplier
	// callbacks. Unauthenticated callbacks are acknowledged but not applied.
	SupplierWebhookSecret string
}

// NewWebhookHandlers constructs the webhook endpoints.
func NewWebhookHandlers(deps WebhookHandlersDeps) (*WebhookHandlers, error) {
	if deps.Payments == nil {
		return nil, errors.New("webhook handlers: payment webhook service is required")
	}
	if deps.Supplier == nil {
		return nil, errors.New("webhook handlers: supplier webhook service is required")
	}
	return &WebhookHandlers{
		payments:       deps.Payments,
		supplier:       deps.Supplier,
		supplierSecret: deps.SupplierWebhookSecret,
	}, nil
}

// Routes registers the webhook endpoints on the /webhooks group.
func (h *WebhookHandlers) Routes() RouteRegistrar {
	return func(r chi.Router) {
		r.Post("/stripe", h.Stripe)
		r.Post("/supplier/status", h.SupplierStatus)
		r.Post("/supplier/tracking", h.SupplierTracking)
	}
}

// Stripe handles payment provider events.
func (h *WebhookHandlers) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("webhook_read_failed", "could not read request body", http.StatusBadRequest))
		return
	}

	if err := h.payments.HandleEvent(r.Context(), payload, r.Header.Get(stripeSignatureHeader)); err != nil {
		// HandleEvent only errors on signature verification; everything else
		// is contained inside the service.
		httpx.WriteError(r.Context(), w, httpx.NewError("webhook_signature_invalid", "signature verification failed", http.StatusBadRequest))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

// SupplierStatus handles the supplier's order-status callback.
func (h *WebhookHandlers) SupplierStatus(w http.ResponseWriter, r *http.Request) {
	if !h.authenticateSupplier(w, r) {
		return
	}
	var payload services.StatusWebhookPayload
	if !decodeSupplierPayload(w, r, &payload) {
		return
	}
	if err := h.supplier.ApplyStatus(r.Context(), payload); err != nil {
		writeSupplierAck(w, err.Error())
		return
	}
	writeSupplierAck(w, "")
}

// SupplierTracking handles the supplier's logistics callback.
func (h *WebhookHandlers) SupplierTracking(w http.ResponseWriter, r *http.Request) {
	if !h.authenticateSupplier(w, r) {
		return
	}
	var payload services.TrackingWebhookPayload
	if !decodeSupplierPayload(w, r, &payload) {
		return
	}
	if err := h.supplier.ApplyTracking(r.Context(), payload); err != nil {
		writeSupplierAck(w, err.Error())
		return
	}
	writeSupplierAck(w, "")
}

// authenticateSupplier checks the shared callback secret. A mismatch is
// acknowledged with the success envelope so the sender does not retry, but
// the payload is discarded.
func (h *WebhookHandlers) authenticateSupplier(w http.ResponseWriter, r *http.Request) bool {
	if h.supplierSecret == "" {
		return true
	}
	token := r.Header.Get(supplierTokenHeader)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.supplierSecret)) != 1 {
		writeSupplierAck(w, "unauthenticated callback")
		return false
	}
	return true
}

// decodeSupplierPayload parses the body; a malformed payload is still
// acknowledged with the success envelope per the supplier's contract.
func decodeSupplierPayload(w http.ResponseWriter, r *http.Request, out any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil || len(body) == 0 {
		writeSupplierAck(w, "empty payload")
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		writeSupplierAck(w, "malformed payload")
		return false
	}
	return true
}

// writeSupplierAck emits the supplier's expected envelope. Internal errors are
// reported in-band; the HTTP status stays 200.
func writeSupplierAck(w http.ResponseWriter, detail string) {
	payload := map[string]any{
		"code":    200,
		"message": "success",
	}
	if detail != "" {
		payload["detail"] = detail
	}
	writeJSON(w, http.StatusOK, payload)
}
