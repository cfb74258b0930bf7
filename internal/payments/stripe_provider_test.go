package payments

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

type stubSessionAPI struct {
	newFn func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func (s *stubSessionAPI) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return s.newFn(params)
}

func TestCreateCheckoutSessionBuildsLineItems(t *testing.T) {
	var captured *stripe.CheckoutSessionParams
	provider, err := NewStripeProvider(StripeProviderConfig{
		Sessions: &stubSessionAPI{
			newFn: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
				captured = params
				return &stripe.CheckoutSession{
					ID:        "cs_test_123",
					URL:       "https://checkout.stripe.com/c/pay/cs_test_123",
					ExpiresAt: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC).Unix(),
				}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Currency:       "usd",
		CustomerEmail:  "buyer@example.com",
		SuccessURL:     "https://shop.example.com/success",
		CancelURL:      "https://shop.example.com/cancel",
		IdempotencyKey: "order-abc",
		Metadata:       map[string]string{"orderId": "abc"},
		Items: []CheckoutLineItem{
			{Name: "Silk Scarf - Red", SKU: "SCARF-RED", Amount: 4500, Quantity: 2},
			{Name: "Shipping", Amount: 1500, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}

	if session.ID != "cs_test_123" {
		t.Fatalf("session id = %q, want cs_test_123", session.ID)
	}
	if session.RedirectURL == "" {
		t.Fatal("expected redirect URL")
	}
	if captured == nil {
		t.Fatal("expected session params to reach the API")
	}
	if got := len(captured.LineItems); got != 2 {
		t.Fatalf("line items = %d, want 2", got)
	}
	if qty := *captured.LineItems[0].Quantity; qty != 2 {
		t.Fatalf("first line quantity = %d, want 2", qty)
	}
	if captured.Metadata["orderId"] != "abc" {
		t.Fatalf("metadata orderId = %q, want abc", captured.Metadata["orderId"])
	}
	if captured.CustomerEmail == nil || *captured.CustomerEmail != "buyer@example.com" {
		t.Fatal("expected customer email on params")
	}
}

func TestCreateCheckoutSessionFallbackLineItem(t *testing.T) {
	var captured *stripe.CheckoutSessionParams
	provider, err := NewStripeProvider(StripeProviderConfig{
		Sessions: &stubSessionAPI{
			newFn: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
				captured = params
				return &stripe.CheckoutSession{ID: "cs_test_456"}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Amount:     6000,
		Currency:   "usd",
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cancel",
	}); err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}

	if got := len(captured.LineItems); got != 1 {
		t.Fatalf("line items = %d, want 1", got)
	}
	if amount := *captured.LineItems[0].PriceData.UnitAmount; amount != 6000 {
		t.Fatalf("fallback amount = %d, want 6000", amount)
	}
}

func TestCreateCheckoutSessionWrapsAPIError(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		Sessions: &stubSessionAPI{
			newFn: func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
				return nil, errors.New("card network down")
			},
		},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Amount:     100,
		Currency:   "usd",
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cancel",
	}); err == nil {
		t.Fatal("expected error from session API")
	}
}

func TestVerifyWebhookAcceptsSignedPayload(t *testing.T) {
	const secret = "whsec_test"
	provider, err := NewStripeProvider(StripeProviderConfig{
		WebhookSecret: secret,
		Sessions:      &stubSessionAPI{newFn: nil},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_test_123"}}}`)
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, secret)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))

	event, err := provider.VerifyWebhook(payload, header)
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if event.ID != "evt_1" {
		t.Fatalf("event id = %q, want evt_1", event.ID)
	}
	if event.Type != "checkout.session.completed" {
		t.Fatalf("event type = %q", event.Type)
	}
}

func TestVerifyWebhookAcceptsOtherAPIVersions(t *testing.T) {
	const secret = "whsec_test"
	provider, err := NewStripeProvider(StripeProviderConfig{
		WebhookSecret: secret,
		Sessions:      &stubSessionAPI{newFn: nil},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	// An endpoint pinned to an older API version delivers the same signature
	// scheme; verification must not depend on the SDK's pinned version.
	payload := []byte(`{"id":"evt_2","api_version":"2020-08-27","type":"checkout.session.completed","data":{"object":{"id":"cs_test_456"}}}`)
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, secret)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))

	event, err := provider.VerifyWebhook(payload, header)
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if event.ID != "evt_2" {
		t.Fatalf("event id = %q, want evt_2", event.ID)
	}
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		WebhookSecret: "whsec_test",
		Sessions:      &stubSessionAPI{newFn: nil},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	if _, err := provider.VerifyWebhook([]byte(`{"id":"evt_1"}`), "t=1,v1=deadbeef"); err == nil {
		t.Fatal("expected signature rejection")
	}
}

func TestVerifyWebhookRequiresSecret(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		Sessions: &stubSessionAPI{newFn: nil},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	if _, err := provider.VerifyWebhook([]byte(`{}`), "t=1,v1=abc"); err == nil {
		t.Fatal("expected error when secret is missing")
	}
}
