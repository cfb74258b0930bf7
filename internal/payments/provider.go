package payments

import (
	"context"
	"time"
)

// CheckoutLineItem describes a single purchasable line on a checkout session.
type CheckoutLineItem struct {
	Name        string
	Description string
	SKU         string
	Amount      int64
	Currency    string
	Quantity    int64
}

// CheckoutSessionRequest captures the inputs needed to open a hosted checkout.
type CheckoutSessionRequest struct {
	Amount         int64
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Locale         string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []CheckoutLineItem
	AllowPromotion bool
}

// CheckoutSession is the provider-agnostic view of a created checkout session.
type CheckoutSession struct {
	ID           string
	Provider     string
	ClientSecret string
	RedirectURL  string
	IntentID     string
	ExpiresAt    time.Time
	Raw          map[string]any
}

// WebhookEvent is a verified payment provider event.
type WebhookEvent struct {
	ID      string
	Type    string
	Payload []byte
}

// CheckoutProvider creates hosted checkout sessions.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
}

// WebhookVerifier authenticates incoming webhook payloads before they are acted on.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) (WebhookEvent, error)
}
