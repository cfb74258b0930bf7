package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/silkthread/api/internal/domain"
	"github.com/silkthread/api/internal/payments"
	"github.com/silkthread/api/internal/repositories"
)

type checkoutService struct {
	provider   payments.CheckoutProvider
	orders     repositories.OrderRepository
	successURL string
	cancelURL  string
	currency   string
	clock      func() time.Time
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// CheckoutServiceDeps bundles constructor inputs for the checkout service.
type CheckoutServiceDeps struct {
	Provider   payments.CheckoutProvider
	Orders     repositories.OrderRepository
	SuccessURL string
	CancelURL  string
	Currency   string
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService creates the payment checkout session orchestrator.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Provider == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.SuccessURL == "" || deps.CancelURL == "" {
		return nil, errors.New("checkout service: success and cancel URLs are required")
	}

	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "usd"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		provider:   deps.Provider,
		orders:     deps.Orders,
		successURL: deps.SuccessURL,
		cancelURL:  deps.CancelURL,
		currency:   currency,
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// CreateSession opens a checkout session for the order and stores the session
// id on it. The payment webhook later resolves the order by that id, so the
// write must succeed before the session is handed to the storefront.
func (s *checkoutService) CreateSession(ctx context.Context, orderID string) (payments.CheckoutSession, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return payments.CheckoutSession{}, errors.New("checkout: order id is required")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return payments.CheckoutSession{}, fmt.Errorf("checkout: load order %s: %w", orderID, err)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return payments.CheckoutSession{}, fmt.Errorf("checkout: order %s is already paid", orderID)
	}
	if len(order.Items) == 0 {
		return payments.CheckoutSession{}, fmt.Errorf("checkout: order %s has no items", orderID)
	}

	currency := strings.ToLower(strings.TrimSpace(order.Currency))
	if currency == "" {
		currency = s.currency
	}

	items := make([]payments.CheckoutLineItem, 0, len(order.Items)+1)
	for _, item := range order.Items {
		items = append(items, payments.CheckoutLineItem{
			Name:     item.Name,
			SKU:      item.ProductID,
			Amount:   item.UnitPrice,
			Currency: currency,
			Quantity: int64(item.Quantity),
		})
	}
	if order.Amounts.Shipping > 0 {
		items = append(items, payments.CheckoutLineItem{
			Name:     "Shipping",
			Amount:   order.Amounts.Shipping,
			Currency: currency,
			Quantity: 1,
		})
	}

	session, err := s.provider.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		Amount:         order.Amounts.Total,
		Currency:       currency,
		CustomerEmail:  order.Email,
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		Metadata:       map[string]string{"orderId": order.ID},
		IdempotencyKey: "checkout-" + order.ID,
		Items:          items,
	})
	if err != nil {
		return payments.CheckoutSession{}, fmt.Errorf("checkout: create session for order %s: %w", orderID, err)
	}

	sessionID := session.ID
	if err := s.orders.Update(ctx, order.ID, repositories.OrderUpdate{StripeSessionID: &sessionID}); err != nil {
		return payments.CheckoutSession{}, fmt.Errorf("checkout: store session for order %s: %w", orderID, err)
	}

	s.logger(ctx, "checkout.session.created", map[string]any{
		"orderId":   order.ID,
		"sessionId": session.ID,
	})
	return session, nil
}
