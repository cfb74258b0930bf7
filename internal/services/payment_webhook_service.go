package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/silkthread/api/internal/domain"
	"github.com/silkthread/api/internal/payments"
	"github.com/silkthread/api/internal/repositories"
)

// checkoutCompletedEvent is the only payment event type acted on; everything
// else is acknowledged as a no-op.
const checkoutCompletedEvent = "checkout.session.completed"

type paymentWebhookService struct {
	verifier  payments.WebhookVerifier
	orders    repositories.OrderRepository
	converter ConversionService
	notifier  Notifier
	clock     func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// PaymentWebhookServiceDeps bundles constructor inputs for the payment webhook service.
type PaymentWebhookServiceDeps struct {
	Verifier  payments.WebhookVerifier
	Orders    repositories.OrderRepository
	Converter ConversionService
	Notifier  Notifier
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewPaymentWebhookService creates the handler-facing payment event processor.
func NewPaymentWebhookService(deps PaymentWebhookServiceDeps) (PaymentWebhookService, error) {
	if deps.Verifier == nil {
		return nil, errors.New("payment webhook service: verifier is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment webhook service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentWebhookService{
		verifier:  deps.Verifier,
		orders:    deps.Orders,
		converter: deps.Converter,
		notifier:  deps.Notifier,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// HandleEvent verifies and applies one payment provider event. Signature
// verification happens before any order is read; after that point every
// failure is logged and swallowed so the provider receives a success response
// and does not redeliver an event whose payment already succeeded.
func (s *paymentWebhookService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := s.verifier.VerifyWebhook(payload, signature)
	if err != nil {
		return fmt.Errorf("payment webhook: %w", err)
	}

	if event.Type != checkoutCompletedEvent {
		s.logger(ctx, "payments.webhook.ignored", map[string]any{
			"eventId": event.ID,
			"type":    event.Type,
		})
		return nil
	}

	var session struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Payload, &session); err != nil || session.ID == "" {
		s.logger(ctx, "payments.webhook.malformed", map[string]any{
			"eventId": event.ID,
		})
		return nil
	}

	order, err := s.orders.FindByStripeSession(ctx, session.ID)
	if err != nil {
		if isNotFound(err) {
			s.logger(ctx, "payments.webhook.order_missing", map[string]any{
				"eventId":   event.ID,
				"sessionId": session.ID,
			})
			return nil
		}
		s.logger(ctx, "payments.webhook.lookup_failed", map[string]any{
			"eventId":   event.ID,
			"sessionId": session.ID,
			"error":     err.Error(),
		})
		return nil
	}

	if order.LastStripeEventID == event.ID {
		s.logger(ctx, "payments.webhook.duplicate", map[string]any{
			"eventId": event.ID,
			"orderId": order.ID,
		})
		return nil
	}

	if order.PaymentStatus == domain.PaymentStatusPaid {
		s.logger(ctx, "payments.webhook.already_paid", map[string]any{
			"eventId": event.ID,
			"orderId": order.ID,
		})
		return nil
	}

	// The paid flag and the idempotency marker land in one write so a
	// redelivery can never observe one without the other.
	paid := domain.PaymentStatusPaid
	eventID := event.ID
	update := repositories.OrderUpdate{
		PaymentStatus:     &paid,
		LastStripeEventID: &eventID,
	}
	if order.Status == domain.OrderStatusPending {
		processing := domain.OrderStatusProcessing
		update.Status = &processing
	}
	if err := s.orders.Update(ctx, order.ID, update); err != nil {
		s.logger(ctx, "payments.webhook.update_failed", map[string]any{
			"eventId": event.ID,
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return nil
	}

	order.PaymentStatus = domain.PaymentStatusPaid
	order.LastStripeEventID = event.ID
	if update.Status != nil {
		order.Status = *update.Status
	}

	s.logger(ctx, "payments.webhook.paid", map[string]any{
		"eventId": event.ID,
		"orderId": order.ID,
	})

	s.triggerConversion(ctx, order)
	s.sendConfirmation(ctx, order)
	return nil
}

// triggerConversion attempts the supplier conversion inline. The converter
// records its own failure on the order, so all this does on error is log.
func (s *paymentWebhookService) triggerConversion(ctx context.Context, order domain.Order) {
	if s.converter == nil {
		return
	}
	if err := s.converter.Convert(ctx, order.ID); err != nil {
		s.logger(ctx, "payments.webhook.conversion_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *paymentWebhookService) sendConfirmation(ctx context.Context, order domain.Order) {
	if s.notifier == nil || order.Notifications.ConfirmationSent {
		return
	}
	if err := s.notifier.SendOrderConfirmation(ctx, order); err != nil {
		s.logger(ctx, "payments.webhook.confirmation_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return
	}
	sent := true
	if err := s.orders.Update(ctx, order.ID, repositories.OrderUpdate{ConfirmationSent: &sent}); err != nil {
		s.logger(ctx, "payments.webhook.confirmation_flag_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
