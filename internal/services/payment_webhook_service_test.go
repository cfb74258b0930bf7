package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/silkthread/api/internal/domain"
	"github.com/silkthread/api/internal/payments"
)

func sessionCompletedVerifier(eventID, sessionID string) *stubVerifier {
	return &stubVerifier{
		verifyFn: func([]byte, string) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{
				ID:      eventID,
				Type:    checkoutCompletedEvent,
				Payload: []byte(`{"id":"` + sessionID + `"}`),
			}, nil
		},
	}
}

func newUnpaidOrder(id, sessionID string) domain.Order {
	return domain.Order{
		ID:              id,
		OrderNumber:     "SO-1001",
		Email:           "buyer@example.com",
		CustomerName:    "Ada Buyer",
		StripeSessionID: sessionID,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		Status:          domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{ProductID: "prod-1", Name: "Silk Scarf - Red", UnitPrice: 4500, Quantity: 1},
		},
	}
}

func TestHandleEventMarksOrderPaidOnce(t *testing.T) {
	repo := newMemoryOrderRepository(newUnpaidOrder("o1", "cs_1"))
	converter := &stubConverter{}
	notifier := &stubNotifier{}

	svc, err := NewPaymentWebhookService(PaymentWebhookServiceDeps{
		Verifier:  sessionCompletedVerifier("evt_1", "cs_1"),
		Orders:    repo,
		Converter: converter,
		Notifier:  notifier,
		Clock:     func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewPaymentWebhookService: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.HandleEvent(context.Background(), []byte(`{}`), "sig"); err != nil {
			t.Fatalf("HandleEvent delivery %d: %v", i+1, err)
		}
	}

	order, _ := repo.get("o1")
	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("paymentStatus = %q, want paid", order.PaymentStatus)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("status = %q, want processing", order.Status)
	}
	if order.LastStripeEventID != "evt_1" {
		t.Fatalf("lastStripeEventId = %q, want evt_1", order.LastStripeEventID)
	}
	if len(converter.calls) != 1 {
		t.Fatalf("conversion attempts = %d, want 1", len(converter.calls))
	}
	if len(notifier.confirmations) != 1 {
		t.Fatalf("confirmation emails = %d, want 1", len(notifier.confirmations))
	}
	if !order.Notifications.ConfirmationSent {
		t.Fatal("expected confirmation flag to be set")
	}
}

func TestHandleEventSignatureFailureBeforeOrderRead(t *testing.T) {
	repo := newMemoryOrderRepository(newUnpaidOrder("o1", "cs_1"))
	svc, err := NewPaymentWebhookService(PaymentWebhookServiceDeps{
		Verifier: &stubVerifier{
			verifyFn: func([]byte, string) (payments.WebhookEvent, error) {
				return payments.WebhookEvent{}, errors.New("signature mismatch")
			},
		},
		Orders: repo,
	})
	if err != nil {
		t.Fatalf("NewPaymentWebhookService: %v", err)
	}

	if err := svc.HandleEvent(context.Background(), []byte(`{}`), "bad"); err == nil {
		t.Fatal("expected signature error")
	}

	order, _ := repo.get("o1")
	if order.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Fatalf("order mutated after signature failure: %q", order.PaymentStatus)
	}
	if len(repo.updates) != 0 {
		t.Fatalf("updates after signature failure = %d, want 0", len(repo.updates))
	}
}

func TestHandleEventIgnoresOtherEventTypes(t *testing.T) {
	repo := newMemoryOrderRepository(newUnpaidOrder("o1", "cs_1"))
	svc, err := NewPaymentWebhookService(PaymentWebhookServiceDeps{
		Verifier: &stubVerifier{
			verifyFn: func([]byte, string) (payments.WebhookEvent, error) {
				return payments.WebhookEvent{ID: "evt_2", Type: "invoice.paid", Payload: []byte(`{"id":"cs_1"}`)}, nil
			},
		},
		Orders: repo,
	})
	if err != nil {
		t.Fatalf("NewPaymentWebhookService: %v", err)
	}

	if err := svc.HandleEvent(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(repo.updates) != 0 {
		t.Fatal("expected no updates for ignored event type")
	}
}

func TestHandleEventUnknownSessionAcked(t *testing.T) {
	repo := newMemoryOrderRepository()
	svc, err := NewPaymentWebhookService(PaymentWebhookServiceDeps{
		Verifier: sessionCompletedVerifier("evt_3", "cs_missing"),
		Orders:   repo,
	})
	if err != nil {
		t.Fatalf("NewPaymentWebhookService: %v", err)
	}

	if err := svc.HandleEvent(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("HandleEvent for unknown session: %v", err)
	}
}

func TestHandleEventConversionFailureDoesNotFailWebhook(t *testing.T) {
	repo := newMemoryOrderRepository(newUnpaidOrder("o1", "cs_1"))
	converter := &stubConverter{err: errors.New("supplier down")}
	notifier := &stubNotifier{}

	svc, err := NewPaymentWebhookService(PaymentWebhookServiceDeps{
		Verifier:  sessionCompletedVerifier("evt_1", "cs_1"),
		Orders:    repo,
		Converter: converter,
		Notifier:  notifier,
	})
	if err != nil {
		t.Fatalf("NewPaymentWebhookService: %v", err)
	}

	if err := svc.HandleEvent(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	order, _ := repo.get("o1")
	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatal("payment must be recorded even when conversion fails")
	}
	if len(notifier.confirmations) != 1 {
		t.Fatal("confirmation must still be sent when conversion fails")
	}
}

func TestHandleEventNotificationFailureLeavesFlagUnset(t *testing.T) {
	repo := newMemoryOrderRepository(newUnpaidOrder("o1", "cs_1"))
	notifier := &stubNotifier{err: errors.New("smtp down")}

	svc, err := NewPaymentWebhookService(PaymentWebhookServiceDeps{
		Verifier: sessionCompletedVerifier("evt_1", "cs_1"),
		Orders:   repo,
		Notifier: notifier,
	})
	if err != nil {
		t.Fatalf("NewPaymentWebhookService: %v", err)
	}

	if err := svc.HandleEvent(context.Background(), []byte(`{}`), "sig"); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	order, _ := repo.get("o1")
	if order.Notifications.ConfirmationSent {
		t.Fatal("confirmation flag must stay unset when the send fails")
	}
}
