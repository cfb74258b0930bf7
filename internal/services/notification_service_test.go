package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/silkthread/api/internal/domain"
)

func TestNotificationServicePublishesJob(t *testing.T) {
	publisher := &stubPublisher{}
	svc, err := NewNotificationService(NotificationServiceDeps{
		Publisher:   publisher,
		FromEmail:   "orders@silkthread.example",
		Clock:       func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) },
		IDGenerator: func() string { return "job-1" },
	})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}

	order := domain.Order{
		ID:           "o1",
		OrderNumber:  "SO-1001",
		Email:        "buyer@example.com",
		CustomerName: "Ada Buyer",
		Currency:     "usd",
		Amounts:      domain.OrderAmounts{Total: 6000},
		Items: []domain.OrderItem{
			{Name: "Silk Scarf - Red", UnitPrice: 4500, Quantity: 1},
		},
		TrackingNumber: "TRK-1",
		Carrier:        "YunExpress",
	}

	if err := svc.SendShippingNotification(context.Background(), order); err != nil {
		t.Fatalf("SendShippingNotification: %v", err)
	}

	if len(publisher.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(publisher.messages))
	}
	msg := publisher.messages[0]
	if msg.JobID != "job-1" {
		t.Fatalf("jobId = %q", msg.JobID)
	}
	if msg.Template != templateOrderShipped {
		t.Fatalf("template = %q", msg.Template)
	}
	if msg.RecipientEmail != "buyer@example.com" || msg.RecipientName != "Ada Buyer" {
		t.Fatalf("recipient = %q/%q", msg.RecipientEmail, msg.RecipientName)
	}
	if msg.Data["trackingNumber"] != "TRK-1" {
		t.Fatalf("data trackingNumber = %v", msg.Data["trackingNumber"])
	}
	if msg.QueuedAt != time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) {
		t.Fatalf("queuedAt = %v", msg.QueuedAt)
	}
}

func TestNotificationServiceRequiresRecipient(t *testing.T) {
	svc, err := NewNotificationService(NotificationServiceDeps{Publisher: &stubPublisher{}})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}

	if err := svc.SendOrderConfirmation(context.Background(), domain.Order{ID: "o1"}); err == nil {
		t.Fatal("expected error for order without email")
	}
}

func TestNotificationServicePropagatesPublishError(t *testing.T) {
	svc, err := NewNotificationService(NotificationServiceDeps{
		Publisher: &stubPublisher{err: errors.New("topic gone")},
	})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}

	err = svc.SendDeliveryConfirmation(context.Background(), domain.Order{ID: "o1", Email: "buyer@example.com"})
	if err == nil {
		t.Fatal("expected publish error to surface to the caller")
	}
}
