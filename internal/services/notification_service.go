package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/silkthread/api/internal/domain"
)

// Email templates rendered by the notification worker.
const (
	templateOrderConfirmation = "order-confirmation"
	templateOrderShipped      = "order-shipped"
	templateOrderDelivered    = "order-delivered"
)

type notificationService struct {
	publisher EmailJobPublisher
	fromEmail string
	clock     func() time.Time
	idGen     func() string
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NotificationServiceDeps bundles constructor inputs for the notifier.
type NotificationServiceDeps struct {
	Publisher EmailJobPublisher
	FromEmail string
	Clock     func() time.Time
	// IDGenerator mints job ids the email worker uses for deduplication.
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// NewNotificationService creates a Pub/Sub backed notifier. Delivery is
// asynchronous: publishing the job is the only synchronous step, and callers
// are expected to contain even that error.
func NewNotificationService(deps NotificationServiceDeps) (Notifier, error) {
	if deps.Publisher == nil {
		return nil, errors.New("notification service: publisher is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &notificationService{
		publisher: deps.Publisher,
		fromEmail: strings.TrimSpace(deps.FromEmail),
		clock:     func() time.Time { return clock().UTC() },
		idGen:     idGen,
		logger:    logger,
	}, nil
}

func (s *notificationService) SendOrderConfirmation(ctx context.Context, order Order) error {
	return s.publish(ctx, order, templateOrderConfirmation)
}

func (s *notificationService) SendShippingNotification(ctx context.Context, order Order) error {
	return s.publish(ctx, order, templateOrderShipped)
}

func (s *notificationService) SendDeliveryConfirmation(ctx context.Context, order Order) error {
	return s.publish(ctx, order, templateOrderDelivered)
}

func (s *notificationService) publish(ctx context.Context, order Order, template string) error {
	if order.Email == "" {
		return fmt.Errorf("notification: order %s has no recipient email", order.ID)
	}

	message := EmailJobMessage{
		JobID:          s.idGen(),
		OrderID:        order.ID,
		Template:       template,
		RecipientEmail: order.Email,
		RecipientName:  order.CustomerName,
		Data:           buildEmailData(order, s.fromEmail),
		QueuedAt:       s.clock(),
	}

	id, err := s.publisher.PublishEmailJob(ctx, message)
	if err != nil {
		return fmt.Errorf("notification: publish %s for order %s: %w", template, order.ID, err)
	}

	s.logger(ctx, "notifications.queued", map[string]any{
		"orderId":   order.ID,
		"template":  template,
		"messageId": id,
	})
	return nil
}

func buildEmailData(order domain.Order, fromEmail string) map[string]any {
	items := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"name":      item.Name,
			"quantity":  item.Quantity,
			"unitPrice": item.UnitPrice,
		})
	}

	data := map[string]any{
		"orderNumber": order.OrderNumber,
		"items":       items,
		"total":       order.Amounts.Total,
		"currency":    order.Currency,
	}
	if fromEmail != "" {
		data["fromEmail"] = fromEmail
	}
	if order.TrackingNumber != "" {
		data["trackingNumber"] = order.TrackingNumber
	}
	if order.Carrier != "" {
		data["carrier"] = order.Carrier
	}
	if addr := order.ShippingAddress; addr != nil {
		data["shippingAddress"] = map[string]any{
			"name":       addr.Name,
			"line1":      addr.Line1,
			"line2":      addr.Line2,
			"city":       addr.City,
			"state":      addr.State,
			"postalCode": addr.PostalCode,
			"country":    addr.CountryCode,
		}
	}
	return data
}
