package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/silkthread/api/internal/domain"
	"github.com/silkthread/api/internal/repositories"
	"github.com/silkthread/api/internal/supplier"
)

// testPayloadSentinel marks the supplier's endpoint-validation pings, which
// must be acknowledged without touching any order.
const testPayloadSentinel = "test"

// supplierStatusMap is the fixed translation from supplier status strings to
// the local fulfilment enum. Values absent from the table leave the local
// state unchanged rather than guessing.
var supplierStatusMap = map[string]domain.OrderStatus{
	"created":    domain.OrderStatusProcessing,
	"confirmed":  domain.OrderStatusProcessing,
	"processing": domain.OrderStatusProcessing,
	"unshipped":  domain.OrderStatusProcessing,
	"shipped":    domain.OrderStatusShipped,
	"dispatched": domain.OrderStatusShipped,
	"delivered":  domain.OrderStatusDelivered,
	"cancelled":  domain.OrderStatusCancelled,
	"canceled":   domain.OrderStatusCancelled,
	"failed":     domain.OrderStatusCancelled,
}

// statusRank orders the forward-only fulfilment progression. Cancellation is
// handled outside the rank comparison.
var statusRank = map[domain.OrderStatus]int{
	domain.OrderStatusPending:    0,
	domain.OrderStatusProcessing: 1,
	domain.OrderStatusShipped:    2,
	domain.OrderStatusDelivered:  3,
}

type supplierWebhookService struct {
	orders   repositories.OrderRepository
	notifier Notifier
	gateway  SupplierGateway
	clock    func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// SupplierWebhookServiceDeps bundles constructor inputs for the supplier webhook service.
type SupplierWebhookServiceDeps struct {
	Orders   repositories.OrderRepository
	Notifier Notifier
	Gateway  SupplierGateway
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewSupplierWebhookService creates the processor for supplier status and
// tracking callbacks.
func NewSupplierWebhookService(deps SupplierWebhookServiceDeps) (SupplierWebhookService, error) {
	if deps.Orders == nil {
		return nil, errors.New("supplier webhook service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &supplierWebhookService{
		orders:   deps.Orders,
		notifier: deps.Notifier,
		gateway:  deps.Gateway,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// ApplyStatus processes one order-status callback. A nil return or a returned
// error both end in a 200 to the sender; the error exists for logging.
func (s *supplierWebhookService) ApplyStatus(ctx context.Context, payload StatusWebhookPayload) error {
	if isTestPayload(payload.OrderID, payload.OrderNumber) {
		s.logger(ctx, "supplier.webhook.status.test", nil)
		return nil
	}

	order, found := s.lookupOrder(ctx, payload.OrderNumber, payload.OrderID)
	if !found {
		s.logger(ctx, "supplier.webhook.status.order_missing", map[string]any{
			"supplierOrderId":  payload.OrderID,
			"supplierOrderNum": payload.OrderNumber,
		})
		return nil
	}

	wasShippedSent := order.Notifications.ShippedSent
	wasDeliveredSent := order.Notifications.DeliveredSent

	now := s.clock()
	update := repositories.OrderUpdate{
		SupplierWebhookAt: &now,
	}
	if payload.Status != "" {
		status := payload.Status
		update.SupplierLastStatus = &status
	}
	if payload.OrderID != "" {
		supplierID := payload.OrderID
		update.SupplierLastOrderID = &supplierID
	}
	if payload.Carrier != "" {
		carrier := payload.Carrier
		update.Carrier = &carrier
	}
	if payload.TrackingNumber != "" && order.TrackingNumber == "" {
		trackingNumber := payload.TrackingNumber
		update.TrackingNumber = &trackingNumber
	}

	mapped, known := supplierStatusMap[strings.ToLower(strings.TrimSpace(payload.Status))]
	if known {
		s.applyTransition(&update, order, mapped, now)
	} else if payload.Status != "" {
		s.logger(ctx, "supplier.webhook.status.unknown", map[string]any{
			"orderId": order.ID,
			"status":  payload.Status,
		})
	}

	if err := s.orders.Update(ctx, order.ID, update); err != nil {
		s.logger(ctx, "supplier.webhook.status.update_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return err
	}

	s.logger(ctx, "supplier.webhook.status.applied", map[string]any{
		"orderId": order.ID,
		"status":  payload.Status,
	})

	s.notifyTransitions(ctx, order, update, wasShippedSent, wasDeliveredSent)
	return nil
}

// ApplyTracking processes one logistics callback: it stores the raw event
// history verbatim and infers fulfilment transitions from the free-text
// status.
func (s *supplierWebhookService) ApplyTracking(ctx context.Context, payload TrackingWebhookPayload) error {
	if isTestPayload(payload.TrackingNumber, payload.OrderID, payload.OrderNumber) {
		s.logger(ctx, "supplier.webhook.tracking.test", nil)
		return nil
	}

	order, found := s.lookupOrder(ctx, payload.OrderNumber, payload.OrderID)
	if !found {
		s.logger(ctx, "supplier.webhook.tracking.order_missing", map[string]any{
			"supplierOrderId": payload.OrderID,
			"trackNumber":     payload.TrackingNumber,
		})
		return nil
	}

	wasShippedSent := order.Notifications.ShippedSent
	wasDeliveredSent := order.Notifications.DeliveredSent

	now := s.clock()
	update := repositories.OrderUpdate{
		SupplierWebhookAt: &now,
	}
	if payload.Status != "" {
		status := payload.Status
		update.SupplierLastStatus = &status
	}
	if payload.OrderID != "" {
		supplierID := payload.OrderID
		update.SupplierLastOrderID = &supplierID
	}
	if payload.Carrier != "" {
		carrier := payload.Carrier
		update.Carrier = &carrier
	}
	if payload.TrackingNumber != "" && order.TrackingNumber == "" {
		trackingNumber := payload.TrackingNumber
		update.TrackingNumber = &trackingNumber
	}
	if len(payload.Events) > 0 {
		update.TrackEvents = convertTrackEvents(payload.Events)
	}

	if mapped, ok := inferTrackingStatus(payload.Status, order.Status); ok {
		s.applyTransition(&update, order, mapped, now)
	}

	if err := s.orders.Update(ctx, order.ID, update); err != nil {
		s.logger(ctx, "supplier.webhook.tracking.update_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return err
	}

	s.logger(ctx, "supplier.webhook.tracking.applied", map[string]any{
		"orderId":     order.ID,
		"trackNumber": payload.TrackingNumber,
		"status":      payload.Status,
	})

	s.notifyTransitions(ctx, order, update, wasShippedSent, wasDeliveredSent)
	return nil
}

// RegisterWebhooks points the supplier's callbacks at this deployment.
func (s *supplierWebhookService) RegisterWebhooks(ctx context.Context, statusURL, trackingURL string) error {
	if s.gateway == nil {
		return errors.New("supplier webhook service: gateway is required for registration")
	}
	if statusURL != "" {
		if err := s.gateway.SetWebhookConfig(ctx, supplier.WebhookConfig{Type: "order", URL: statusURL}); err != nil {
			return err
		}
	}
	if trackingURL != "" {
		if err := s.gateway.SetWebhookConfig(ctx, supplier.WebhookConfig{Type: "logistics", URL: trackingURL}); err != nil {
			return err
		}
	}
	return nil
}

// ErrOrderNotConverted reports an order that has no supplier purchase order
// to look up yet.
var ErrOrderNotConverted = errors.New("order has no supplier order")

// SupplierOrder fetches the supplier-side view of a converted local order.
func (s *supplierWebhookService) SupplierOrder(ctx context.Context, orderID string) (supplier.OrderDetail, error) {
	if strings.TrimSpace(orderID) == "" {
		return supplier.OrderDetail{}, errors.New("supplier webhook service: order id is required")
	}
	if s.gateway == nil {
		return supplier.OrderDetail{}, errors.New("supplier webhook service: gateway is required for order lookup")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return supplier.OrderDetail{}, err
	}
	supplierID := order.SupplierOrderID
	if supplierID == "" || supplierID == domain.ConversionPendingSentinel {
		return supplier.OrderDetail{}, ErrOrderNotConverted
	}

	detail, err := s.gateway.GetOrderDetails(ctx, supplierID)
	if err != nil {
		s.logger(ctx, "supplier.order.lookup_failed", map[string]any{
			"orderId":         order.ID,
			"supplierOrderId": supplierID,
			"error":           err.Error(),
		})
		return supplier.OrderDetail{}, err
	}
	return detail, nil
}

// lookupStrategy names one identifier-resolution attempt so the fallback
// order stays visible and testable as data.
type lookupStrategy struct {
	name string
	key  string
	find func(ctx context.Context, key string) (domain.Order, error)
}

// lookupOrder resolves a callback to a local order, trying each strategy in
// order and stopping at the first hit.
func (s *supplierWebhookService) lookupOrder(ctx context.Context, orderNumber, supplierOrderID string) (domain.Order, bool) {
	strategies := []lookupStrategy{
		{name: "supplierOrderNumber", key: orderNumber, find: s.orders.FindBySupplierOrderNumber},
		{name: "localOrderId", key: orderNumber, find: s.orders.FindByID},
		{name: "supplierOrderId", key: supplierOrderID, find: s.orders.FindBySupplierOrderID},
		{name: "lastSupplierOrderId", key: supplierOrderID, find: s.orders.FindBySupplierLastOrderID},
	}

	for _, strategy := range strategies {
		key := strings.TrimSpace(strategy.key)
		if key == "" {
			continue
		}
		order, err := strategy.find(ctx, key)
		if err == nil {
			s.logger(ctx, "supplier.webhook.lookup", map[string]any{
				"strategy": strategy.name,
				"orderId":  order.ID,
			})
			return order, true
		}
		if !isNotFound(err) {
			s.logger(ctx, "supplier.webhook.lookup_error", map[string]any{
				"strategy": strategy.name,
				"error":    err.Error(),
			})
		}
	}
	return domain.Order{}, false
}

// applyTransition writes the mapped status into the update only when it moves
// the order forward. Delivered never regresses, shipped never regresses an
// order already shipped or delivered, and cancellation is honoured unless the
// parcel already arrived.
func (s *supplierWebhookService) applyTransition(update *repositories.OrderUpdate, order domain.Order, next domain.OrderStatus, now time.Time) {
	if order.Status == next {
		return
	}

	if next == domain.OrderStatusCancelled {
		if order.Status == domain.OrderStatusDelivered {
			return
		}
		cancelled := domain.OrderStatusCancelled
		update.Status = &cancelled
		return
	}

	currentRank, trackable := statusRank[order.Status]
	nextRank := statusRank[next]
	if !trackable || nextRank <= currentRank {
		return
	}

	status := next
	update.Status = &status
	switch next {
	case domain.OrderStatusShipped:
		if order.ShippedAt == nil {
			update.ShippedAt = &now
		}
	case domain.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			update.DeliveredAt = &now
		}
	}
}

// notifyTransitions sends at most one shipped and one delivered email per
// order. The flag check runs against the order state from before this
// handler's own update, so a repeated webhook carrying the same status never
// re-notifies. Notification failures are contained.
func (s *supplierWebhookService) notifyTransitions(ctx context.Context, order domain.Order, update repositories.OrderUpdate, wasShippedSent, wasDeliveredSent bool) {
	if s.notifier == nil || update.Status == nil {
		return
	}

	notified := order
	notified.Status = *update.Status
	if update.TrackingNumber != nil {
		notified.TrackingNumber = *update.TrackingNumber
	}
	if update.Carrier != nil {
		notified.Carrier = *update.Carrier
	}

	switch *update.Status {
	case domain.OrderStatusShipped:
		if wasShippedSent {
			return
		}
		if err := s.notifier.SendShippingNotification(ctx, notified); err != nil {
			s.logger(ctx, "supplier.webhook.notify_shipped_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
			return
		}
		s.markNotified(ctx, order.ID, repositories.OrderUpdate{ShippedSent: boolPtr(true)})
	case domain.OrderStatusDelivered:
		if wasDeliveredSent {
			return
		}
		if err := s.notifier.SendDeliveryConfirmation(ctx, notified); err != nil {
			s.logger(ctx, "supplier.webhook.notify_delivered_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
			return
		}
		s.markNotified(ctx, order.ID, repositories.OrderUpdate{DeliveredSent: boolPtr(true)})
	}
}

func (s *supplierWebhookService) markNotified(ctx context.Context, orderID string, update repositories.OrderUpdate) {
	if err := s.orders.Update(ctx, orderID, update); err != nil {
		s.logger(ctx, "supplier.webhook.notify_flag_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
	}
}

// trackingSubstring is one entry in the free-text inference table. The table
// is ordered; the first matching substring wins.
type trackingSubstring struct {
	fragment string
	status   domain.OrderStatus
	// from restricts which current states the inference applies to; empty
	// means any state (the monotonic guard still applies afterwards).
	from []domain.OrderStatus
}

var trackingInference = []trackingSubstring{
	{fragment: "delivered", status: domain.OrderStatusDelivered},
	{fragment: "transit", status: domain.OrderStatusShipped, from: []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusProcessing}},
	{fragment: "shipped", status: domain.OrderStatusShipped, from: []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusProcessing}},
	{fragment: "pickup", status: domain.OrderStatusShipped, from: []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusProcessing}},
}

// inferTrackingStatus maps a free-text logistics status onto the fulfilment
// enum. Unmatched strings report no transition so new supplier wording fails
// safe.
func inferTrackingStatus(raw string, current domain.OrderStatus) (domain.OrderStatus, bool) {
	needle := strings.ToLower(strings.TrimSpace(raw))
	if needle == "" {
		return "", false
	}
	for _, entry := range trackingInference {
		if !strings.Contains(needle, entry.fragment) {
			continue
		}
		if len(entry.from) > 0 && !containsStatus(entry.from, current) {
			return "", false
		}
		return entry.status, true
	}
	return "", false
}

func containsStatus(list []domain.OrderStatus, status domain.OrderStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

func convertTrackEvents(events []TrackingWebhookEvent) []domain.TrackEvent {
	converted := make([]domain.TrackEvent, 0, len(events))
	for _, event := range events {
		converted = append(converted, domain.TrackEvent{
			Status: event.Status,
			Detail: event.Detail,
			Time:   parseSupplierTime(event.Time),
		})
	}
	return converted
}

// parseSupplierTime tolerates the handful of timestamp layouts observed in
// supplier callbacks; unparseable values keep the zero time so the raw string
// in the event detail remains the source of truth.
func parseSupplierTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func isTestPayload(values ...string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), testPayloadSentinel) {
			return true
		}
	}
	return false
}

func boolPtr(v bool) *bool {
	return &v
}
