package services

import (
	"context"
	"time"

	domain "github.com/silkthread/api/internal/domain"
	"github.com/silkthread/api/internal/payments"
	"github.com/silkthread/api/internal/supplier"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	Product            = domain.Product
	TrackEvent         = domain.TrackEvent
	SystemHealthReport = domain.SystemHealthReport
)

// PaymentWebhookService applies payment provider events to local orders.
// HandleEvent returns an error only when the payload cannot be authenticated;
// every downstream failure is contained so the provider never retries a
// payment this system has already recorded.
type PaymentWebhookService interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) error
}

// ConversionService turns a paid local order into a supplier purchase order
// at most once. Errors propagate so operator-initiated retries can surface
// failures; automated callers are expected to contain them.
type ConversionService interface {
	Convert(ctx context.Context, orderID string) error
	ListUnconverted(ctx context.Context, limit int) ([]Order, error)
}

// SupplierWebhookService applies asynchronous supplier-side state changes to
// local orders. Both methods are ack-everything: an error return is for
// logging only and must not change the HTTP response to the sender.
type SupplierWebhookService interface {
	ApplyStatus(ctx context.Context, payload StatusWebhookPayload) error
	ApplyTracking(ctx context.Context, payload TrackingWebhookPayload) error
	RegisterWebhooks(ctx context.Context, statusURL, trackingURL string) error
	// SupplierOrder fetches the supplier-side view of a converted local order.
	SupplierOrder(ctx context.Context, orderID string) (supplier.OrderDetail, error)
}

// Notifier dispatches customer-facing order emails. Callers treat every
// method as best effort and contain the returned error.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order Order) error
	SendShippingNotification(ctx context.Context, order Order) error
	SendDeliveryConfirmation(ctx context.Context, order Order) error
}

// CatalogSyncService imports supplier catalog data and prices shipping.
type CatalogSyncService interface {
	SyncProducts(ctx context.Context, keyword string, pages int) (SyncReport, error)
	EstimateFreight(ctx context.Context, req FreightEstimateRequest) (FreightEstimate, error)
}

// CheckoutService opens payment provider checkout sessions for orders.
type CheckoutService interface {
	CreateSession(ctx context.Context, orderID string) (payments.CheckoutSession, error)
}

// SystemService reports aggregate dependency health.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}

// SupplierGateway is the slice of the supplier client the services consume.
type SupplierGateway interface {
	SearchProducts(ctx context.Context, keyword string, page, size int, filters ...supplier.SearchFilter) (supplier.ProductSearchResult, error)
	GetProductDetails(ctx context.Context, productID string, features ...string) (supplier.ProductDetail, error)
	CalculateFreight(ctx context.Context, req supplier.FreightRequest) ([]supplier.FreightOption, error)
	CreateOrder(ctx context.Context, req supplier.CreateOrderRequest) (supplier.CreateOrderResult, error)
	GetOrderDetails(ctx context.Context, supplierOrderID string) (supplier.OrderDetail, error)
	SetWebhookConfig(ctx context.Context, cfg supplier.WebhookConfig) error
}

// EmailJobMessage is the Pub/Sub payload consumed by the email worker.
type EmailJobMessage struct {
	JobID          string         `json:"jobId"`
	OrderID        string         `json:"orderId"`
	Template       string         `json:"template"`
	RecipientEmail string         `json:"recipientEmail"`
	RecipientName  string         `json:"recipientName,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	QueuedAt       time.Time      `json:"queuedAt"`
}

// EmailJobPublisher enqueues email jobs for asynchronous delivery.
type EmailJobPublisher interface {
	PublishEmailJob(ctx context.Context, message EmailJobMessage) (string, error)
}

// StatusWebhookPayload is the supplier's order-status callback body.
type StatusWebhookPayload struct {
	OrderID        string `json:"orderId"`
	OrderNumber    string `json:"orderNum"`
	Status         string `json:"orderStatus"`
	TrackingNumber string `json:"trackNumber,omitempty"`
	Carrier        string `json:"logisticName,omitempty"`
	UpdatedAt      string `json:"updateTime,omitempty"`
}

// TrackingWebhookPayload is the supplier's logistics callback body.
type TrackingWebhookPayload struct {
	TrackingNumber   string                 `json:"trackNumber"`
	OrderID          string                 `json:"orderId,omitempty"`
	OrderNumber      string                 `json:"orderNum,omitempty"`
	Carrier          string                 `json:"logisticName,omitempty"`
	Status           string                 `json:"trackingStatus"`
	FromCountry      string                 `json:"trackingFromCountryCode,omitempty"`
	ToCountry        string                 `json:"trackingToCountryCode,omitempty"`
	DeliveryTime     string                 `json:"deliveryTime,omitempty"`
	DeliveryDay      string                 `json:"deliveryDay,omitempty"`
	LastMileCarrier  string                 `json:"lastMileCarrier,omitempty"`
	LastMileTracking string                 `json:"lastMileTrackingNumber,omitempty"`
	Events           []TrackingWebhookEvent `json:"trackingList,omitempty"`
}

// TrackingWebhookEvent is one raw logistics waypoint from the supplier.
type TrackingWebhookEvent struct {
	Status string `json:"trackingStatus"`
	Detail string `json:"trackingDetail,omitempty"`
	Time   string `json:"trackingTime,omitempty"`
}

// SyncReport summarises one catalog sync run.
type SyncReport struct {
	Keyword      string `json:"keyword"`
	PagesWanted  int    `json:"pagesWanted"`
	PagesFetched int    `json:"pagesFetched"`
	Imported     int    `json:"imported"`
	Skipped      int    `json:"skipped"`
	RateLimited  int    `json:"rateLimited"`
}

// FreightEstimateRequest prices shipping for a variant set to a destination.
type FreightEstimateRequest struct {
	DestCountryCode string
	PostalCode      string
	Items           []FreightEstimateItem
}

// FreightEstimateItem is one variant line in a freight estimate.
type FreightEstimateItem struct {
	VariantID string
	Quantity  int
}

// FreightEstimate is the chosen shipping quote in the smallest currency unit.
type FreightEstimate struct {
	LogisticsName string `json:"logisticsName"`
	Amount        int64  `json:"amount"`
	AgingDays     string `json:"agingDays,omitempty"`
	Fallback      bool   `json:"fallback"`
}
