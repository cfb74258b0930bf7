package repositories

import (
	"context"
	"time"

	domain "github.com/silkthread/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists storefront orders and supports the lookup strategies
// the reconciliation services depend on.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByStripeSession(ctx context.Context, sessionID string) (domain.Order, error)
	FindBySupplierOrderID(ctx context.Context, supplierOrderID string) (domain.Order, error)
	FindBySupplierOrderNumber(ctx context.Context, supplierOrderNumber string) (domain.Order, error)
	FindBySupplierLastOrderID(ctx context.Context, supplierOrderID string) (domain.Order, error)
	Update(ctx context.Context, orderID string, update OrderUpdate) error
	ListUnconverted(ctx context.Context, limit int) ([]domain.Order, error)

	// ClaimSupplierConversion atomically marks the order as having its supplier
	// conversion in flight. It fails with a conflict error when a claim or a
	// completed conversion already exists.
	ClaimSupplierConversion(ctx context.Context, orderID string) error
	// ReleaseSupplierConversion clears a pending claim so a later retry can re-enter.
	ReleaseSupplierConversion(ctx context.Context, orderID string) error
}

// OrderUpdate carries the optional fields an order mutation may set. Nil fields
// are left untouched.
type OrderUpdate struct {
	PaymentStatus       *domain.PaymentStatus
	StripeSessionID     *string
	LastStripeEventID   *string
	Status              *domain.OrderStatus
	Carrier             *string
	TrackingNumber      *string
	ShippedAt           *time.Time
	DeliveredAt         *time.Time
	SupplierOrderID     *string
	SupplierOrderNumber *string
	SupplierError       *string
	SupplierLastStatus  *string
	SupplierLastOrderID *string
	SupplierWebhookAt   *time.Time
	TrackEvents         []domain.TrackEvent
	ConfirmationSent    *bool
	ShippedSent         *bool
	DeliveredSent       *bool
}

// ProductRepository reads and writes the catalog records used for variant resolution.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
