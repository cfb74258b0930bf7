package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/silkthread/api/internal/domain"
	pfirestore "github.com/silkthread/api/internal/platform/firestore"
	"github.com/silkthread/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists storefront orders in Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.Order]
	now      func() time.Time
}

// OrderRepositoryOption customises repository construction.
type OrderRepositoryOption func(*OrderRepository)

// WithOrderClock injects a custom clock primarily for tests.
func WithOrderClock(clock func() time.Time) OrderRepositoryOption {
	return func(r *OrderRepository) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider, opts ...OrderRepositoryOption) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	repo := &OrderRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[domain.Order](provider, ordersCollection, nil, nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Insert stores a new order document. The ID must be unique.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, order); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order := doc.Data
	order.ID = doc.ID
	return order, nil
}

// FindByStripeSession locates the order created for a checkout session.
func (r *OrderRepository) FindByStripeSession(ctx context.Context, sessionID string) (domain.Order, error) {
	return r.findOneByField(ctx, "stripeSessionId", sessionID)
}

// FindBySupplierOrderID locates the order bound to a supplier purchase order id.
func (r *OrderRepository) FindBySupplierOrderID(ctx context.Context, supplierOrderID string) (domain.Order, error) {
	return r.findOneByField(ctx, "supplierOrderId", supplierOrderID)
}

// FindBySupplierOrderNumber locates the order bound to a supplier order number.
func (r *OrderRepository) FindBySupplierOrderNumber(ctx context.Context, supplierOrderNumber string) (domain.Order, error) {
	return r.findOneByField(ctx, "supplierOrderNumber", supplierOrderNumber)
}

// FindBySupplierLastOrderID locates an order by the last supplier order id
// recorded from webhook traffic, which can differ from the id stored at
// conversion time.
func (r *OrderRepository) FindBySupplierLastOrderID(ctx context.Context, supplierOrderID string) (domain.Order, error) {
	return r.findOneByField(ctx, "supplierData.lastOrderId", supplierOrderID)
}

func (r *OrderRepository) findOneByField(ctx context.Context, field, value string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.Order{}, fmt.Errorf("order repository: %s is required", field)
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, newNotFoundError(fmt.Sprintf("orders.%s", field))
	}
	order := docs[0].Data
	order.ID = docs[0].ID
	return order, nil
}

// Update applies the non-nil fields of the update to the order document.
func (r *OrderRepository) Update(ctx context.Context, orderID string, update repositories.OrderUpdate) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	updates := buildOrderUpdates(update)
	if len(updates) == 0 {
		return nil
	}
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: r.now().UTC()})

	if _, err := r.base.Update(ctx, orderID, updates); err != nil {
		return err
	}
	return nil
}

// ListUnconverted returns paid orders that have no supplier purchase order yet.
func (r *OrderRepository) ListUnconverted(ctx context.Context, limit int) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	if limit <= 0 {
		limit = 50
	}
	// Pending sentinels are listed too: a claim orphaned by a crash must stay
	// visible to operators until a retry takes it over.
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("paymentStatus", "==", string(domain.PaymentStatusPaid)).
			Where("supplierOrderId", "in", []string{"", domain.ConversionPendingSentinel}).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := doc.Data
		order.ID = doc.ID
		orders = append(orders, order)
	}
	return orders, nil
}

// ClaimSupplierConversion atomically sets the pending sentinel when no supplier
// order exists. A concurrent or earlier conversion makes the claim fail with a
// conflict classification, so only one caller proceeds to the supplier API.
func (r *OrderRepository) ClaimSupplierConversion(ctx context.Context, orderID string) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		current, err := snap.DataAt("supplierOrderId")
		if err != nil {
			current = ""
		}
		switch str, _ := current.(string); str {
		case "":
			// free to claim
		case domain.ConversionPendingSentinel:
			// A sentinel older than the stale window belongs to a process
			// that died mid-conversion; the retry takes the claim over.
			if !claimIsStale(snap, r.now()) {
				return newConflictError("orders.claim_conversion")
			}
		default:
			return newConflictError("orders.claim_conversion")
		}
		return tx.Update(docRef, []firestore.Update{
			{Path: "supplierOrderId", Value: domain.ConversionPendingSentinel},
			{Path: "updatedAt", Value: r.now().UTC()},
		})
	})
}

// ReleaseSupplierConversion clears a pending claim after a failed conversion.
// A completed conversion (real supplier id) is never cleared.
func (r *OrderRepository) ReleaseSupplierConversion(ctx context.Context, orderID string) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		current, err := snap.DataAt("supplierOrderId")
		if err != nil {
			return nil
		}
		if str, _ := current.(string); str != domain.ConversionPendingSentinel {
			return nil
		}
		return tx.Update(docRef, []firestore.Update{
			{Path: "supplierOrderId", Value: ""},
			{Path: "updatedAt", Value: r.now().UTC()},
		})
	})
}

func buildOrderUpdates(update repositories.OrderUpdate) []firestore.Update {
	var updates []firestore.Update

	if update.PaymentStatus != nil {
		updates = append(updates, firestore.Update{Path: "paymentStatus", Value: string(*update.PaymentStatus)})
	}
	if update.StripeSessionID != nil {
		updates = append(updates, firestore.Update{Path: "stripeSessionId", Value: *update.StripeSessionID})
	}
	if update.LastStripeEventID != nil {
		updates = append(updates, firestore.Update{Path: "lastStripeEventId", Value: *update.LastStripeEventID})
	}
	if update.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: string(*update.Status)})
	}
	if update.Carrier != nil {
		updates = append(updates, firestore.Update{Path: "carrier", Value: *update.Carrier})
	}
	if update.TrackingNumber != nil {
		updates = append(updates, firestore.Update{Path: "trackingNumber", Value: *update.TrackingNumber})
	}
	if update.ShippedAt != nil {
		updates = append(updates, firestore.Update{Path: "shippedAt", Value: update.ShippedAt.UTC()})
	}
	if update.DeliveredAt != nil {
		updates = append(updates, firestore.Update{Path: "deliveredAt", Value: update.DeliveredAt.UTC()})
	}
	if update.SupplierOrderID != nil {
		updates = append(updates, firestore.Update{Path: "supplierOrderId", Value: *update.SupplierOrderID})
	}
	if update.SupplierOrderNumber != nil {
		updates = append(updates, firestore.Update{Path: "supplierOrderNumber", Value: *update.SupplierOrderNumber})
	}
	if update.SupplierError != nil {
		updates = append(updates, firestore.Update{Path: "supplierError", Value: *update.SupplierError})
	}
	if update.SupplierLastStatus != nil {
		updates = append(updates, firestore.Update{Path: "supplierData.lastStatus", Value: *update.SupplierLastStatus})
	}
	if update.SupplierLastOrderID != nil {
		updates = append(updates, firestore.Update{Path: "supplierData.lastOrderId", Value: *update.SupplierLastOrderID})
	}
	if update.SupplierWebhookAt != nil {
		updates = append(updates, firestore.Update{Path: "supplierData.lastWebhookAt", Value: update.SupplierWebhookAt.UTC()})
	}
	if update.TrackEvents != nil {
		updates = append(updates, firestore.Update{Path: "supplierData.trackEvents", Value: update.TrackEvents})
	}
	if update.ConfirmationSent != nil {
		updates = append(updates, firestore.Update{Path: "notifications.confirmationSent", Value: *update.ConfirmationSent})
	}
	if update.ShippedSent != nil {
		updates = append(updates, firestore.Update{Path: "notifications.shippedSent", Value: *update.ShippedSent})
	}
	if update.DeliveredSent != nil {
		updates = append(updates, firestore.Update{Path: "notifications.deliveredSent", Value: *update.DeliveredSent})
	}

	return updates
}

// claimIsStale reports whether a pending conversion claim is old enough to be
// taken over. The document's updatedAt is stamped when the claim is set.
func claimIsStale(snap *firestore.DocumentSnapshot, now time.Time) bool {
	raw, err := snap.DataAt("updatedAt")
	if err != nil {
		return true
	}
	updatedAt, ok := raw.(time.Time)
	if !ok {
		return true
	}
	return now.Sub(updatedAt) >= domain.ConversionClaimStaleAfter
}
