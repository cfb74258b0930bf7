package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/silkthread/api/internal/domain"
	"github.com/silkthread/api/internal/payments"
	pfirestore "github.com/silkthread/api/internal/platform/firestore"
	"github.com/silkthread/api/internal/repositories"
	"github.com/silkthread/api/internal/supplier"
)

type stubRepoError struct {
	notFound bool
	conflict bool
}

func (e *stubRepoError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.conflict:
		return "conflict"
	default:
		return "unavailable"
	}
}

func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return !e.notFound && !e.conflict }

var (
	errStubNotFound = &stubRepoError{notFound: true}
	errStubConflict = &stubRepoError{conflict: true}
)

// memoryOrderRepository is an in-process order store with the same claim
// semantics as the Firestore implementation: the conversion claim is an
// atomic compare-and-set under a single lock.
type memoryOrderRepository struct {
	mu      sync.Mutex
	orders  map[string]domain.Order
	updates []repositories.OrderUpdate
	now     func() time.Time
}

func newMemoryOrderRepository(orders ...domain.Order) *memoryOrderRepository {
	repo := &memoryOrderRepository{
		orders: make(map[string]domain.Order),
		now:    time.Now,
	}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *memoryOrderRepository) get(orderID string) (domain.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	return order, ok
}

func (r *memoryOrderRepository) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order
	return nil
}

func (r *memoryOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := r.get(orderID)
	if !ok {
		return domain.Order{}, errStubNotFound
	}
	return order, nil
}

func (r *memoryOrderRepository) FindByStripeSession(_ context.Context, sessionID string) (domain.Order, error) {
	return r.findBy(func(o domain.Order) bool { return o.StripeSessionID == sessionID })
}

func (r *memoryOrderRepository) FindBySupplierOrderID(_ context.Context, id string) (domain.Order, error) {
	return r.findBy(func(o domain.Order) bool { return o.SupplierOrderID == id })
}

func (r *memoryOrderRepository) FindBySupplierOrderNumber(_ context.Context, num string) (domain.Order, error) {
	return r.findBy(func(o domain.Order) bool { return o.SupplierOrderNumber == num })
}

func (r *memoryOrderRepository) FindBySupplierLastOrderID(_ context.Context, id string) (domain.Order, error) {
	return r.findBy(func(o domain.Order) bool { return o.SupplierData.LastOrderID == id })
}

func (r *memoryOrderRepository) findBy(match func(domain.Order) bool) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if match(order) {
			return order, nil
		}
	}
	return domain.Order{}, errStubNotFound
}

func (r *memoryOrderRepository) Update(_ context.Context, orderID string, update repositories.OrderUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return errStubNotFound
	}
	applyOrderUpdate(&order, update)
	r.orders[orderID] = order
	r.updates = append(r.updates, update)
	return nil
}

func (r *memoryOrderRepository) ListUnconverted(_ context.Context, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, order := range r.orders {
		unconverted := order.SupplierOrderID == "" || order.SupplierOrderID == domain.ConversionPendingSentinel
		if order.PaymentStatus == domain.PaymentStatusPaid && unconverted {
			out = append(out, order)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memoryOrderRepository) ClaimSupplierConversion(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return errStubNotFound
	}
	switch order.SupplierOrderID {
	case "":
		// free to claim
	case domain.ConversionPendingSentinel:
		if r.now().Sub(order.UpdatedAt) < domain.ConversionClaimStaleAfter {
			// Mirror the production path: the conflict raised inside the
			// transaction surfaces through the platform error wrapper.
			return pfirestore.WrapError("transaction", errStubConflict)
		}
	default:
		return pfirestore.WrapError("transaction", errStubConflict)
	}
	order.SupplierOrderID = domain.ConversionPendingSentinel
	order.UpdatedAt = r.now()
	r.orders[orderID] = order
	return nil
}

func (r *memoryOrderRepository) ReleaseSupplierConversion(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return errStubNotFound
	}
	if order.SupplierOrderID == domain.ConversionPendingSentinel {
		order.SupplierOrderID = ""
		r.orders[orderID] = order
	}
	return nil
}

func applyOrderUpdate(order *domain.Order, update repositories.OrderUpdate) {
	if update.PaymentStatus != nil {
		order.PaymentStatus = *update.PaymentStatus
	}
	if update.StripeSessionID != nil {
		order.StripeSessionID = *update.StripeSessionID
	}
	if update.LastStripeEventID != nil {
		order.LastStripeEventID = *update.LastStripeEventID
	}
	if update.Status != nil {
		order.Status = *update.Status
	}
	if update.Carrier != nil {
		order.Carrier = *update.Carrier
	}
	if update.TrackingNumber != nil {
		order.TrackingNumber = *update.TrackingNumber
	}
	if update.ShippedAt != nil {
		order.ShippedAt = update.ShippedAt
	}
	if update.DeliveredAt != nil {
		order.DeliveredAt = update.DeliveredAt
	}
	if update.SupplierOrderID != nil {
		order.SupplierOrderID = *update.SupplierOrderID
	}
	if update.SupplierOrderNumber != nil {
		order.SupplierOrderNumber = *update.SupplierOrderNumber
	}
	if update.SupplierError != nil {
		order.SupplierError = *update.SupplierError
	}
	if update.SupplierLastStatus != nil {
		order.SupplierData.LastStatus = *update.SupplierLastStatus
	}
	if update.SupplierLastOrderID != nil {
		order.SupplierData.LastOrderID = *update.SupplierLastOrderID
	}
	if update.SupplierWebhookAt != nil {
		order.SupplierData.LastWebhookAt = update.SupplierWebhookAt
	}
	if update.TrackEvents != nil {
		order.SupplierData.TrackEvents = update.TrackEvents
	}
	if update.ConfirmationSent != nil {
		order.Notifications.ConfirmationSent = *update.ConfirmationSent
	}
	if update.ShippedSent != nil {
		order.Notifications.ShippedSent = *update.ShippedSent
	}
	if update.DeliveredSent != nil {
		order.Notifications.DeliveredSent = *update.DeliveredSent
	}
}

type stubProductRepository struct {
	findFn   func(ctx context.Context, productID string) (domain.Product, error)
	upsertFn func(ctx context.Context, product domain.Product) error
}

func (s *stubProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn == nil {
		return domain.Product{}, errStubNotFound
	}
	return s.findFn(ctx, productID)
}

func (s *stubProductRepository) Upsert(ctx context.Context, product domain.Product) error {
	if s.upsertFn == nil {
		return nil
	}
	return s.upsertFn(ctx, product)
}

type stubGateway struct {
	searchFn     func(ctx context.Context, keyword string, page, size int) (supplier.ProductSearchResult, error)
	detailFn     func(ctx context.Context, productID string) (supplier.ProductDetail, error)
	freightFn    func(ctx context.Context, req supplier.FreightRequest) ([]supplier.FreightOption, error)
	createFn     func(ctx context.Context, req supplier.CreateOrderRequest) (supplier.CreateOrderResult, error)
	orderFn      func(ctx context.Context, supplierOrderID string) (supplier.OrderDetail, error)
	setWebhookFn func(ctx context.Context, cfg supplier.WebhookConfig) error
}

func (s *stubGateway) SearchProducts(ctx context.Context, keyword string, page, size int, _ ...supplier.SearchFilter) (supplier.ProductSearchResult, error) {
	if s.searchFn == nil {
		return supplier.ProductSearchResult{}, nil
	}
	return s.searchFn(ctx, keyword, page, size)
}

func (s *stubGateway) GetProductDetails(ctx context.Context, productID string, _ ...string) (supplier.ProductDetail, error) {
	if s.detailFn == nil {
		return supplier.ProductDetail{}, errStubNotFound
	}
	return s.detailFn(ctx, productID)
}

func (s *stubGateway) CalculateFreight(ctx context.Context, req supplier.FreightRequest) ([]supplier.FreightOption, error) {
	if s.freightFn == nil {
		return nil, nil
	}
	return s.freightFn(ctx, req)
}

func (s *stubGateway) CreateOrder(ctx context.Context, req supplier.CreateOrderRequest) (supplier.CreateOrderResult, error) {
	if s.createFn == nil {
		return supplier.CreateOrderResult{}, fmt.Errorf("unexpected CreateOrder call")
	}
	return s.createFn(ctx, req)
}

func (s *stubGateway) GetOrderDetails(ctx context.Context, supplierOrderID string) (supplier.OrderDetail, error) {
	if s.orderFn == nil {
		return supplier.OrderDetail{}, errStubNotFound
	}
	return s.orderFn(ctx, supplierOrderID)
}

func (s *stubGateway) SetWebhookConfig(ctx context.Context, cfg supplier.WebhookConfig) error {
	if s.setWebhookFn == nil {
		return nil
	}
	return s.setWebhookFn(ctx, cfg)
}

type stubNotifier struct {
	mu            sync.Mutex
	confirmations []string
	shipped       []string
	delivered     []string
	err           error
}

func (s *stubNotifier) SendOrderConfirmation(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.confirmations = append(s.confirmations, order.ID)
	return nil
}

func (s *stubNotifier) SendShippingNotification(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.shipped = append(s.shipped, order.ID)
	return nil
}

func (s *stubNotifier) SendDeliveryConfirmation(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, order.ID)
	return nil
}

type stubVerifier struct {
	verifyFn func(payload []byte, signature string) (payments.WebhookEvent, error)
}

func (s *stubVerifier) VerifyWebhook(payload []byte, signature string) (payments.WebhookEvent, error) {
	return s.verifyFn(payload, signature)
}

type stubConverter struct {
	mu     sync.Mutex
	calls  []string
	err    error
	fn     func(ctx context.Context, orderID string) error
	listFn func(ctx context.Context, limit int) ([]domain.Order, error)
}

func (s *stubConverter) Convert(ctx context.Context, orderID string) error {
	s.mu.Lock()
	s.calls = append(s.calls, orderID)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, orderID)
	}
	return s.err
}

func (s *stubConverter) ListUnconverted(ctx context.Context, limit int) ([]domain.Order, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit)
}

type stubPublisher struct {
	mu       sync.Mutex
	messages []EmailJobMessage
	err      error
}

func (s *stubPublisher) PublishEmailJob(_ context.Context, message EmailJobMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.messages = append(s.messages, message)
	return fmt.Sprintf("msg-%d", len(s.messages)), nil
}
