package handlers

import (
	"context"

	domain "github.com/silkthread/api/internal/domain"
	"github.com/silkthread/api/internal/payments"
	"github.com/silkthread/api/internal/services"
	"github.com/silkthread/api/internal/supplier"
)

type stubPaymentWebhookService struct {
	handleFn func(ctx context.Context, payload []byte, signature string) error
}

func (s *stubPaymentWebhookService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	return s.handleFn(ctx, payload, signature)
}

type stubSupplierWebhookService struct {
	statusFn   func(ctx context.Context, payload services.StatusWebhookPayload) error
	trackingFn func(ctx context.Context, payload services.TrackingWebhookPayload) error
	registerFn func(ctx context.Context, statusURL, trackingURL string) error
	orderFn    func(ctx context.Context, orderID string) (supplier.OrderDetail, error)
}

func (s *stubSupplierWebhookService) ApplyStatus(ctx context.Context, payload services.StatusWebhookPayload) error {
	if s.statusFn == nil {
		return nil
	}
	return s.statusFn(ctx, payload)
}

func (s *stubSupplierWebhookService) ApplyTracking(ctx context.Context, payload services.TrackingWebhookPayload) error {
	if s.trackingFn == nil {
		return nil
	}
	return s.trackingFn(ctx, payload)
}

func (s *stubSupplierWebhookService) RegisterWebhooks(ctx context.Context, statusURL, trackingURL string) error {
	if s.registerFn == nil {
		return nil
	}
	return s.registerFn(ctx, statusURL, trackingURL)
}

func (s *stubSupplierWebhookService) SupplierOrder(ctx context.Context, orderID string) (supplier.OrderDetail, error) {
	if s.orderFn == nil {
		return supplier.OrderDetail{}, services.ErrOrderNotConverted
	}
	return s.orderFn(ctx, orderID)
}

type stubConversionService struct {
	convertFn func(ctx context.Context, orderID string) error
	listFn    func(ctx context.Context, limit int) ([]domain.Order, error)
}

func (s *stubConversionService) Convert(ctx context.Context, orderID string) error {
	if s.convertFn == nil {
		return nil
	}
	return s.convertFn(ctx, orderID)
}

func (s *stubConversionService) ListUnconverted(ctx context.Context, limit int) ([]domain.Order, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit)
}

type stubCatalogService struct {
	syncFn     func(ctx context.Context, keyword string, pages int) (services.SyncReport, error)
	estimateFn func(ctx context.Context, req services.FreightEstimateRequest) (services.FreightEstimate, error)
}

func (s *stubCatalogService) SyncProducts(ctx context.Context, keyword string, pages int) (services.SyncReport, error) {
	if s.syncFn == nil {
		return services.SyncReport{}, nil
	}
	return s.syncFn(ctx, keyword, pages)
}

func (s *stubCatalogService) EstimateFreight(ctx context.Context, req services.FreightEstimateRequest) (services.FreightEstimate, error) {
	if s.estimateFn == nil {
		return services.FreightEstimate{}, nil
	}
	return s.estimateFn(ctx, req)
}

type stubCheckoutService struct {
	createFn func(ctx context.Context, orderID string) (payments.CheckoutSession, error)
}

func (s *stubCheckoutService) CreateSession(ctx context.Context, orderID string) (payments.CheckoutSession, error) {
	return s.createFn(ctx, orderID)
}

type stubSystemService struct {
	healthFn func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubSystemService) Health(ctx context.Context) (domain.SystemHealthReport, error) {
	return s.healthFn(ctx)
}
