package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/silkthread/api/internal/domain"
	"github.com/silkthread/api/internal/repositories"
	"github.com/silkthread/api/internal/supplier"
)

type conversionService struct {
	orders        repositories.OrderRepository
	products      repositories.ProductRepository
	gateway       SupplierGateway
	fromCountry   string
	logisticsName string
	clock         func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
}

// ConversionServiceDeps bundles constructor inputs for the converter.
type ConversionServiceDeps struct {
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Gateway  SupplierGateway
	// FromCountryCode hints which supplier region ships the order. The
	// supplier picks the warehouse itself; no warehouse id is ever forced.
	FromCountryCode string
	LogisticsName   string
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

// NewConversionService creates the order-to-supplier converter.
func NewConversionService(deps ConversionServiceDeps) (ConversionService, error) {
	if deps.Orders == nil {
		return nil, errors.New("conversion service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("conversion service: product repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("conversion service: supplier gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &conversionService{
		orders:        deps.Orders,
		products:      deps.Products,
		gateway:       deps.Gateway,
		fromCountry:   strings.TrimSpace(deps.FromCountryCode),
		logisticsName: strings.TrimSpace(deps.LogisticsName),
		clock:         func() time.Time { return clock().UTC() },
		logger:        logger,
	}, nil
}

// Convert places a supplier purchase order for a paid local order at most
// once. The claim is an atomic conditional write in the repository, so two
// concurrent invocations for the same order see exactly one proceed; the
// loser observes a conflict and returns as a no-op.
func (s *conversionService) Convert(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("conversion: order id is required")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("conversion: load order %s: %w", orderID, err)
	}
	if order.Converted() {
		s.logger(ctx, "conversion.already_converted", map[string]any{
			"orderId":         order.ID,
			"supplierOrderId": order.SupplierOrderID,
		})
		return nil
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		return fmt.Errorf("conversion: order %s is not paid", orderID)
	}
	if order.ShippingAddress == nil {
		return fmt.Errorf("conversion: order %s has no shipping address", orderID)
	}

	if err := s.orders.ClaimSupplierConversion(ctx, orderID); err != nil {
		if isConflict(err) {
			s.logger(ctx, "conversion.claim_lost", map[string]any{
				"orderId": orderID,
			})
			return nil
		}
		return fmt.Errorf("conversion: claim order %s: %w", orderID, err)
	}

	req := s.buildRequest(ctx, order)

	result, err := s.gateway.CreateOrder(ctx, req)
	if err != nil {
		s.recordFailure(ctx, orderID, err)
		return fmt.Errorf("conversion: create supplier order for %s: %w", orderID, err)
	}

	noError := ""
	update := repositories.OrderUpdate{
		SupplierOrderID:     &result.OrderID,
		SupplierOrderNumber: &result.OrderNumber,
		SupplierLastOrderID: &result.OrderID,
		SupplierError:       &noError,
	}
	if err := s.orders.Update(ctx, orderID, update); err != nil {
		// The supplier order exists; the claim sentinel stays in place so no
		// duplicate is ever created, and the ids surface on the next webhook.
		s.logger(ctx, "conversion.record_failed", map[string]any{
			"orderId":         orderID,
			"supplierOrderId": result.OrderID,
			"error":           err.Error(),
		})
		return fmt.Errorf("conversion: record supplier order for %s: %w", orderID, err)
	}

	s.logger(ctx, "conversion.converted", map[string]any{
		"orderId":          orderID,
		"supplierOrderId":  result.OrderID,
		"supplierOrderNum": result.OrderNumber,
	})
	return nil
}

// ListUnconverted surfaces paid orders awaiting a supplier purchase order.
func (s *conversionService) ListUnconverted(ctx context.Context, limit int) ([]Order, error) {
	return s.orders.ListUnconverted(ctx, limit)
}

func (s *conversionService) buildRequest(ctx context.Context, order domain.Order) supplier.CreateOrderRequest {
	addr := order.ShippingAddress

	orderNumber := order.OrderNumber
	if orderNumber == "" {
		orderNumber = order.ID
	}

	products := make([]supplier.OrderProduct, 0, len(order.Items))
	for _, item := range order.Items {
		products = append(products, supplier.OrderProduct{
			VariantID: s.resolveVariant(ctx, order.ID, item),
			Quantity:  item.Quantity,
		})
	}

	return supplier.CreateOrderRequest{
		OrderNumber:      orderNumber,
		ShippingName:     addr.Name,
		ShippingPhone:    addr.Phone,
		ShippingAddress:  joinAddressLines(addr.Line1, addr.Line2),
		ShippingCity:     addr.City,
		ShippingProvince: addr.State,
		ShippingZip:      addr.PostalCode,
		ShippingCountry:  addr.CountryCode,
		FromCountryCode:  s.fromCountry,
		LogisticsName:    s.logisticsName,
		Products:         products,
	}
}

// resolveVariant maps a line item to a supplier variant id. Resolution order:
// the product's per-color variant for the item's color, the product's default
// variant, then the local product id as a degraded placeholder. An incomplete
// mapping never aborts the conversion.
func (s *conversionService) resolveVariant(ctx context.Context, orderID string, item domain.OrderItem) string {
	color := item.Color
	if color == "" {
		_, color = splitColorSuffix(item.Name)
	}

	product, err := s.products.FindByID(ctx, item.ProductID)
	if err != nil {
		s.logger(ctx, "conversion.variant_fallback", map[string]any{
			"orderId":   orderID,
			"productId": item.ProductID,
			"reason":    "product lookup failed",
		})
		return item.ProductID
	}

	if color != "" {
		if vid, ok := product.VariantForColor(color); ok {
			return vid
		}
	}
	if product.SupplierVariantID != "" {
		return product.SupplierVariantID
	}

	s.logger(ctx, "conversion.variant_fallback", map[string]any{
		"orderId":   orderID,
		"productId": item.ProductID,
		"reason":    "no variant mapping",
	})
	return item.ProductID
}

func (s *conversionService) recordFailure(ctx context.Context, orderID string, cause error) {
	msg := cause.Error()
	if err := s.orders.Update(ctx, orderID, repositories.OrderUpdate{SupplierError: &msg}); err != nil {
		s.logger(ctx, "conversion.record_error_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
	}
	if err := s.orders.ReleaseSupplierConversion(ctx, orderID); err != nil {
		s.logger(ctx, "conversion.release_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
	}
}

// splitColorSuffix parses the storefront "<name> - <color>" display pattern.
func splitColorSuffix(name string) (base, color string) {
	idx := strings.LastIndex(name, " - ")
	if idx < 0 {
		return name, ""
	}
	base = strings.TrimSpace(name[:idx])
	color = strings.TrimSpace(name[idx+3:])
	if base == "" || color == "" {
		return name, ""
	}
	return base, color
}

func joinAddressLines(line1, line2 string) string {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)
	if line2 == "" {
		return line1
	}
	return line1 + ", " + line2
}
