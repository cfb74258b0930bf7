package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	domain "github.com/silkthread/api/internal/domain"
	"github.com/silkthread/api/internal/repositories"
	"github.com/silkthread/api/internal/supplier"
)

const (
	defaultSyncPageSize    = 20
	defaultRateBackoff     = 2 * time.Second
	defaultFreightFallback = int64(1500)
)

type catalogSyncService struct {
	gateway         SupplierGateway
	products        repositories.ProductRepository
	shipFromCountry string
	destCountry     string
	rateBackoff     time.Duration
	freightFallback int64
	sleep           func(ctx context.Context, d time.Duration) error
	logger          func(ctx context.Context, event string, fields map[string]any)
}

// CatalogSyncServiceDeps bundles constructor inputs for the catalog sync service.
type CatalogSyncServiceDeps struct {
	Gateway         SupplierGateway
	Products        repositories.ProductRepository
	ShipFromCountry string
	DestCountry     string
	RateBackoff     time.Duration
	// FreightFallback is the flat estimate returned when the supplier cannot
	// price a variant, in the smallest currency unit.
	FreightFallback int64
	Sleep           func(ctx context.Context, d time.Duration) error
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

// NewCatalogSyncService creates the supplier catalog importer and freight
// estimator.
func NewCatalogSyncService(deps CatalogSyncServiceDeps) (CatalogSyncService, error) {
	if deps.Gateway == nil {
		return nil, errors.New("catalog sync service: supplier gateway is required")
	}
	if deps.Products == nil {
		return nil, errors.New("catalog sync service: product repository is required")
	}

	backoff := deps.RateBackoff
	if backoff <= 0 {
		backoff = defaultRateBackoff
	}
	fallback := deps.FreightFallback
	if fallback <= 0 {
		fallback = defaultFreightFallback
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogSyncService{
		gateway:         deps.Gateway,
		products:        deps.Products,
		shipFromCountry: strings.TrimSpace(deps.ShipFromCountry),
		destCountry:     strings.TrimSpace(deps.DestCountry),
		rateBackoff:     backoff,
		freightFallback: fallback,
		sleep:           sleep,
		logger:          logger,
	}, nil
}

// SyncProducts imports up to pages of supplier catalog search results for the
// keyword. Calls are serialized; the supplier client spaces them itself, and
// a rate-limit response pauses the batch instead of aborting it. The returned
// report counts what happened even when the run ends early on a hard error.
func (s *catalogSyncService) SyncProducts(ctx context.Context, keyword string, pages int) (SyncReport, error) {
	keyword = strings.TrimSpace(keyword)
	if pages <= 0 {
		pages = 1
	}
	report := SyncReport{Keyword: keyword, PagesWanted: pages}

	for page := 1; page <= pages; page++ {
		result, err := s.searchWithBackoff(ctx, keyword, page, &report)
		if err != nil {
			return report, fmt.Errorf("catalog sync: search page %d: %w", page, err)
		}
		report.PagesFetched++

		for _, summary := range result.List {
			if summary.ProductID == "" {
				report.Skipped++
				continue
			}
			if err := s.importProduct(ctx, summary, &report); err != nil {
				return report, err
			}
		}

		if len(result.List) < result.PageSize || len(result.List) == 0 {
			break
		}
	}

	s.logger(ctx, "catalog.sync.done", map[string]any{
		"keyword":  keyword,
		"pages":    report.PagesFetched,
		"imported": report.Imported,
		"skipped":  report.Skipped,
	})
	return report, nil
}

func (s *catalogSyncService) searchWithBackoff(ctx context.Context, keyword string, page int, report *SyncReport) (supplier.ProductSearchResult, error) {
	result, err := s.gateway.SearchProducts(ctx, keyword, page, defaultSyncPageSize)
	if errors.Is(err, supplier.ErrRateLimited) {
		report.RateLimited++
		if sleepErr := s.sleep(ctx, s.rateBackoff); sleepErr != nil {
			return supplier.ProductSearchResult{}, sleepErr
		}
		result, err = s.gateway.SearchProducts(ctx, keyword, page, defaultSyncPageSize)
	}
	return result, err
}

func (s *catalogSyncService) importProduct(ctx context.Context, summary supplier.ProductSummary, report *SyncReport) error {
	detail, err := s.gateway.GetProductDetails(ctx, summary.ProductID)
	if errors.Is(err, supplier.ErrRateLimited) {
		report.RateLimited++
		if sleepErr := s.sleep(ctx, s.rateBackoff); sleepErr != nil {
			return sleepErr
		}
		detail, err = s.gateway.GetProductDetails(ctx, summary.ProductID)
	}
	if err != nil {
		if errors.Is(err, supplier.ErrNotFound) {
			s.logger(ctx, "catalog.sync.detail_missing", map[string]any{
				"supplierProductId": summary.ProductID,
			})
			report.Skipped++
			return nil
		}
		return fmt.Errorf("catalog sync: product %s: %w", summary.ProductID, err)
	}

	product := buildCatalogProduct(detail)
	if err := s.products.Upsert(ctx, product); err != nil {
		return fmt.Errorf("catalog sync: store product %s: %w", product.ID, err)
	}
	report.Imported++
	return nil
}

// EstimateFreight returns the cheapest supplier quote for the items, or the
// configured flat fallback when the supplier cannot price them.
func (s *catalogSyncService) EstimateFreight(ctx context.Context, req FreightEstimateRequest) (FreightEstimate, error) {
	if len(req.Items) == 0 {
		return FreightEstimate{}, errors.New("freight estimate: at least one item is required")
	}

	dest := strings.TrimSpace(req.DestCountryCode)
	if dest == "" {
		dest = s.destCountry
	}

	products := make([]supplier.FreightItem, 0, len(req.Items))
	for _, item := range req.Items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		products = append(products, supplier.FreightItem{
			VariantID: item.VariantID,
			Quantity:  quantity,
		})
	}

	options, err := s.gateway.CalculateFreight(ctx, supplier.FreightRequest{
		StartCountryCode: s.shipFromCountry,
		EndCountryCode:   dest,
		Products:         products,
		PostalCode:       strings.TrimSpace(req.PostalCode),
	})
	if err != nil {
		if errors.Is(err, supplier.ErrNotFound) {
			s.logger(ctx, "catalog.freight.fallback", map[string]any{
				"destCountry": dest,
			})
			return FreightEstimate{Amount: s.freightFallback, Fallback: true}, nil
		}
		return FreightEstimate{}, fmt.Errorf("freight estimate: %w", err)
	}
	if len(options) == 0 {
		return FreightEstimate{Amount: s.freightFallback, Fallback: true}, nil
	}

	cheapest := options[0]
	for _, option := range options[1:] {
		if option.Price < cheapest.Price {
			cheapest = option
		}
	}

	return FreightEstimate{
		LogisticsName: cheapest.LogisticsName,
		Amount:        int64(math.Round(cheapest.Price * 100)),
		AgingDays:     cheapest.AgingDays,
	}, nil
}

// buildCatalogProduct maps a supplier detail record into the local catalog
// shape used for variant resolution at conversion time.
func buildCatalogProduct(detail supplier.ProductDetail) domain.Product {
	product := domain.Product{
		ID:                detail.ProductID,
		Name:              detail.Name,
		Description:       detail.Description,
		ImageURL:          detail.ImageURL,
		SupplierProductID: detail.ProductID,
		Price:             parseSupplierPrice(detail.SellPrice),
	}

	for _, variant := range detail.Variants {
		if product.SupplierVariantID == "" {
			product.SupplierVariantID = variant.VariantID
		}
		if color := strings.TrimSpace(variant.Key); color != "" {
			product.ColorVariants = append(product.ColorVariants, domain.ColorVariant{
				Color:             color,
				SupplierVariantID: variant.VariantID,
			})
		}
	}
	return product
}

// parseSupplierPrice converts the supplier's decimal string price into the
// smallest currency unit, taking the lower bound of "a -- b" ranges.
func parseSupplierPrice(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if idx := strings.Index(raw, "--"); idx >= 0 {
		raw = strings.TrimSpace(raw[:idx])
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(value * 100))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
