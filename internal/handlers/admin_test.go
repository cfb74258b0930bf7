package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/silkthread/api/internal/domain"
	"github.com/silkthread/api/internal/services"
	"github.com/silkthread/api/internal/supplier"
)

func newAdminRouter(t *testing.T, deps AdminHandlersDeps) http.Handler {
	t.Helper()
	admin, err := NewAdminHandlers(deps)
	if err != nil {
		t.Fatalf("NewAdminHandlers: %v", err)
	}
	return NewRouter(WithAdminRoutes(admin.Routes()))
}

func TestRetryConversionSucceeds(t *testing.T) {
	var converted string
	router := newAdminRouter(t, AdminHandlersDeps{
		Converter: &stubConversionService{
			convertFn: func(_ context.Context, orderID string) error {
				converted = orderID
				return nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/o1/retry-conversion", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if converted != "o1" {
		t.Fatalf("converted order = %q, want o1", converted)
	}
}

func TestRetryConversionPropagatesFailure(t *testing.T) {
	router := newAdminRouter(t, AdminHandlersDeps{
		Converter: &stubConversionService{
			convertFn: func(context.Context, string) error {
				return errors.New("supplier rejected the order")
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/o1/retry-conversion", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "supplier rejected the order") {
		t.Fatalf("body = %s, want supplier error surfaced", rec.Body.String())
	}
}

func TestListUnconverted(t *testing.T) {
	router := newAdminRouter(t, AdminHandlersDeps{
		Converter: &stubConversionService{
			listFn: func(_ context.Context, limit int) ([]domain.Order, error) {
				if limit != 10 {
					t.Fatalf("limit = %d, want 10", limit)
				}
				return []domain.Order{{ID: "o1"}, {ID: "o2"}}, nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/orders/unconverted?limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Count != 2 {
		t.Fatalf("count = %d, want 2", body.Count)
	}
}

func TestSyncProductsEndpoint(t *testing.T) {
	router := newAdminRouter(t, AdminHandlersDeps{
		Converter: &stubConversionService{},
		Catalog: &stubCatalogService{
			syncFn: func(_ context.Context, keyword string, pages int) (services.SyncReport, error) {
				if keyword != "scarf" || pages != 2 {
					t.Fatalf("sync args = %q/%d", keyword, pages)
				}
				return services.SyncReport{Keyword: keyword, PagesWanted: pages, Imported: 7}, nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/products/sync", strings.NewReader(`{"keyword":"scarf","pages":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var report services.SyncReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Imported != 7 {
		t.Fatalf("imported = %d, want 7", report.Imported)
	}
}

func TestRegisterSupplierWebhooks(t *testing.T) {
	var gotStatus, gotTracking string
	router := newAdminRouter(t, AdminHandlersDeps{
		Converter: &stubConversionService{},
		Webhooks: &stubSupplierWebhookService{
			registerFn: func(_ context.Context, statusURL, trackingURL string) error {
				gotStatus, gotTracking = statusURL, trackingURL
				return nil
			},
		},
	})

	body := `{"statusUrl":"https://api.example.com/webhooks/supplier/status","trackingUrl":"https://api.example.com/webhooks/supplier/tracking"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/supplier/webhooks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotStatus == "" || gotTracking == "" {
		t.Fatal("expected both callback URLs to reach the service")
	}
}

func TestSupplierOrderReturnsDetail(t *testing.T) {
	router := newAdminRouter(t, AdminHandlersDeps{
		Converter: &stubConversionService{},
		Webhooks: &stubSupplierWebhookService{
			orderFn: func(_ context.Context, orderID string) (supplier.OrderDetail, error) {
				if orderID != "o1" {
					t.Fatalf("unexpected order id %q", orderID)
				}
				return supplier.OrderDetail{OrderID: "CJ-1", OrderStatus: "SHIPPED"}, nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/orders/o1/supplier", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var detail supplier.OrderDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.OrderID != "CJ-1" || detail.OrderStatus != "SHIPPED" {
		t.Fatalf("unexpected detail %+v", detail)
	}
}

func TestSupplierOrderUnconvertedConflicts(t *testing.T) {
	router := newAdminRouter(t, AdminHandlersDeps{
		Converter: &stubConversionService{},
		Webhooks: &stubSupplierWebhookService{
			orderFn: func(context.Context, string) (supplier.OrderDetail, error) {
				return supplier.OrderDetail{}, services.ErrOrderNotConverted
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/orders/o1/supplier", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}
