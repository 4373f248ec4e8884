package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tgshop/internal/analytics"
	"github.com/hitoshi/tgshop/internal/auth"
	"github.com/hitoshi/tgshop/internal/cart"
	"github.com/hitoshi/tgshop/internal/catalog"
	"github.com/hitoshi/tgshop/internal/customer"
	"github.com/hitoshi/tgshop/internal/middleware"
	"github.com/hitoshi/tgshop/internal/model"
	"github.com/hitoshi/tgshop/internal/order"
)

// --- モック定義 ---

// mockCartService はCartServiceInterfaceのモック実装。
type mockCartService struct {
	getFn     func(ctx context.Context, customerID int64) (*model.ReconciledCart, error)
	replaceFn func(ctx context.Context, customerID int64, entries []model.CartEntry) ([]model.CartEntry, error)
}

func (m *mockCartService) Get(ctx context.Context, customerID int64) (*model.ReconciledCart, error) {
	if m.getFn != nil {
		return m.getFn(ctx, customerID)
	}
	return &model.ReconciledCart{}, nil
}

func (m *mockCartService) Replace(ctx context.Context, customerID int64, entries []model.CartEntry) ([]model.CartEntry, error) {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, customerID, entries)
	}
	return entries, nil
}

// mockProfileService はProfileServiceInterfaceのモック実装。
type mockProfileService struct {
	getFn    func(ctx context.Context, customerID int64) (*model.Customer, error)
	updateFn func(ctx context.Context, customerID int64, in customer.ProfileUpdate) (*model.Customer, error)
}

func (m *mockProfileService) Get(ctx context.Context, customerID int64) (*model.Customer, error) {
	if m.getFn != nil {
		return m.getFn(ctx, customerID)
	}
	return &model.Customer{ID: customerID}, nil
}

func (m *mockProfileService) Update(ctx context.Context, customerID int64, in customer.ProfileUpdate) (*model.Customer, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, customerID, in)
	}
	return &model.Customer{ID: customerID}, nil
}

// mockOrderService はOrderServiceInterfaceのモック実装。
type mockOrderService struct {
	createFn       func(ctx context.Context, customerID int64, buyer *auth.Claim, in order.CreateInput) (*model.Order, error)
	listMineFn     func(ctx context.Context, customerID int64, page, perPage int) (*model.OrderPage, error)
	listFn         func(ctx context.Context, q model.OrderQuery) (*model.OrderPage, error)
	getFn          func(ctx context.Context, id int64) (*model.Order, error)
	updateStatusFn func(ctx context.Context, id int64, status string) (*model.Order, error)
}

func (m *mockOrderService) Create(ctx context.Context, customerID int64, buyer *auth.Claim, in order.CreateInput) (*model.Order, error) {
	if m.createFn != nil {
		return m.createFn(ctx, customerID, buyer, in)
	}
	return &model.Order{ID: 1}, nil
}

func (m *mockOrderService) ListMine(ctx context.Context, customerID int64, page, perPage int) (*model.OrderPage, error) {
	if m.listMineFn != nil {
		return m.listMineFn(ctx, customerID, page, perPage)
	}
	return &model.OrderPage{}, nil
}

func (m *mockOrderService) List(ctx context.Context, q model.OrderQuery) (*model.OrderPage, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return &model.OrderPage{}, nil
}

func (m *mockOrderService) Get(ctx context.Context, id int64) (*model.Order, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &model.Order{ID: id}, nil
}

func (m *mockOrderService) UpdateStatus(ctx context.Context, id int64, status string) (*model.Order, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return &model.Order{ID: id, Status: status}, nil
}

// mockCatalogService はCatalogServiceInterfaceのモック実装。
type mockCatalogService struct {
	listProductsFn   func(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error)
	getProductFn     func(ctx context.Context, id int64) (*model.Product, error)
	listCategoriesFn func(ctx context.Context, parent int64, hideEmpty bool) ([]model.Category, error)
	listTagsFn       func(ctx context.Context, hideEmpty bool) ([]model.Tag, error)
	validateCouponFn func(ctx context.Context, code string) (*catalog.CouponValidation, error)
}

func (m *mockCatalogService) ListProducts(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error) {
	if m.listProductsFn != nil {
		return m.listProductsFn(ctx, q)
	}
	return &model.ProductPage{}, nil
}

func (m *mockCatalogService) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	if m.getProductFn != nil {
		return m.getProductFn(ctx, id)
	}
	return &model.Product{ID: id}, nil
}

func (m *mockCatalogService) ListCategories(ctx context.Context, parent int64, hideEmpty bool) ([]model.Category, error) {
	if m.listCategoriesFn != nil {
		return m.listCategoriesFn(ctx, parent, hideEmpty)
	}
	return []model.Category{}, nil
}

func (m *mockCatalogService) ListTags(ctx context.Context, hideEmpty bool) ([]model.Tag, error) {
	if m.listTagsFn != nil {
		return m.listTagsFn(ctx, hideEmpty)
	}
	return []model.Tag{}, nil
}

func (m *mockCatalogService) ValidateCoupon(ctx context.Context, code string) (*catalog.CouponValidation, error) {
	if m.validateCouponFn != nil {
		return m.validateCouponFn(ctx, code)
	}
	return &catalog.CouponValidation{Code: code}, nil
}

// mockAnalyticsService はAnalyticsServiceInterfaceのモック実装。
type mockAnalyticsService struct {
	trackFn    func(customerID int64, eventType string, eventData json.RawMessage) error
	dauFn      func(ctx context.Context) (*analytics.DailyActive, error)
	topViewsFn func(ctx context.Context, limit int) ([]model.ProductViews, error)
}

func (m *mockAnalyticsService) Track(customerID int64, eventType string, eventData json.RawMessage) error {
	if m.trackFn != nil {
		return m.trackFn(customerID, eventType, eventData)
	}
	return nil
}

func (m *mockAnalyticsService) DailyActiveCustomers(ctx context.Context) (*analytics.DailyActive, error) {
	if m.dauFn != nil {
		return m.dauFn(ctx)
	}
	return &analytics.DailyActive{}, nil
}

func (m *mockAnalyticsService) TopViewedProducts(ctx context.Context, limit int) ([]model.ProductViews, error) {
	if m.topViewsFn != nil {
		return m.topViewsFn(ctx, limit)
	}
	return []model.ProductViews{}, nil
}

// コンパイル時にインターフェースの実装を検証する
var (
	_ CartServiceInterface      = (*mockCartService)(nil)
	_ ProfileServiceInterface   = (*mockProfileService)(nil)
	_ OrderServiceInterface     = (*mockOrderService)(nil)
	_ CatalogServiceInterface   = (*mockCatalogService)(nil)
	_ AnalyticsServiceInterface = (*mockAnalyticsService)(nil)

	_ CartServiceInterface      = (*cart.Service)(nil)
	_ ProfileServiceInterface   = (*customer.ProfileService)(nil)
	_ OrderServiceInterface     = (*order.Service)(nil)
	_ CatalogServiceInterface   = (*catalog.Service)(nil)
	_ AnalyticsServiceInterface = (*analytics.Service)(nil)
)

// --- テストヘルパー ---

// testClaim はテスト用の検証済み利用者情報。
func testClaim() *auth.Claim {
	return &auth.Claim{UserID: 555, FirstName: "Ivan", Username: "ivan"}
}

// withIdentity はテスト用にリクエストコンテキストに認証情報を注入するヘルパー。
func withIdentity(r *http.Request, customerID int64) *http.Request {
	ctx := middleware.ContextWithIdentity(r.Context(), testClaim(), customerID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
