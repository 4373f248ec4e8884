package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/hitoshi/tgshop/internal/catalog"
	"github.com/hitoshi/tgshop/internal/model"
)

func TestCatalogHandler_ListProducts_DefaultQuery(t *testing.T) {
	var got model.ProductQuery
	h := NewCatalogHandler(&mockCatalogService{
		listProductsFn: func(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error) {
			got = q
			return &model.ProductPage{
				Products:   []model.Product{{ID: 1, Name: "Tea"}},
				Total:      25,
				TotalPages: 3,
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	w := httptest.NewRecorder()
	h.ListProducts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Page != 1 || got.PerPage != 10 || got.OrderBy != "popularity" || got.Order != "desc" {
		t.Errorf("query = %+v", got)
	}
	if got.Featured != nil || got.OnSale != nil {
		t.Errorf("Featured/OnSale = %v/%v, want nil", got.Featured, got.OnSale)
	}

	var resp paginatedResponse[model.Product]
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.Count != 25 || len(resp.Results) != 1 {
		t.Errorf("count = %d, results = %d", resp.Count, len(resp.Results))
	}
	if resp.Next == nil || *resp.Next != "/api/v1/products?page=2" {
		t.Errorf("next = %v", resp.Next)
	}
	if resp.Previous != nil {
		t.Errorf("previous = %v, want nil", *resp.Previous)
	}
}

func TestCatalogHandler_ListProducts_ParsesFilters(t *testing.T) {
	var got model.ProductQuery
	h := NewCatalogHandler(&mockCatalogService{
		listProductsFn: func(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error) {
			got = q
			return &model.ProductPage{}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/products?page=3&per_page=20&category=15&tag=new&search=tea&featured=true&on_sale=false&orderby=price&order=ASC&include=3,5", nil)
	w := httptest.NewRecorder()
	h.ListProducts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Page != 3 || got.PerPage != 20 || got.Category != "15" || got.Tag != "new" || got.Search != "tea" {
		t.Errorf("query = %+v", got)
	}
	if got.Featured == nil || !*got.Featured {
		t.Errorf("Featured = %v, want true", got.Featured)
	}
	if got.OnSale == nil || *got.OnSale {
		t.Errorf("OnSale = %v, want false", got.OnSale)
	}
	if got.OrderBy != "price" || got.Order != "asc" {
		t.Errorf("OrderBy/Order = %q/%q", got.OrderBy, got.Order)
	}
	if !reflect.DeepEqual(got.Include, []int64{3, 5}) {
		t.Errorf("Include = %v", got.Include)
	}
}

func TestCatalogHandler_ListProducts_InvalidParams_Returns400(t *testing.T) {
	h := NewCatalogHandler(&mockCatalogService{
		listProductsFn: func(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error) {
			t.Error("ListProducts が呼ばれるべきではない")
			return nil, nil
		},
	})

	for _, query := range []string{
		"page=0",
		"per_page=101",
		"per_page=abc",
		"featured=maybe",
		"orderby=random",
		"order=up",
		"include=1,x",
	} {
		t.Run(query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/products?"+query, nil)
			w := httptest.NewRecorder()
			h.ListProducts(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestCatalogHandler_ListProducts_CatalogUnavailable_Returns502(t *testing.T) {
	h := NewCatalogHandler(&mockCatalogService{
		listProductsFn: func(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error) {
			return nil, fmt.Errorf("%w: connection refused", catalog.ErrUnavailable)
		},
	})

	w := httptest.NewRecorder()
	h.ListProducts(w, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestCatalogHandler_GetProduct_NotFound_Returns404(t *testing.T) {
	h := NewCatalogHandler(&mockCatalogService{
		getProductFn: func(ctx context.Context, id int64) (*model.Product, error) {
			return nil, model.NewProductNotFoundError(id)
		},
	})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/products/99", nil), "id", "99")
	w := httptest.NewRecorder()
	h.GetProduct(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if body := parseAPIErrorResponse(t, w); body["code"] != model.ErrCodeProductNotFound {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeProductNotFound)
	}
}

func TestCatalogHandler_ListCategories_Params(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		wantParent    int64
		wantHideEmpty bool
	}{
		{"defaults", "", -1, true},
		{"top level", "?parent=0", 0, true},
		{"show empty", "?parent=7&hide_empty=false", 7, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotParent int64
			var gotHide bool
			h := NewCatalogHandler(&mockCatalogService{
				listCategoriesFn: func(ctx context.Context, parent int64, hideEmpty bool) ([]model.Category, error) {
					gotParent, gotHide = parent, hideEmpty
					return []model.Category{}, nil
				},
			})

			w := httptest.NewRecorder()
			h.ListCategories(w, httptest.NewRequest(http.MethodGet, "/api/v1/categories"+tt.query, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if gotParent != tt.wantParent || gotHide != tt.wantHideEmpty {
				t.Errorf("args = (%d, %v), want (%d, %v)", gotParent, gotHide, tt.wantParent, tt.wantHideEmpty)
			}
		})
	}
}

func TestCatalogHandler_ListCategories_NegativeParent_Returns400(t *testing.T) {
	h := NewCatalogHandler(&mockCatalogService{})

	w := httptest.NewRecorder()
	h.ListCategories(w, httptest.NewRequest(http.MethodGet, "/api/v1/categories?parent=-3", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCatalogHandler_ListTags(t *testing.T) {
	h := NewCatalogHandler(&mockCatalogService{
		listTagsFn: func(ctx context.Context, hideEmpty bool) ([]model.Tag, error) {
			return []model.Tag{{ID: 1, Name: "new", Slug: "new"}}, nil
		},
	})

	w := httptest.NewRecorder()
	h.ListTags(w, httptest.NewRequest(http.MethodGet, "/api/v1/tags", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var tags []model.Tag
	if err := json.NewDecoder(w.Body).Decode(&tags); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if len(tags) != 1 || tags[0].Slug != "new" {
		t.Errorf("tags = %+v", tags)
	}
}

func TestCatalogHandler_ValidateCoupon(t *testing.T) {
	h := NewCatalogHandler(&mockCatalogService{
		validateCouponFn: func(ctx context.Context, code string) (*catalog.CouponValidation, error) {
			if code == "" {
				return nil, model.NewEmptyCouponCodeError()
			}
			return &catalog.CouponValidation{Valid: code == "SALE10", Code: code}, nil
		},
	})

	tests := []struct {
		name      string
		body      string
		status    int
		wantValid bool
	}{
		{"valid", `{"code":"SALE10"}`, http.StatusOK, true},
		{"unknown code is still 200", `{"code":"NOPE"}`, http.StatusOK, false},
		{"empty code", `{"code":""}`, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/coupons/validate", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			h.ValidateCoupon(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			var got catalog.CouponValidation
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("レスポンスのデコードに失敗: %v", err)
			}
			if got.Valid != tt.wantValid {
				t.Errorf("valid = %v, want %v", got.Valid, tt.wantValid)
			}
		})
	}
}
