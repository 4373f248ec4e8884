package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/tgshop/internal/model"
	"github.com/hitoshi/tgshop/internal/security"
)

type mockStore struct {
	listProductsFn   func(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error)
	getProductFn     func(ctx context.Context, id int64) (*model.Product, error)
	listCategoriesFn func(ctx context.Context, parent int64, hideEmpty bool) ([]model.Category, error)
	listTagsFn       func(ctx context.Context, hideEmpty bool) ([]model.Tag, error)
	findCouponFn     func(ctx context.Context, code string) (*model.Coupon, error)
}

func (m *mockStore) ListProducts(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error) {
	if m.listProductsFn != nil {
		return m.listProductsFn(ctx, q)
	}
	return &model.ProductPage{}, nil
}

func (m *mockStore) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	if m.getProductFn != nil {
		return m.getProductFn(ctx, id)
	}
	return nil, nil
}

func (m *mockStore) ListCategories(ctx context.Context, parent int64, hideEmpty bool) ([]model.Category, error) {
	if m.listCategoriesFn != nil {
		return m.listCategoriesFn(ctx, parent, hideEmpty)
	}
	return nil, nil
}

func (m *mockStore) ListTags(ctx context.Context, hideEmpty bool) ([]model.Tag, error) {
	if m.listTagsFn != nil {
		return m.listTagsFn(ctx, hideEmpty)
	}
	return nil, nil
}

func (m *mockStore) FindCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	if m.findCouponFn != nil {
		return m.findCouponFn(ctx, code)
	}
	return nil, nil
}

var _ Store = (*mockStore)(nil)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store Store) *Service {
	s := NewService(store, security.NewContentSanitizer(), slog.New(slog.NewJSONHandler(io.Discard, nil)))
	s.now = func() time.Time { return testNow }
	return s
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestListProducts_SanitizesDescriptions(t *testing.T) {
	store := &mockStore{
		listProductsFn: func(_ context.Context, q model.ProductQuery) (*model.ProductPage, error) {
			if q.Category != "5" {
				t.Errorf("Category = %q", q.Category)
			}
			return &model.ProductPage{
				Products: []model.Product{{
					ID:               1,
					Description:      `<p>説明</p><script>alert(1)</script>`,
					ShortDescription: `<img src="http://x/a.png" onerror="x()">短い説明`,
				}},
				Total: 1, TotalPages: 1,
			}, nil
		},
	}
	s := newTestService(store)

	page, err := s.ListProducts(context.Background(), model.ProductQuery{Category: "5"})
	if err != nil {
		t.Fatalf("ListProducts がエラーを返した: %v", err)
	}
	p := page.Products[0]
	if strings.Contains(p.Description, "script") || !strings.Contains(p.Description, "<p>説明</p>") {
		t.Errorf("Description = %q", p.Description)
	}
	if strings.Contains(p.ShortDescription, "onerror") || !strings.Contains(p.ShortDescription, "短い説明") {
		t.Errorf("ShortDescription = %q", p.ShortDescription)
	}
}

func TestListProducts_Error(t *testing.T) {
	s := newTestService(&mockStore{
		listProductsFn: func(_ context.Context, _ model.ProductQuery) (*model.ProductPage, error) {
			return nil, errors.New("timeout")
		},
	})

	if _, err := s.ListProducts(context.Background(), model.ProductQuery{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestGetProduct(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		s := newTestService(&mockStore{
			getProductFn: func(_ context.Context, id int64) (*model.Product, error) {
				return &model.Product{ID: id, Status: "publish", Description: "<b>太字</b>"}, nil
			},
		})
		p, err := s.GetProduct(context.Background(), 3)
		if err != nil {
			t.Fatalf("GetProduct がエラーを返した: %v", err)
		}
		if p.ID != 3 || p.Description != "<b>太字</b>" {
			t.Errorf("product = %+v", p)
		}
	})

	t.Run("not found", func(t *testing.T) {
		s := newTestService(&mockStore{})
		_, err := s.GetProduct(context.Background(), 3)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProductNotFound {
			t.Errorf("err = %v, want PRODUCT_NOT_FOUND", err)
		}
	})

	t.Run("draft is hidden", func(t *testing.T) {
		s := newTestService(&mockStore{
			getProductFn: func(_ context.Context, id int64) (*model.Product, error) {
				return &model.Product{ID: id, Status: "draft"}, nil
			},
		})
		_, err := s.GetProduct(context.Background(), 3)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProductNotFound {
			t.Errorf("err = %v, want PRODUCT_NOT_FOUND", err)
		}
	})
}

func TestListCategoriesAndTags_EmptyIsNotNil(t *testing.T) {
	var gotParent int64
	var gotHide bool
	s := newTestService(&mockStore{
		listCategoriesFn: func(_ context.Context, parent int64, hideEmpty bool) ([]model.Category, error) {
			gotParent, gotHide = parent, hideEmpty
			return nil, nil
		},
	})

	categories, err := s.ListCategories(context.Background(), 0, true)
	if err != nil || categories == nil {
		t.Errorf("ListCategories = %v, %v", categories, err)
	}
	if gotParent != 0 || !gotHide {
		t.Errorf("parent = %d, hideEmpty = %v", gotParent, gotHide)
	}

	tags, err := s.ListTags(context.Background(), true)
	if err != nil || tags == nil {
		t.Errorf("ListTags = %v, %v", tags, err)
	}
}

func TestValidateCoupon(t *testing.T) {
	tests := []struct {
		name      string
		coupon    *model.Coupon
		wantValid bool
		wantMsg   string
	}{
		{
			name:      "存在しない",
			coupon:    nil,
			wantValid: false,
			wantMsg:   "見つからない",
		},
		{
			name:      "有効",
			coupon:    &model.Coupon{Code: "spring10", Amount: "10.00", DiscountType: "percent"},
			wantValid: true,
		},
		{
			name:      "期限切れ(GMT)",
			coupon:    &model.Coupon{Code: "old", DateExpiresGMT: strPtr("2026-04-30T23:59:59")},
			wantValid: false,
			wantMsg:   "有効期限",
		},
		{
			name:      "期限がちょうど現在",
			coupon:    &model.Coupon{Code: "now", DateExpiresGMT: strPtr("2026-05-01T12:00:00")},
			wantValid: false,
			wantMsg:   "有効期限",
		},
		{
			name:      "期限内",
			coupon:    &model.Coupon{Code: "future", DateExpires: strPtr("2026-06-01T00:00:00")},
			wantValid: true,
		},
		{
			name:      "解釈できない期限は無視",
			coupon:    &model.Coupon{Code: "weird", DateExpires: strPtr("someday")},
			wantValid: true,
		},
		{
			name:      "利用上限に到達",
			coupon:    &model.Coupon{Code: "limited", UsageLimit: intPtr(5), UsageCount: 5},
			wantValid: false,
			wantMsg:   "上限",
		},
		{
			name:      "利用上限未満",
			coupon:    &model.Coupon{Code: "limited", UsageLimit: intPtr(5), UsageCount: 4},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(&mockStore{
				findCouponFn: func(_ context.Context, code string) (*model.Coupon, error) {
					if code != "SPRING10" {
						t.Errorf("code = %q, want trimmed SPRING10", code)
					}
					return tt.coupon, nil
				},
			})

			got, err := s.ValidateCoupon(context.Background(), "  SPRING10 ")
			if err != nil {
				t.Fatalf("ValidateCoupon がエラーを返した: %v", err)
			}
			if got.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (message=%q)", got.Valid, tt.wantValid, got.Message)
			}
			if tt.wantMsg != "" && !strings.Contains(got.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want to contain %q", got.Message, tt.wantMsg)
			}
		})
	}
}

func TestValidateCoupon_Errors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s := newTestService(&mockStore{})
		_, err := s.ValidateCoupon(context.Background(), "   ")
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmptyCouponCode {
			t.Errorf("err = %v, want EMPTY_COUPON_CODE", err)
		}
	})

	t.Run("backend", func(t *testing.T) {
		s := newTestService(&mockStore{
			findCouponFn: func(_ context.Context, _ string) (*model.Coupon, error) {
				return nil, errors.New("503")
			},
		})
		if _, err := s.ValidateCoupon(context.Background(), "X"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("err = %v, want ErrUnavailable", err)
		}
	})
}
