// Package catalog はMini Appへ返す商品・カテゴリ・タグの参照と、クーポンの事前検証を提供する。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/tgshop/internal/model"
)

// ErrUnavailable はWooCommerceのカタログAPIが失敗したことを示す。
var ErrUnavailable = errors.New("catalog unavailable")

// wcDateLayout はWooCommerceが返すタイムゾーンなしの日時形式。
const wcDateLayout = "2006-01-02T15:04:05"

// Store はWooCommerceのカタログAPIのうちServiceが利用する部分。
type Store interface {
	ListProducts(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListCategories(ctx context.Context, parent int64, hideEmpty bool) ([]model.Category, error)
	ListTags(ctx context.Context, hideEmpty bool) ([]model.Tag, error)
	FindCouponByCode(ctx context.Context, code string) (*model.Coupon, error)
}

// Sanitizer は商品説明HTMLのサニタイズインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// CouponValidation はクーポンの事前検証結果。
// 最低購入金額や対象商品の制限は注文作成時にWooCommerceが検証する。
type CouponValidation struct {
	Valid        bool   `json:"valid"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	DiscountType string `json:"discount_type,omitempty"`
	Amount       string `json:"amount,omitempty"`
}

// Service はカタログ参照のユースケースを提供する。
type Service struct {
	store     Store
	sanitizer Sanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(store Store, sanitizer Sanitizer, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// ListProducts は購入可能な商品の一覧を返す。
func (s *Service) ListProducts(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error) {
	page, err := s.store.ListProducts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: 商品一覧の取得に失敗しました: %w", ErrUnavailable, err)
	}
	for i := range page.Products {
		s.sanitizeProduct(&page.Products[i])
	}
	return page, nil
}

// GetProduct は商品を1件返す。
func (s *Service) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: 商品の取得に失敗しました: %w", ErrUnavailable, err)
	}
	if p == nil || (p.Status != "" && p.Status != "publish") {
		return nil, model.NewProductNotFoundError(id)
	}
	s.sanitizeProduct(p)
	return p, nil
}

// ListCategories はカテゴリ一覧を返す。parentが負の場合は全階層を返す。
func (s *Service) ListCategories(ctx context.Context, parent int64, hideEmpty bool) ([]model.Category, error) {
	categories, err := s.store.ListCategories(ctx, parent, hideEmpty)
	if err != nil {
		return nil, fmt.Errorf("%w: カテゴリ一覧の取得に失敗しました: %w", ErrUnavailable, err)
	}
	for i := range categories {
		categories[i].Description = s.sanitizer.Sanitize(categories[i].Description)
	}
	if categories == nil {
		categories = []model.Category{}
	}
	return categories, nil
}

// ListTags はタグ一覧を返す。
func (s *Service) ListTags(ctx context.Context, hideEmpty bool) ([]model.Tag, error) {
	tags, err := s.store.ListTags(ctx, hideEmpty)
	if err != nil {
		return nil, fmt.Errorf("%w: タグ一覧の取得に失敗しました: %w", ErrUnavailable, err)
	}
	if tags == nil {
		tags = []model.Tag{}
	}
	return tags, nil
}

// ValidateCoupon はクーポンの存在・有効期限・利用回数上限を検証する。
// 無効なクーポンはエラーではなく Valid=false の結果として返す。
func (s *Service) ValidateCoupon(ctx context.Context, code string) (*CouponValidation, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.NewEmptyCouponCodeError()
	}

	coupon, err := s.store.FindCouponByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: クーポンの取得に失敗しました: %w", ErrUnavailable, err)
	}
	if coupon == nil {
		return &CouponValidation{Code: code, Message: "クーポンが見つからないか、無効です。"}, nil
	}

	if expires, ok := s.couponExpiry(coupon); ok && !s.now().Before(expires) {
		return &CouponValidation{Code: code, Message: "クーポンの有効期限が切れています。"}, nil
	}
	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return &CouponValidation{Code: code, Message: "クーポンの利用回数の上限に達しています。"}, nil
	}

	return &CouponValidation{
		Valid:        true,
		Code:         coupon.Code,
		Message:      "クーポンを適用できます。",
		DiscountType: coupon.DiscountType,
		Amount:       coupon.Amount,
	}, nil
}

// couponExpiry は有効期限を返す。GMTの値を優先し、なければサイト時刻の値をUTCとして扱う。
func (s *Service) couponExpiry(c *model.Coupon) (time.Time, bool) {
	for _, v := range []*string{c.DateExpiresGMT, c.DateExpires} {
		if v == nil || *v == "" {
			continue
		}
		if t, err := parseWCDate(*v); err == nil {
			return t, true
		}
		s.logger.Warn("クーポンの有効期限を解釈できません",
			slog.String("code", c.Code),
			slog.String("value", *v),
		)
	}
	return time.Time{}, false
}

func parseWCDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(wcDateLayout, v, time.UTC)
}

func (s *Service) sanitizeProduct(p *model.Product) {
	p.Description = s.sanitizer.Sanitize(p.Description)
	p.ShortDescription = s.sanitizer.Sanitize(p.ShortDescription)
}
