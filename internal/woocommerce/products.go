package woocommerce

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/tgshop/internal/model"
)

// ListProducts は公開中の商品一覧を取得する。
// 在庫あり・取り寄せ可能以外の商品は除外する。総件数はWooCommerceのヘッダー値をそのまま返す。
func (c *Client) ListProducts(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error) {
	query := url.Values{}
	query.Set("status", "publish")
	query.Set("page", strconv.Itoa(max(q.Page, 1)))
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	query.Set("per_page", strconv.Itoa(min(perPage, MaxPerPage)))
	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = "popularity"
	}
	query.Set("orderby", orderBy)
	order := q.Order
	if order == "" {
		order = "desc"
	}
	query.Set("order", order)
	if q.Category != "" {
		query.Set("category", q.Category)
	}
	if q.Tag != "" {
		query.Set("tag", q.Tag)
	}
	if q.Search != "" {
		query.Set("search", q.Search)
	}
	if q.Featured != nil {
		query.Set("featured", strconv.FormatBool(*q.Featured))
	}
	if q.OnSale != nil {
		query.Set("on_sale", strconv.FormatBool(*q.OnSale))
	}
	if len(q.Include) > 0 {
		query.Set("include", joinIDs(q.Include))
	}

	var products []model.Product
	header, err := c.do(ctx, "list_products", http.MethodGet, "products", query, nil, &products)
	if err != nil {
		return nil, err
	}

	filtered := make([]model.Product, 0, len(products))
	for _, p := range products {
		if p.Purchasable() {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) != len(products) {
		c.logger.Info("在庫ステータスにより商品を除外しました",
			slog.Int("original", len(products)),
			slog.Int("remaining", len(filtered)),
		)
	}

	return &model.ProductPage{
		Products:   filtered,
		Total:      headerInt(header, "X-WP-Total"),
		TotalPages: headerInt(header, "X-WP-TotalPages"),
	}, nil
}

// ProductsByIDs は指定IDの商品スナップショットを1回のリクエストで取得する。
// 在庫切れの商品も含めて返す。存在しないIDは結果に含まれない。
func (c *Client) ProductsByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}
	if len(ids) > MaxPerPage {
		return nil, fmt.Errorf("woocommerce products_by_ids: 商品IDの数が上限を超えています: %d > %d", len(ids), MaxPerPage)
	}

	query := url.Values{}
	query.Set("include", joinIDs(ids))
	query.Set("per_page", strconv.Itoa(MaxPerPage))

	var products []model.Product
	if _, err := c.do(ctx, "products_by_ids", http.MethodGet, "products", query, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct は指定IDの商品を取得する。見つからない場合はnilを返す。
func (c *Client) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var product model.Product
	_, err := c.do(ctx, "get_product", http.MethodGet, "products/"+strconv.FormatInt(id, 10), nil, nil, &product)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListCategories は商品カテゴリ一覧を取得する。parentが0以上の場合はその直下のみを返す。
func (c *Client) ListCategories(ctx context.Context, parent int64, hideEmpty bool) ([]model.Category, error) {
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(MaxPerPage))
	query.Set("orderby", "name")
	query.Set("order", "asc")
	query.Set("hide_empty", strconv.FormatBool(hideEmpty))
	if parent >= 0 {
		query.Set("parent", strconv.FormatInt(parent, 10))
	}

	var categories []model.Category
	if _, err := c.do(ctx, "list_categories", http.MethodGet, "products/categories", query, nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// ListTags は商品タグ一覧を商品数の多い順に取得する。
func (c *Client) ListTags(ctx context.Context, hideEmpty bool) ([]model.Tag, error) {
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(MaxPerPage))
	query.Set("orderby", "count")
	query.Set("order", "desc")
	query.Set("hide_empty", strconv.FormatBool(hideEmpty))

	var tags []model.Tag
	if _, err := c.do(ctx, "list_tags", http.MethodGet, "products/tags", query, nil, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// FindCouponByCode はクーポンコードでクーポンを検索する。見つからない場合はnilを返す。
func (c *Client) FindCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	query := url.Values{}
	query.Set("code", code)

	var coupons []model.Coupon
	if _, err := c.do(ctx, "find_coupon", http.MethodGet, "coupons", query, nil, &coupons); err != nil {
		return nil, err
	}
	if len(coupons) == 0 {
		return nil, nil
	}
	return &coupons[0], nil
}
