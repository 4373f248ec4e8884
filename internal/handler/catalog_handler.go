package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tgshop/internal/catalog"
	"github.com/hitoshi/tgshop/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	ListProducts(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListCategories(ctx context.Context, parent int64, hideEmpty bool) ([]model.Category, error)
	ListTags(ctx context.Context, hideEmpty bool) ([]model.Tag, error)
	ValidateCoupon(ctx context.Context, code string) (*catalog.CouponValidation, error)
}

// productOrderBy はWooCommerceが受け付ける並び替えキー。
var productOrderBy = map[string]bool{
	"date": true, "id": true, "include": true, "title": true, "slug": true,
	"price": true, "popularity": true, "rating": true, "menu_order": true,
}

// CatalogHandler は商品カタログのHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// validateCouponRequest はクーポン検証リクエストのボディ。
type validateCouponRequest struct {
	Code string `json:"code"`
}

// ListProducts は商品一覧を返す。
// GET /api/v1/products?page=&per_page=&category=&tag=&search=&featured=&on_sale=&orderby=&order=&include=
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q, apiErr := parseProductQuery(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.ListProducts(r.Context(), q)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPaginatedResponse(r, q.Page, result.Total, result.TotalPages, result.Products))
}

// GetProduct は商品詳細を返す。
// GET /api/v1/products/{id}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(chi.URLParam(r, "id"))
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// ListCategories はカテゴリ一覧を返す。parent未指定の場合は全階層を返す。
// GET /api/v1/categories?parent=&hide_empty=
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	parent := int64(-1)
	if raw := r.URL.Query().Get("parent"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("parent は0以上の整数で指定してください"))
			return
		}
		parent = v
	}
	hideEmpty, apiErr := hideEmptyParam(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	categories, err := h.service.ListCategories(r.Context(), parent, hideEmpty)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, categories)
}

// ListTags はタグ一覧を返す。
// GET /api/v1/tags?hide_empty=
func (h *CatalogHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	hideEmpty, apiErr := hideEmptyParam(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	tags, err := h.service.ListTags(r.Context(), hideEmpty)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tags)
}

// ValidateCoupon はクーポンを注文前に検証する。無効なクーポンも200で結果を返す。
// POST /api/v1/coupons/validate
func (h *CatalogHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.ValidateCoupon(r.Context(), req.Code)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func parseProductQuery(r *http.Request) (model.ProductQuery, *model.APIError) {
	var q model.ProductQuery
	var apiErr *model.APIError

	if q.Page, apiErr = queryInt(r, "page", 1, 1, maxPage); apiErr != nil {
		return q, apiErr
	}
	if q.PerPage, apiErr = queryInt(r, "per_page", defaultProductPerPage, 1, maxProductPerPage); apiErr != nil {
		return q, apiErr
	}
	if q.Featured, apiErr = queryBool(r, "featured"); apiErr != nil {
		return q, apiErr
	}
	if q.OnSale, apiErr = queryBool(r, "on_sale"); apiErr != nil {
		return q, apiErr
	}

	values := r.URL.Query()
	q.Category = strings.TrimSpace(values.Get("category"))
	q.Tag = strings.TrimSpace(values.Get("tag"))
	q.Search = strings.TrimSpace(values.Get("search"))

	q.OrderBy = values.Get("orderby")
	if q.OrderBy == "" {
		q.OrderBy = "popularity"
	}
	if !productOrderBy[q.OrderBy] {
		return q, model.NewInvalidRequestError("orderby の値が不正です")
	}
	q.Order = strings.ToLower(values.Get("order"))
	if q.Order == "" {
		q.Order = "desc"
	}
	if q.Order != "asc" && q.Order != "desc" {
		return q, model.NewInvalidRequestError("order は asc または desc で指定してください")
	}

	for _, raw := range queryList(r, "include") {
		id, apiErr := pathID(raw)
		if apiErr != nil {
			return q, model.NewInvalidRequestError("include は商品IDのカンマ区切りで指定してください")
		}
		q.Include = append(q.Include, id)
	}
	return q, nil
}

func hideEmptyParam(r *http.Request) (bool, *model.APIError) {
	v, apiErr := queryBool(r, "hide_empty")
	if apiErr != nil {
		return false, apiErr
	}
	if v == nil {
		return true, nil
	}
	return *v, nil
}
