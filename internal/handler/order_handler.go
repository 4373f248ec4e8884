package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tgshop/internal/auth"
	"github.com/hitoshi/tgshop/internal/middleware"
	"github.com/hitoshi/tgshop/internal/model"
	"github.com/hitoshi/tgshop/internal/order"
)

// OrderServiceInterface は注文ハンドラーが必要とするサービスインターフェース。
type OrderServiceInterface interface {
	Create(ctx context.Context, customerID int64, buyer *auth.Claim, in order.CreateInput) (*model.Order, error)
	ListMine(ctx context.Context, customerID int64, page, perPage int) (*model.OrderPage, error)
	List(ctx context.Context, q model.OrderQuery) (*model.OrderPage, error)
	Get(ctx context.Context, id int64) (*model.Order, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*model.Order, error)
}

// OrderHandler は注文のHTTPハンドラー。顧客向けと管理者向けの両方を扱う。
type OrderHandler struct {
	service OrderServiceInterface
}

// NewOrderHandler はOrderHandlerを生成する。
func NewOrderHandler(service OrderServiceInterface) *OrderHandler {
	return &OrderHandler{service: service}
}

// updateStatusRequest は注文ステータス更新リクエストのボディ。
type updateStatusRequest struct {
	Status string `json:"status"`
}

// CreateOrder は認証済み顧客の注文を作成する。
// POST /api/v1/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity(w, r)
	if !ok {
		return
	}
	claim, err := middleware.ClaimFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req order.CreateInput
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	created, err := h.service.Create(r.Context(), customerID, claim, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// ListMyOrders は認証済み顧客の注文一覧を返す。
// GET /api/v1/orders?page=&per_page=
func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity(w, r)
	if !ok {
		return
	}

	page, apiErr := queryInt(r, "page", 1, 1, maxPage)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	perPage, apiErr := queryInt(r, "per_page", defaultOrderPerPage, 1, order.MaxPerPage)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.ListMine(r.Context(), customerID, page, perPage)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPaginatedResponse(r, page, result.Total, result.TotalPages, result.Orders))
}

// AdminListOrders は管理者向けに注文一覧を返す。
// GET /api/v1/admin/orders?page=&per_page=&status=on-hold,processing&customer_id=&search=
func (h *OrderHandler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	page, apiErr := queryInt(r, "page", 1, 1, maxPage)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	perPage, apiErr := queryInt(r, "per_page", defaultOrderPerPage, 1, order.MaxPerPage)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	q := model.OrderQuery{
		Page:     page,
		PerPage:  perPage,
		Statuses: queryList(r, "status"),
		Search:   strings.TrimSpace(r.URL.Query().Get("search")),
	}
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, apiErr := pathID(raw)
		if apiErr != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
			return
		}
		q.CustomerID = id
	}

	result, err := h.service.List(r.Context(), q)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPaginatedResponse(r, page, result.Total, result.TotalPages, result.Orders))
}

// AdminGetOrder は注文詳細を返す。
// GET /api/v1/admin/orders/{id}
func (h *OrderHandler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(chi.URLParam(r, "id"))
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	o, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// AdminUpdateStatus は注文ステータスを更新する。
// PUT /api/v1/admin/orders/{id}/status
func (h *OrderHandler) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(chi.URLParam(r, "id"))
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	var req updateStatusRequest
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	updated, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}
