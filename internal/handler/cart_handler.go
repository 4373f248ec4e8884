package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/tgshop/internal/model"
)

// CartServiceInterface はカートハンドラーが必要とするサービスインターフェース。
type CartServiceInterface interface {
	// Get は保存済みカートをカタログと照合して返す。
	Get(ctx context.Context, customerID int64) (*model.ReconciledCart, error)
	// Replace はカート全体を置き換える。
	Replace(ctx context.Context, customerID int64, entries []model.CartEntry) ([]model.CartEntry, error)
}

// CartHandler はカートのHTTPハンドラー。
type CartHandler struct {
	service CartServiceInterface
}

// NewCartHandler はCartHandlerを生成する。
func NewCartHandler(service CartServiceInterface) *CartHandler {
	return &CartHandler{service: service}
}

// replaceCartRequest はカート置き換えリクエストのボディ。
type replaceCartRequest struct {
	Items []model.CartEntry `json:"items"`
}

// replaceCartResponse はカート置き換え後のレスポンス。
type replaceCartResponse struct {
	Items []model.CartEntry `json:"items"`
}

// GetCart はカタログと照合済みのカートを返す。
// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity(w, r)
	if !ok {
		return
	}

	cart, err := h.service.Get(r.Context(), customerID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if cart.Items == nil {
		cart.Items = []model.CartEntry{}
	}
	if cart.Messages == nil {
		cart.Messages = []string{}
	}

	writeJSON(w, http.StatusOK, cart)
}

// ReplaceCart はカート全体を置き換える。空配列でカートを空にできる。
// POST /api/v1/cart
func (h *CartHandler) ReplaceCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity(w, r)
	if !ok {
		return
	}

	var req replaceCartRequest
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	if req.Items == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidCartError("items は必須です"))
		return
	}

	saved, err := h.service.Replace(r.Context(), customerID, req.Items)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if saved == nil {
		saved = []model.CartEntry{}
	}

	writeJSON(w, http.StatusOK, replaceCartResponse{Items: saved})
}
