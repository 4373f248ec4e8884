package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/tgshop/internal/customer"
	"github.com/hitoshi/tgshop/internal/model"
)

// ProfileServiceInterface は顧客ハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, customerID int64) (*model.Customer, error)
	Update(ctx context.Context, customerID int64, in customer.ProfileUpdate) (*model.Customer, error)
}

// CustomerHandler は顧客プロフィールのHTTPハンドラー。
type CustomerHandler struct {
	service ProfileServiceInterface
}

// NewCustomerHandler はCustomerHandlerを生成する。
func NewCustomerHandler(service ProfileServiceInterface) *CustomerHandler {
	return &CustomerHandler{service: service}
}

// customerResponse は顧客プロフィールのAPIレスポンス。
// メタデータのうちTelegram連携の情報のみを返す。
type customerResponse struct {
	ID               int64         `json:"id"`
	Email            string        `json:"email"`
	FirstName        string        `json:"first_name"`
	LastName         string        `json:"last_name"`
	Username         string        `json:"username"`
	Billing          model.Address `json:"billing"`
	Shipping         model.Address `json:"shipping"`
	TelegramUserID   string        `json:"telegram_user_id,omitempty"`
	TelegramUsername string        `json:"telegram_username,omitempty"`
}

// registerResponse は顧客登録のレスポンス。
type registerResponse struct {
	Status     string `json:"status"`
	CustomerID int64  `json:"customer_id"`
}

// Me は認証済み顧客のプロフィールを返す。
// GET /api/v1/customers/me
func (h *CustomerHandler) Me(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity(w, r)
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), customerID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

// UpdateMe は認証済み顧客のプロフィールを部分更新する。
// PUT /api/v1/customers/me
func (h *CustomerHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity(w, r)
	if !ok {
		return
	}

	var req customer.ProfileUpdate
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	c, err := h.service.Update(r.Context(), customerID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

// Register は顧客の特定（未登録なら作成）を明示的に行う。
// 特定自体はinitData認証ミドルウェアで完了しているため、結果の顧客IDを返すだけでよい。
// POST /api/v1/customers/register
func (h *CustomerHandler) Register(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{Status: "ok", CustomerID: customerID})
}

func toCustomerResponse(c *model.Customer) customerResponse {
	resp := customerResponse{
		ID:        c.ID,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Username:  c.Username,
		Billing:   c.Billing,
		Shipping:  c.Shipping,
	}
	if m, ok := c.Meta(customer.MetaTelegramUserID); ok {
		resp.TelegramUserID = m.StringValue()
	}
	if m, ok := c.Meta(customer.MetaTelegramUsername); ok {
		resp.TelegramUsername = m.StringValue()
	}
	return resp
}
