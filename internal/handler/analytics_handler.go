package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/tgshop/internal/analytics"
	"github.com/hitoshi/tgshop/internal/model"
)

// AnalyticsServiceInterface は分析ハンドラーが必要とするサービスインターフェース。
type AnalyticsServiceInterface interface {
	// Track はイベントを検証し、バックグラウンドで保存する。
	Track(customerID int64, eventType string, eventData json.RawMessage) error
	DailyActiveCustomers(ctx context.Context) (*analytics.DailyActive, error)
	TopViewedProducts(ctx context.Context, limit int) ([]model.ProductViews, error)
}

// AnalyticsHandler は行動イベント収集と集計のHTTPハンドラー。
type AnalyticsHandler struct {
	service AnalyticsServiceInterface
}

// NewAnalyticsHandler はAnalyticsHandlerを生成する。
func NewAnalyticsHandler(service AnalyticsServiceInterface) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

// trackEventRequest はイベント送信リクエストのボディ。
type trackEventRequest struct {
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data"`
}

// messageResponse は処理受付を示す簡易レスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// TrackEvent は行動イベントを受け付ける。保存はリクエストから切り離して行う。
// POST /api/v1/analytics/events
func (h *AnalyticsHandler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity(w, r)
	if !ok {
		return
	}

	var req trackEventRequest
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.service.Track(customerID, req.EventType, req.EventData); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, messageResponse{Message: "イベントを受け付けました。"})
}

// DailyActive は当日(UTC)のアクティブ顧客数を返す。
// GET /api/v1/admin/analytics/dau
func (h *AnalyticsHandler) DailyActive(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.DailyActiveCustomers(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// TopViewedProducts は閲覧数の多い商品を返す。
// GET /api/v1/admin/analytics/top-viewed-products?limit=
func (h *AnalyticsHandler) TopViewedProducts(w http.ResponseWriter, r *http.Request) {
	limit, apiErr := queryInt(r, "limit", analytics.DefaultTopLimit, 1, analytics.MaxTopLimit)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.TopViewedProducts(r.Context(), limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
