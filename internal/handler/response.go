package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/tgshop/internal/analytics"
	"github.com/hitoshi/tgshop/internal/cart"
	"github.com/hitoshi/tgshop/internal/catalog"
	"github.com/hitoshi/tgshop/internal/customer"
	"github.com/hitoshi/tgshop/internal/middleware"
	"github.com/hitoshi/tgshop/internal/model"
	"github.com/hitoshi/tgshop/internal/order"
)

// maxRequestBodyBytes はJSONリクエストボディの最大サイズ。
const maxRequestBodyBytes = 64 << 10

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// paginatedResponse は一覧APIの共通レスポンス。
// next/previousは前後ページが存在しない場合null。
type paginatedResponse[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// newPaginatedResponse はリクエストURLのpageパラメータを差し替えて前後ページのURLを組み立てる。
func newPaginatedResponse[T any](r *http.Request, page, total, totalPages int, results []T) paginatedResponse[T] {
	if results == nil {
		results = []T{}
	}
	resp := paginatedResponse[T]{Count: total, Results: results}
	if page < totalPages {
		next := pageURL(r, page+1)
		resp.Next = &next
	}
	if page > 1 {
		prev := pageURL(r, page-1)
		resp.Previous = &prev
	}
	return resp
}

func pageURL(r *http.Request, page int) string {
	u := url.URL{Path: r.URL.Path}
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	attrs := []any{
		slog.String("error", err.Error()),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	}

	switch {
	case errors.Is(err, customer.ErrTransient):
		slog.Warn("customer resolution failed transiently", attrs...)
		middleware.WriteRetryableError(w, http.StatusServiceUnavailable, model.NewIdentityUnavailableError(), middleware.RetryAfterSeconds)
	case errors.Is(err, cart.ErrCatalogUnavailable), errors.Is(err, catalog.ErrUnavailable):
		slog.Error("catalog unavailable", attrs...)
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewCatalogUnavailableError())
	case errors.Is(err, customer.ErrDirectory), errors.Is(err, order.ErrBackend):
		slog.Error("store backend error", attrs...)
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewDirectoryError())
	case errors.Is(err, analytics.ErrStorage):
		slog.Error("analytics storage error", attrs...)
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewStorageUnavailableError())
	default:
		slog.Error("internal server error", attrs...)
		middleware.WriteInternalServerError(w)
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidCart, model.ErrCodeEmptyProfileUpdate,
		model.ErrCodeEmptyCouponCode, model.ErrCodeInvalidOrderStatus, model.ErrCodeMissingInitData:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeCustomerNotFound, model.ErrCodeProductNotFound, model.ErrCodeOrderNotFound:
		return http.StatusNotFound
	case model.ErrCodeOrderCreateFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeCatalogUnavailable, model.ErrCodeDirectoryError:
		return http.StatusBadGateway
	case model.ErrCodeIdentityUnavailable, model.ErrCodeAdminKeyNotConfigured, model.ErrCodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSONBody はサイズ上限付きでリクエストボディをデコードする。未知のフィールドは無視する。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) *model.APIError {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return model.NewInvalidRequestError("リクエストボディが大きすぎます")
		case errors.Is(err, io.EOF):
			return model.NewInvalidRequestError("リクエストボディが空です")
		default:
			return model.NewInvalidRequestError("リクエストボディの解析に失敗しました")
		}
	}
	return nil
}

// queryInt はクエリパラメータを整数として読み取る。未指定の場合はdefを返す。
func queryInt(r *http.Request, name string, def, minVal, maxVal int) (int, *model.APIError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < minVal || v > maxVal {
		return 0, model.NewInvalidRequestError(fmt.Sprintf("%s は%d以上%d以下の整数で指定してください", name, minVal, maxVal))
	}
	return v, nil
}

// queryBool はクエリパラメータを真偽値として読み取る。未指定の場合はnilを返す。
func queryBool(r *http.Request, name string) (*bool, *model.APIError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("%s は true または false で指定してください", name))
	}
	return &v, nil
}

// queryList はカンマ区切りのクエリパラメータを空要素を除いて返す。
func queryList(r *http.Request, name string) []string {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// pathID はURLパスパラメータを正の整数として読み取る。
func pathID(raw string) (int64, *model.APIError) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewInvalidRequestError("IDは正の整数で指定してください")
	}
	return id, nil
}

// identity は認証済みリクエストから顧客IDを取り出す。
// initData認証ミドルウェアの外で呼ばれた場合はfalseを返し、401を書き込む。
func identity(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := middleware.CustomerIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return 0, false
	}
	return id, true
}

const (
	maxPage               = 10000
	defaultOrderPerPage   = 10
	defaultProductPerPage = 10
	maxProductPerPage     = 100
)
