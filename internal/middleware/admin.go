package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tgshop/internal/model"
)

// AdminKeyHeader は管理APIのキーを送るリクエストヘッダー。
const AdminKeyHeader = "X-Admin-API-Key"

// NewAdminKeyMiddleware は管理APIキーを検証するミドルウェアを返す。
// サーバー側のキーが未設定の場合は503、キーの欠落・不一致は403を返す。
func NewAdminKeyMiddleware(adminKey string) func(next http.Handler) http.Handler {
	expected := []byte(adminKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				slog.Error("admin API key is not configured")
				WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewAdminKeyNotConfiguredError())
				return
			}

			given := []byte(r.Header.Get(AdminKeyHeader))
			if len(given) == 0 || subtle.ConstantTimeCompare(given, expected) != 1 {
				slog.Warn("invalid or missing admin API key",
					slog.String("path", r.URL.Path),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
