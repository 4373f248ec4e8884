// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/tgshop/internal/auth"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	claimContextKey      = contextKey("telegram_claim")
	customerIDContextKey = contextKey("customer_id")
	requestIDContextKey  = contextKey("request_id")
	logFieldsContextKey  = contextKey("log_fields")
)

// logFields はリクエストログに後段のミドルウェアが書き込む値を保持する。
type logFields struct {
	customerID int64
}

// CustomerIDFromContext はリクエストコンテキストから解決済みの顧客IDを取得する。
// initData認証ミドルウェアを通過したリクエストでのみ有効。
func CustomerIDFromContext(ctx context.Context) (int64, error) {
	id, ok := ctx.Value(customerIDContextKey).(int64)
	if !ok || id <= 0 {
		return 0, fmt.Errorf("customer ID not found in context")
	}
	return id, nil
}

// ClaimFromContext はリクエストコンテキストから検証済みのTelegram利用者情報を取得する。
func ClaimFromContext(ctx context.Context) (*auth.Claim, error) {
	claim, ok := ctx.Value(claimContextKey).(*auth.Claim)
	if !ok || claim == nil {
		return nil, fmt.Errorf("telegram claim not found in context")
	}
	return claim, nil
}

// ContextWithIdentity はコンテキストに検証済みの利用者情報と顧客IDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, claim *auth.Claim, customerID int64) context.Context {
	if lf, ok := ctx.Value(logFieldsContextKey).(*logFields); ok {
		lf.customerID = customerID
	}
	ctx = context.WithValue(ctx, claimContextKey, claim)
	return context.WithValue(ctx, customerIDContextKey, customerID)
}

// RequestIDFromContext はリクエストIDを返す。未設定の場合は空文字列。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
