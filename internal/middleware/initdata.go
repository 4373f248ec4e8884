package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tgshop/internal/auth"
	"github.com/hitoshi/tgshop/internal/customer"
	"github.com/hitoshi/tgshop/internal/model"
)

// InitDataHeader はミニアプリが署名付きinitDataを送るリクエストヘッダー。
const InitDataHeader = "X-Telegram-Init-Data"

// RetryAfterSeconds は顧客解決が一時的に失敗した場合に返すRetry-Afterの秒数。
const RetryAfterSeconds = 5

// ClaimVerifier はinitDataの検証インターフェース。
type ClaimVerifier interface {
	Verify(token string) (*auth.Claim, error)
}

// CustomerResolver は検証済み利用者から顧客IDを解決するインターフェース。
type CustomerResolver interface {
	Resolve(ctx context.Context, claim *auth.Claim) (int64, error)
}

// AuthRecorder は認証失敗のメトリクス記録インターフェース。
type AuthRecorder interface {
	RecordAuthFailure(reason string)
}

// NewInitDataMiddleware はX-Telegram-Init-Dataヘッダーを検証し、
// 利用者に対応する顧客IDを解決してコンテキストに注入するミドルウェアを返す。
// ヘッダー欠落は400、検証失敗は理由によらず401を返す。理由はログにのみ記録する。
// recorderはnilでもよい。
func NewInitDataMiddleware(verifier ClaimVerifier, resolver CustomerResolver, recorder AuthRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(InitDataHeader)
			if token == "" {
				WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingInitDataError())
				return
			}

			claim, err := verifier.Verify(token)
			if err != nil {
				reason := "unknown"
				var authErr *auth.Error
				if errors.As(err, &authErr) {
					reason = string(authErr.Reason)
				}
				slog.Warn("initData verification failed",
					slog.String("reason", reason),
					slog.String("path", r.URL.Path),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				if recorder != nil {
					recorder.RecordAuthFailure(reason)
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			customerID, err := resolver.Resolve(r.Context(), claim)
			if err != nil {
				writeResolutionError(w, r, claim, err)
				return
			}

			ctx := ContextWithIdentity(r.Context(), claim, customerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeResolutionError(w http.ResponseWriter, r *http.Request, claim *auth.Claim, err error) {
	attrs := []any{
		slog.Int64("telegram_user_id", claim.UserID),
		slog.String("error", err.Error()),
		slog.String("request_id", RequestIDFromContext(r.Context())),
	}

	switch {
	case errors.Is(err, customer.ErrTransient):
		slog.Warn("customer resolution failed transiently", attrs...)
		WriteRetryableError(w, http.StatusServiceUnavailable, model.NewIdentityUnavailableError(), RetryAfterSeconds)
	case errors.Is(err, customer.ErrDirectory):
		slog.Error("customer directory error", attrs...)
		WriteErrorResponse(w, http.StatusBadGateway, model.NewDirectoryError())
	default:
		slog.Error("customer resolution failed", attrs...)
		WriteInternalServerError(w)
	}
}
