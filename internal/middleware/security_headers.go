package middleware

import (
	"net/http"
	"strings"
)

// NewSecurityHeadersMiddleware はJSON API向けのセキュリティヘッダーを付与するミドルウェアを返す。
// レスポンスはMini App（別オリジン）から読まれるため、CORPはcross-originとする。
// TLS終端がプロキシの場合はX-Forwarded-Protoを見てHSTSを付与する。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
				h.Set("Strict-Transport-Security", "max-age=31536000")
			}
			next.ServeHTTP(w, r)
		})
	}
}
