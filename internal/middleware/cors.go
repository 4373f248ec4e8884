package middleware

import (
	"net/http"
	"strings"
)

// NewCORSMiddleware はCORSミドルウェアを返す。
// allowedOrigin は "*"、単一オリジン、またはカンマ区切りのオリジン一覧を受け付ける。
// 一覧の場合はリクエストのOriginが含まれるときだけそのオリジンを返す。
// 認証はヘッダーで行うためcredentialsは許可しない。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	origins := parseOrigins(allowedOrigin)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			switch {
			case len(origins) == 1:
				h.Set("Access-Control-Allow-Origin", origins[0])
				if origins[0] != "*" {
					h.Add("Vary", "Origin")
				}
			case len(origins) > 1:
				h.Add("Vary", "Origin")
				if origin := r.Header.Get("Origin"); containsOrigin(origins, origin) {
					h.Set("Access-Control-Allow-Origin", origin)
				}
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			h.Set("Access-Control-Allow-Headers",
				"Content-Type, "+InitDataHeader+", "+AdminKeyHeader+", "+RequestIDHeader)
			h.Set("Access-Control-Expose-Headers", RequestIDHeader+", Retry-After")
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func containsOrigin(origins []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, o := range origins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
