package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tgshop/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Verifier          middleware.ClaimVerifier
	Resolver          middleware.CustomerResolver
	AuthRecorder      middleware.AuthRecorder
	AdminAPIKey       string

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ドメインサービス
	CartService      CartServiceInterface
	ProfileService   ProfileServiceInterface
	OrderService     OrderServiceInterface
	CatalogService   CatalogServiceInterface
	AnalyticsService AnalyticsServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS
//	  公開カタログ:   RateLimit(General)
//	  Mini App:      InitData → RateLimit(General) [→ RateLimit(Order)]
//	  管理API:       AdminKey
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	cartHandler := NewCartHandler(deps.CartService)
	customerHandler := NewCustomerHandler(deps.ProfileService)
	orderHandler := NewOrderHandler(deps.OrderService)
	catalogHandler := NewCatalogHandler(deps.CatalogService)
	analyticsHandler := NewAnalyticsHandler(deps.AnalyticsService)

	// --- 運用エンドポイント ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// --- 認証不要のカタログ参照 ---
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/products", catalogHandler.ListProducts)
			r.Get("/products/{id}", catalogHandler.GetProduct)
			r.Get("/categories", catalogHandler.ListCategories)
			r.Get("/tags", catalogHandler.ListTags)
			r.Post("/coupons/validate", catalogHandler.ValidateCoupon)
		})

		// --- Mini App（initData認証） ---
		// ミドルウェアスタック: InitData → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewInitDataMiddleware(deps.Verifier, deps.Resolver, deps.AuthRecorder))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/cart", cartHandler.GetCart)
			r.Post("/cart", cartHandler.ReplaceCart)

			r.Route("/customers", func(r chi.Router) {
				r.Post("/register", customerHandler.Register)
				r.Get("/me", customerHandler.Me)
				r.Put("/me", customerHandler.UpdateMe)
			})

			r.Route("/orders", func(r chi.Router) {
				// POST /api/v1/orders - 注文作成（注文専用レート制限を追加）
				r.With(deps.RateLimiter.OrderMiddleware()).Post("/", orderHandler.CreateOrder)
				r.Get("/", orderHandler.ListMyOrders)
			})

			r.Post("/analytics/events", analyticsHandler.TrackEvent)
		})

		// --- 管理API（X-Admin-API-Key） ---
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.NewAdminKeyMiddleware(deps.AdminAPIKey))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", orderHandler.AdminListOrders)
				r.Get("/{id}", orderHandler.AdminGetOrder)
				r.Put("/{id}/status", orderHandler.AdminUpdateStatus)
			})

			r.Get("/analytics/dau", analyticsHandler.DailyActive)
			r.Get("/analytics/top-viewed-products", analyticsHandler.TopViewedProducts)
		})
	})

	return r
}
