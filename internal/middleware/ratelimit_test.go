package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/tgshop/internal/auth"
)

func testLimiterConfig(generalBurst, orderBurst int, cleanup time.Duration) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    generalBurst,
		OrderRate:       1,
		OrderBurst:      orderBurst,
		CleanupInterval: cleanup,
	}
}

func requestAsCustomer(customerID int64) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	ctx := ContextWithIdentity(req.Context(), &auth.Claim{UserID: customerID * 10}, customerID)
	return req.WithContext(ctx)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_AllowsRequestsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(5, 10, time.Minute))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAsCustomer(1))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(2, 10, time.Minute))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestAsCustomer(1))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAsCustomer(1))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retry < 1 {
		t.Errorf("Retry-After = %q, want positive integer", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("429レスポンスがJSONではない: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}
}

func TestRateLimitMiddleware_IsolatesCustomers(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 10, time.Minute))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestAsCustomer(1))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAsCustomer(2))
	if w.Code != http.StatusOK {
		t.Errorf("別顧客のリクエストが制限された: status = %d", w.Code)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("limiter count = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestRateLimitMiddleware_UnauthenticatedKeyedByIP(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 10, time.Minute))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	req1 := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req1.RemoteAddr = "203.0.113.5:1234"
	handler.ServeHTTP(httptest.NewRecorder(), req1)

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req2.RemoteAddr = "203.0.113.5:5678"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req2)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("同一IPの2回目: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

func TestOrderRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(10, 1, time.Minute))
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	order := rl.OrderMiddleware()(okHandler())

	order.ServeHTTP(httptest.NewRecorder(), requestAsCustomer(1))

	w := httptest.NewRecorder()
	order.ServeHTTP(w, requestAsCustomer(1))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("注文作成2回目: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestAsCustomer(1))
	if w.Code != http.StatusOK {
		t.Errorf("API全般は注文作成の制限の影響を受けない: status = %d", w.Code)
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(5, 5, 50*time.Millisecond))
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAsCustomer(1))
	rl.OrderMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAsCustomer(1))

	if rl.GeneralLimiterCount() == 0 || rl.OrderLimiterCount() == 0 {
		t.Fatal("expected limiter entries")
	}

	// TTLはCleanupIntervalの2倍
	time.Sleep(250 * time.Millisecond)

	if c := rl.GeneralLimiterCount(); c != 0 {
		t.Errorf("general limiter entries = %d, want 0", c)
	}
	if c := rl.OrderLimiterCount(); c != 0 {
		t.Errorf("order limiter entries = %d, want 0", c)
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 {
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.OrderBurst != 10 {
		t.Errorf("OrderBurst = %d, want 10", cfg.OrderBurst)
	}
	if cfg.CleanupInterval <= 0 {
		t.Error("CleanupInterval should be positive")
	}
}

// limiterKeyは顧客IDを優先することを検証
func TestLimiterKey_PrefersCustomerID(t *testing.T) {
	req := requestAsCustomer(42)
	if got := limiterKey(req); got != "customer:42" {
		t.Errorf("limiterKey = %q, want customer:42", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background())
	req.RemoteAddr = "198.51.100.7:80"
	if got := limiterKey(req); got != "ip:198.51.100.7" {
		t.Errorf("limiterKey = %q, want ip:198.51.100.7", got)
	}
}
