package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// WooCommerce
	WooCommerceURL        string
	WooCommerceKey        string
	WooCommerceSecret     string
	WooCommerceAPIVersion string
	WooCommerceTimeout    time.Duration
	WooCommerceRateLimit  float64 // req/sec
	WooCommerceMaxRetries int

	// Telegram
	TelegramBotToken   string
	TelegramAPIURL     string
	TelegramManagerIDs []int64
	InitDataMaxAge     time.Duration
	MiniAppURL         string

	// Admin
	AdminAPIKey string

	// Redis（空の場合は顧客IDキャッシュを使用しない）
	RedisURL         string
	CustomerCacheTTL time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitOrder   int

	// Analytics
	AnalyticsRetentionDays int

	// Background
	BackgroundTaskTimeout time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は.envファイル（存在する場合）と環境変数からConfigを読み込む。
// 既に設定済みの環境変数は.envの値で上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles は指定された.envファイルを読み込んだうえでConfigを生成する。
// 存在しないファイルは無視する。
func LoadFiles(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	cfg := &Config{}

	// Required fields
	var missing []string
	required := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.WooCommerceURL = strings.TrimRight(required("WOOCOMMERCE_URL"), "/")
	cfg.WooCommerceKey = required("WOOCOMMERCE_KEY")
	cfg.WooCommerceSecret = required("WOOCOMMERCE_SECRET")
	cfg.TelegramBotToken = required("TELEGRAM_BOT_TOKEN")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	managerIDs, err := parseIDList(os.Getenv("TELEGRAM_MANAGER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_MANAGER_IDS: %w", err)
	}
	cfg.TelegramManagerIDs = managerIDs

	// Optional fields with defaults
	cfg.WooCommerceAPIVersion = getEnvString("WOOCOMMERCE_API_VERSION", "wc/v3")
	cfg.WooCommerceTimeout = getEnvDuration("WOOCOMMERCE_TIMEOUT", 10*time.Second)
	cfg.WooCommerceRateLimit = getEnvFloat("WOOCOMMERCE_RATE_LIMIT", 10)
	cfg.WooCommerceMaxRetries = getEnvInt("WOOCOMMERCE_MAX_RETRIES", 2)
	cfg.TelegramAPIURL = getEnvString("TELEGRAM_API_URL", "https://api.telegram.org")
	cfg.InitDataMaxAge = getEnvDuration("INIT_DATA_MAX_AGE", time.Hour)
	cfg.MiniAppURL = getEnvString("MINI_APP_URL", "")
	cfg.AdminAPIKey = getEnvString("ADMIN_API_KEY", "")
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.CustomerCacheTTL = getEnvDuration("CUSTOMER_CACHE_TTL", 24*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitOrder = getEnvInt("RATE_LIMIT_ORDER", 10)
	cfg.AnalyticsRetentionDays = getEnvInt("ANALYTICS_RETENTION_DAYS", 90)
	cfg.BackgroundTaskTimeout = getEnvDuration("BACKGROUND_TASK_TIMEOUT", 15*time.Second)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	return cfg, nil
}

// parseIDList はカンマ区切りのTelegram利用者IDを解析する。
func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("not a positive integer: %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
