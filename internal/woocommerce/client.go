// Package woocommerce はWooCommerce REST APIのクライアントを提供する。
// 顧客ディレクトリ（customers）と商品カタログ（products）、注文・クーポンの操作を含む。
// すべての呼び出しはタイムアウトと送信レート制限の下で実行される。
package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/tgshop/internal/model"
)

const (
	// DefaultAPIVersion はWooCommerce REST APIのバージョン。
	DefaultAPIVersion = "wc/v3"
	// DefaultTimeout は1リクエストあたりのタイムアウト。
	DefaultTimeout = 10 * time.Second
	// MaxPerPage はWooCommerceが1ページで返す最大件数。
	MaxPerPage = 100

	maxResponseSize = 10 << 20
	userAgent       = "tgshop/1.0"
)

// Config はClientの接続設定。
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	APIVersion     string
	Timeout        time.Duration
	RateLimit      float64 // 送信レート（req/sec）。0以下の場合は制限しない
	MaxRetries     int     // GETの再試行回数。0の場合は再試行しない
}

// Recorder はWooCommerce呼び出しのメトリクス記録インターフェース。
type Recorder interface {
	RecordRemoteCall(operation string, statusCode int, duration time.Duration)
}

// Client はWooCommerce REST APIのクライアント。
// http.Clientは起動時に1つだけ生成し、接続をプールして使い回す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	recorder   Recorder
	limiter    *rate.Limiter

	endpoint       string // {BaseURL}/wp-json/{APIVersion}
	consumerKey    string
	consumerSecret string
	timeout        time.Duration
	maxRetries     int
}

// NewClient はClientの新しいインスタンスを生成する。recorderはnilでもよい。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config, recorder Recorder) *Client {
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		httpClient:     httpClient,
		logger:         logger,
		recorder:       recorder,
		limiter:        limiter,
		endpoint:       strings.TrimRight(cfg.BaseURL, "/") + "/wp-json/" + strings.Trim(version, "/"),
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		timeout:        timeout,
		maxRetries:     cfg.MaxRetries,
	}
}

// errorPayload はWooCommerceのエラーレスポンス形式。
type errorPayload struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do はWooCommerce APIを呼び出し、レスポンスをoutにデコードする。
// 4xx/5xxの場合は *model.RemoteError を返す。
// GETは一時的な失敗（429/5xx/通信エラー）に限り、短いバックオフで再試行する。
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body, out any) (http.Header, error) {
	attempts := 1
	if method == http.MethodGet {
		attempts += c.maxRetries
	}

	var (
		header http.Header
		err    error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(attempt - 1)
			c.logger.Warn("WooCommerce APIを再試行します",
				slog.String("operation", operation),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
			)
			if waitErr := sleepContext(ctx, delay); waitErr != nil {
				return nil, err
			}
		}
		header, err = c.doOnce(ctx, operation, method, path, query, body, out)
		if err == nil || !shouldRetry(ctx, err) {
			return header, err
		}
	}
	return header, err
}

func (c *Client) doOnce(ctx context.Context, operation, method, path string, query url.Values, body, out any) (http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("woocommerce %s: 送信レート待機中に中断しました: %w", operation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqURL := c.endpoint + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("woocommerce %s: リクエストのエンコードに失敗しました: %w", operation, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("woocommerce %s: HTTPリクエストの作成に失敗しました: %w", operation, err)
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(operation, 0, time.Since(start))
		c.logger.Error("WooCommerce APIの呼び出しに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("woocommerce %s: %w: %w", operation, errTransport, err)
	}
	defer resp.Body.Close()
	c.record(operation, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("woocommerce %s: レスポンスボディの読み取りに失敗しました: %w", operation, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		remoteErr := &model.RemoteError{StatusCode: resp.StatusCode}
		var payload errorPayload
		if err := json.Unmarshal(data, &payload); err == nil {
			remoteErr.Code = payload.Code
			remoteErr.Message = payload.Message
		} else {
			remoteErr.Message = http.StatusText(resp.StatusCode)
		}
		level := slog.LevelError
		if resp.StatusCode == http.StatusNotFound {
			level = slog.LevelDebug
		}
		c.logger.Log(ctx, level, "WooCommerce APIがエラーステータスを返しました",
			slog.String("operation", operation),
			slog.Int("http_status", resp.StatusCode),
			slog.String("code", remoteErr.Code),
		)
		return resp.Header, remoteErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("woocommerce %s: レスポンスJSONのパースに失敗しました: %w", operation, err)
		}
	}
	return resp.Header, nil
}

func (c *Client) record(operation string, statusCode int, d time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordRemoteCall(operation, statusCode, d)
	}
}

// IsNotFound はerrがWooCommerceの404応答かを判定する。
func IsNotFound(err error) bool {
	var remoteErr *model.RemoteError
	return errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusNotFound
}

// RemoteCode はerrがWooCommerceのエラー応答の場合にそのエラーコードを返す。
func RemoteCode(err error) string {
	var remoteErr *model.RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Code
	}
	return ""
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func headerInt(h http.Header, key string) int {
	n, err := strconv.Atoi(h.Get(key))
	if err != nil {
		return 0
	}
	return n
}
