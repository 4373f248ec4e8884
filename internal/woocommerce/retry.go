package woocommerce

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/tgshop/internal/model"
)

// StatusClass はHTTPステータスコードに基づく応答の分類。
type StatusClass int

const (
	// StatusClassOK は成功（2xx/3xx）。
	StatusClassOK StatusClass = iota
	// StatusClassPermanent は再試行しても結果が変わらない失敗（429以外の4xx）。
	StatusClassPermanent
	// StatusClassRetryable は時間をおけば回復し得る失敗（429/5xx）。
	StatusClassRetryable
)

// errTransport は応答を受け取る前の通信失敗を表す。
var errTransport = errors.New("transport error")

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 200 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 2 * time.Second
)

// ClassifyStatus はHTTPステータスコードを分類する。
func ClassifyStatus(statusCode int) StatusClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return StatusClassRetryable
	case statusCode >= 500:
		return StatusClassRetryable
	case statusCode >= 400:
		return StatusClassPermanent
	default:
		return StatusClassOK
	}
}

// calculateBackoff は再試行回数に基づいて指数バックオフ遅延を計算する。
// 初回200ms、2倍ずつ増加、最大2秒。
func calculateBackoff(retry int) time.Duration {
	delay := initialBackoff
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// shouldRetry はエラーが再試行対象かを判定する。
// 呼び出し元のコンテキストが終了している場合は再試行しない。
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var remoteErr *model.RemoteError
	if errors.As(err, &remoteErr) {
		return ClassifyStatus(remoteErr.StatusCode) == StatusClassRetryable
	}
	return errors.Is(err, errTransport)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
