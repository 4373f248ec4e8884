// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、WooCommerceクライアント、バックグラウンドタスクから利用する。
type MetricsCollector interface {
	RecordAuthFailure(reason string)
	RecordResolution(outcome string)
	RecordReconciliation(outcome string)
	RecordRemoteCall(operation string, statusCode int, duration time.Duration)
	RecordBackgroundTask(name string, success bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authFailures    *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	remoteStatus    *prometheus.CounterVec
	remoteLatency   *prometheus.HistogramVec
	backgroundTasks *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgshop_auth_failures_total",
			Help: "initData検証失敗の理由別件数",
		}, []string{"reason"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgshop_customer_resolutions_total",
			Help: "顧客解決の結果別件数",
		}, []string{"outcome"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgshop_cart_reconciliations_total",
			Help: "カート補正の結果別件数",
		}, []string{"outcome"}),
		remoteStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgshop_woocommerce_requests_total",
			Help: "WooCommerce APIのオペレーション・ステータスコード別リクエスト数",
		}, []string{"operation", "status_code"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tgshop_woocommerce_latency_seconds",
			Help:    "WooCommerce APIのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		backgroundTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgshop_background_tasks_total",
			Help: "バックグラウンドタスクのタスク名・結果別件数",
		}, []string{"task", "result"}),
	}

	reg.MustRegister(
		c.authFailures,
		c.resolutions,
		c.reconciliations,
		c.remoteStatus,
		c.remoteLatency,
		c.backgroundTasks,
	)

	return c
}

// RecordAuthFailure はinitData検証失敗を理由別に記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// RecordResolution は顧客解決の結果を記録する。
func (c *Collector) RecordResolution(outcome string) {
	c.resolutions.WithLabelValues(outcome).Inc()
}

// RecordReconciliation はカート補正の結果を記録する。
func (c *Collector) RecordReconciliation(outcome string) {
	c.reconciliations.WithLabelValues(outcome).Inc()
}

// RecordRemoteCall はWooCommerce API呼び出しを記録する。
// 通信エラーでレスポンスが無い場合、statusCodeは0。
func (c *Collector) RecordRemoteCall(operation string, statusCode int, duration time.Duration) {
	c.remoteStatus.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	c.remoteLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBackgroundTask はバックグラウンドタスクの結果を記録する。
func (c *Collector) RecordBackgroundTask(name string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.backgroundTasks.WithLabelValues(name, result).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
