// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカー、サービス層、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordReconcileItem(outcome string)
	RecordReconcileRun(duration time.Duration, candidates int)
	RecordPublish(outcome string)
	ObserveRedditCall(op, outcome string, duration time.Duration)
	RecordAuthFailure(reason string)
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
	RecordRevocationsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	reconcileItems   *prometheus.CounterVec
	reconcileRuns    prometheus.Counter
	reconcileLatency prometheus.Histogram
	reconcileTargets prometheus.Gauge
	publishes        *prometheus.CounterVec
	redditCalls      *prometheus.CounterVec
	redditLatency    *prometheus.HistogramVec
	authFailures     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
	revocationsPurge prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reconcileItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postpilot_reconcile_items_total",
			Help: "同期スケジューラが処理したアイテム数（結果別）",
		}, []string{"outcome"}),
		reconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postpilot_reconcile_runs_total",
			Help: "同期ティックの実行回数",
		}),
		reconcileLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "postpilot_reconcile_run_duration_seconds",
			Help:    "同期ティック1回の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		reconcileTargets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "postpilot_reconcile_candidates",
			Help: "直近の同期ティックの候補アイテム数",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postpilot_publish_total",
			Help: "Reddit投稿の試行数（結果別）",
		}, []string{"outcome"}),
		redditCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postpilot_reddit_calls_total",
			Help: "Reddit API呼び出し数（操作・結果別）",
		}, []string{"op", "outcome"}),
		redditLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "postpilot_reddit_call_duration_seconds",
			Help:    "Reddit API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postpilot_auth_failures_total",
			Help: "Auth Gateで拒否されたリクエスト数（理由別）",
		}, []string{"reason"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postpilot_http_requests_total",
			Help: "HTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "postpilot_http_request_duration_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		revocationsPurge: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postpilot_revocations_purged_total",
			Help: "削除された期限切れ失効レコードの合計数",
		}),
	}

	reg.MustRegister(
		c.reconcileItems,
		c.reconcileRuns,
		c.reconcileLatency,
		c.reconcileTargets,
		c.publishes,
		c.redditCalls,
		c.redditLatency,
		c.authFailures,
		c.httpRequests,
		c.httpLatency,
		c.revocationsPurge,
	)

	return c
}

// RecordReconcileItem は同期アイテム1件の結果を記録する。
func (c *Collector) RecordReconcileItem(outcome string) {
	c.reconcileItems.WithLabelValues(outcome).Inc()
}

// RecordReconcileRun は同期ティックの完了を記録する。
func (c *Collector) RecordReconcileRun(duration time.Duration, candidates int) {
	c.reconcileRuns.Inc()
	c.reconcileLatency.Observe(duration.Seconds())
	c.reconcileTargets.Set(float64(candidates))
}

// RecordPublish は投稿の結果を記録する。
func (c *Collector) RecordPublish(outcome string) {
	c.publishes.WithLabelValues(outcome).Inc()
}

// ObserveRedditCall はReddit API呼び出しの結果とレイテンシを記録する。
func (c *Collector) ObserveRedditCall(op, outcome string, duration time.Duration) {
	c.redditCalls.WithLabelValues(op, outcome).Inc()
	c.redditLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordAuthFailure は認証失敗を記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// ObserveHTTPRequest はHTTPリクエストの結果とレイテンシを記録する。
func (c *Collector) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRevocationsPurged は削除された失効レコード数を記録する。
func (c *Collector) RecordRevocationsPurged(count int64) {
	c.revocationsPurge.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordReconcileItem(string)                            {}
func (Nop) RecordReconcileRun(time.Duration, int)                 {}
func (Nop) RecordPublish(string)                                  {}
func (Nop) ObserveRedditCall(string, string, time.Duration)       {}
func (Nop) RecordAuthFailure(string)                              {}
func (Nop) ObserveHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordRevocationsPurged(int64)                         {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewRegistry はGo・プロセスのランタイムメトリクスを含むレジストリを返す。
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
