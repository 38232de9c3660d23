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
// カートサービスと上流クライアントから利用する。
type MetricsCollector interface {
	RecordLocalAdd()
	RecordUpstreamRequest(op string, statusCode int)
	RecordUpstreamLatency(op string, duration time.Duration)
	RecordSyncSuccess()
	RecordSyncFailure(reason string)
	RecordNudgeOffered()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	localAdd        prometheus.Counter
	upstreamReq     *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	syncSuccess     prometheus.Counter
	syncFail        *prometheus.CounterVec
	nudgeOffered    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		localAdd: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartsync_local_add_total",
			Help: "ゲストカートへの商品追加の合計数",
		}),
		upstreamReq: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartsync_upstream_requests_total",
			Help: "上流コマースAPIへのリクエスト数（操作・ステータスコード別）",
		}, []string{"op", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cartsync_upstream_latency_seconds",
			Help:    "上流コマースAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		syncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartsync_sync_success_total",
			Help: "カート同期成功の合計数",
		}),
		syncFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartsync_sync_fail_total",
			Help: "カート同期失敗の合計数（理由別）",
		}, []string{"reason"}),
		nudgeOffered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartsync_login_nudge_total",
			Help: "提示されたログイン案内の合計数",
		}),
	}

	reg.MustRegister(
		c.localAdd,
		c.upstreamReq,
		c.upstreamLatency,
		c.syncSuccess,
		c.syncFail,
		c.nudgeOffered,
	)

	return c
}

// RecordLocalAdd はゲストカートへの追加を記録する。
func (c *Collector) RecordLocalAdd() {
	c.localAdd.Inc()
}

// RecordUpstreamRequest は上流リクエストを操作・ステータスコード別に記録する。
// トランスポート障害でレスポンスが得られなかった場合はstatusCode 0で記録される。
func (c *Collector) RecordUpstreamRequest(op string, statusCode int) {
	c.upstreamReq.WithLabelValues(op, strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency は上流呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(op string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordSyncSuccess はカート同期成功を記録する。
func (c *Collector) RecordSyncSuccess() {
	c.syncSuccess.Inc()
}

// RecordSyncFailure はカート同期失敗を理由別に記録する。
func (c *Collector) RecordSyncFailure(reason string) {
	c.syncFail.WithLabelValues(reason).Inc()
}

// RecordNudgeOffered はログイン案内の提示を記録する。
func (c *Collector) RecordNudgeOffered() {
	c.nudgeOffered.Inc()
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type NopCollector struct{}

// RecordLocalAdd は何もしない。
func (NopCollector) RecordLocalAdd() {}

// RecordUpstreamRequest は何もしない。
func (NopCollector) RecordUpstreamRequest(op string, statusCode int) {}

// RecordUpstreamLatency は何もしない。
func (NopCollector) RecordUpstreamLatency(op string, duration time.Duration) {}

// RecordSyncSuccess は何もしない。
func (NopCollector) RecordSyncSuccess() {}

// RecordSyncFailure は何もしない。
func (NopCollector) RecordSyncFailure(reason string) {}

// RecordNudgeOffered は何もしない。
func (NopCollector) RecordNudgeOffered() {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// ルーターが/metricsにマウントする。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
