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
// 対局サービス、複製、ストア、スイープワーカーから利用する。
type MetricsCollector interface {
	RecordTransition(action string, terminated bool)
	RecordRejection(action, code string)
	RecordActionLatency(action string, duration time.Duration)
	RecordSessionCompleted(gameType string)
	RecordRatingApplied(gameType string)
	RecordReplicationConflict(key string)
	RecordReplicationExhausted(key string)
	RecordFanoutFailure()
	RecordStoreRetry(op string)
	RecordHookFailure(hook string)
	RecordSweepAction(kind string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	transitions  *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	completed    *prometheus.CounterVec
	ratings      *prometheus.CounterVec
	conflicts    prometheus.Counter
	exhausted    prometheus.Counter
	fanoutFail   prometheus.Counter
	storeRetries *prometheus.CounterVec
	hookFail     *prometheus.CounterVec
	sweep        *prometheus.CounterVec
	httpStatus   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banmen_transitions_total",
			Help: "受理された対局操作の数",
		}, []string{"action", "terminal"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banmen_rejections_total",
			Help: "拒否された対局操作のエラーコード別の数",
		}, []string{"action", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "banmen_action_latency_seconds",
			Help:    "対局操作の処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banmen_sessions_completed_total",
			Help: "終局した対局の数",
		}, []string{"game_type"}),
		ratings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banmen_ratings_applied_total",
			Help: "レーティングを反映した対局の数",
		}, []string{"game_type"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "banmen_replication_conflicts_total",
			Help: "プレイヤー一覧の楽観的更新で発生した競合の数",
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "banmen_replication_exhausted_total",
			Help: "試行回数を使い切った楽観的更新の数",
		}),
		fanoutFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "banmen_fanout_failures_total",
			Help: "複製に失敗した対局操作の数",
		}),
		storeRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banmen_store_retries_total",
			Help: "一時的なエラーによるストア操作の再試行数",
		}, []string{"op"}),
		hookFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banmen_hook_failures_total",
			Help: "終局フックの失敗数",
		}, []string{"hook"}),
		sweep: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banmen_sweep_actions_total",
			Help: "スイープワーカーが適用した操作の数",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "banmen_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.transitions,
		c.rejections,
		c.latency,
		c.completed,
		c.ratings,
		c.conflicts,
		c.exhausted,
		c.fanoutFail,
		c.storeRetries,
		c.hookFail,
		c.sweep,
		c.httpStatus,
	)

	return c
}

// RecordTransition は受理された操作を記録する。
func (c *Collector) RecordTransition(action string, terminated bool) {
	c.transitions.WithLabelValues(action, strconv.FormatBool(terminated)).Inc()
}

// RecordRejection は拒否された操作を記録する。
func (c *Collector) RecordRejection(action, code string) {
	c.rejections.WithLabelValues(action, code).Inc()
}

// RecordActionLatency は操作の処理時間を記録する。
func (c *Collector) RecordActionLatency(action string, duration time.Duration) {
	c.latency.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordSessionCompleted は終局を記録する。
func (c *Collector) RecordSessionCompleted(gameType string) {
	c.completed.WithLabelValues(gameType).Inc()
}

// RecordRatingApplied はレーティングの反映を記録する。
func (c *Collector) RecordRatingApplied(gameType string) {
	c.ratings.WithLabelValues(gameType).Inc()
}

// RecordReplicationConflict は楽観的更新の競合を記録する。キーはラベルにしない。
func (c *Collector) RecordReplicationConflict(key string) {
	c.conflicts.Inc()
}

// RecordReplicationExhausted は試行回数の使い切りを記録する。
func (c *Collector) RecordReplicationExhausted(key string) {
	c.exhausted.Inc()
}

// RecordFanoutFailure は複製の失敗を記録する。
func (c *Collector) RecordFanoutFailure() {
	c.fanoutFail.Inc()
}

// RecordStoreRetry はストア操作の再試行を記録する。
func (c *Collector) RecordStoreRetry(op string) {
	c.storeRetries.WithLabelValues(op).Inc()
}

// RecordHookFailure は終局フックの失敗を記録する。
func (c *Collector) RecordHookFailure(hook string) {
	c.hookFail.WithLabelValues(hook).Inc()
}

// RecordSweepAction はスイープワーカーの操作を記録する。
func (c *Collector) RecordSweepAction(kind string) {
	c.sweep.WithLabelValues(kind).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストとメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordTransition(string, bool)             {}
func (Nop) RecordRejection(string, string)            {}
func (Nop) RecordActionLatency(string, time.Duration) {}
func (Nop) RecordSessionCompleted(string)             {}
func (Nop) RecordRatingApplied(string)                {}
func (Nop) RecordReplicationConflict(string)          {}
func (Nop) RecordReplicationExhausted(string)         {}
func (Nop) RecordFanoutFailure()                      {}
func (Nop) RecordStoreRetry(string)                   {}
func (Nop) RecordHookFailure(string)                  {}
func (Nop) RecordSweepAction(string)                  {}
func (Nop) RecordHTTPStatus(int)                      {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
