// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordLogin(outcome string)
	RecordAccountProvisioned()
	RecordIntrospection(outcome string, duration time.Duration)
	RecordSignedURLVerification(accepted bool)
	RecordTicketsPurged(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins               *prometheus.CounterVec
	accountsProvisioned  prometheus.Counter
	introspections       *prometheus.CounterVec
	introspectionLatency prometheus.Histogram
	signedURLChecks      *prometheus.CounterVec
	ticketsPurged        prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photokeep_logins_total",
			Help: "OAuthログイン試行の結果別合計数",
		}, []string{"outcome"}),
		accountsProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photokeep_accounts_provisioned_total",
			Help: "自動プロビジョニングされたアカウントの合計数",
		}),
		introspections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photokeep_token_introspections_total",
			Help: "ベアラートークン検証の結果別合計数",
		}, []string{"outcome"}),
		introspectionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "photokeep_token_introspection_latency_seconds",
			Help:    "トークン検証（ローカル検証＋イントロスペクション）のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		signedURLChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photokeep_signed_url_verifications_total",
			Help: "署名付きURL検証の結果別合計数",
		}, []string{"result"}),
		ticketsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photokeep_tickets_purged_total",
			Help: "クリーンアップワーカーが削除した期限切れチケットの合計数",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.accountsProvisioned,
		c.introspections,
		c.introspectionLatency,
		c.signedURLChecks,
		c.ticketsPurged,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。
// outcomeは "success" または "failure"。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordAccountProvisioned は自動プロビジョニングされたアカウントを記録する。
func (c *Collector) RecordAccountProvisioned() {
	c.accountsProvisioned.Inc()
}

// RecordIntrospection はベアラートークン検証の結果とレイテンシを記録する。
// outcomeは "active"、"malformed"、"invalid"、"not_active"、
// "unreachable"、"error" のいずれか。
func (c *Collector) RecordIntrospection(outcome string, duration time.Duration) {
	c.introspections.WithLabelValues(outcome).Inc()
	c.introspectionLatency.Observe(duration.Seconds())
}

// RecordSignedURLVerification は署名付きURL検証の結果を記録する。
func (c *Collector) RecordSignedURLVerification(accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	c.signedURLChecks.WithLabelValues(result).Inc()
}

// RecordTicketsPurged はクリーンアップワーカーが削除したチケット数を記録する。
func (c *Collector) RecordTicketsPurged(count int) {
	c.ticketsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
