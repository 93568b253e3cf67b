// Package metrics は上流サービス呼び出しのPrometheusメトリクスを提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は上流呼び出しの件数と所要時間を記録する。
type Collector struct {
	// registry はメトリクスの登録先。プロセス全体のデフォルトレジストリとは分離する。
	registry *prometheus.Registry
	// requests はサービス・メソッド・ステータスごとの呼び出し件数。
	requests *prometheus.CounterVec
	// durations はサービスごとの呼び出し所要時間。
	durations *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成する。
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Number of requests forwarded to upstream services.",
		}, []string{"service", "method", "code"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Latency of requests forwarded to upstream services.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
	}
	reg.MustRegister(
		c.requests,
		c.durations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveUpstream は1回の上流呼び出しを記録する。
// 合成されたステータス（504など）もそのまま記録する。
func (c *Collector) ObserveUpstream(service, method string, status int, elapsed time.Duration) {
	c.requests.WithLabelValues(service, method, strconv.Itoa(status)).Inc()
	c.durations.WithLabelValues(service).Observe(elapsed.Seconds())
}

// Handler はPrometheus形式でメトリクスを公開するハンドラを返す。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
