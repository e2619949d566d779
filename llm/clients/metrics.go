package clients

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 请求与客户端池指标
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	pool     *prometheus.CounterVec
}

// NewMetrics registers the dispatcher collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gptshell_requests_total",
			Help: "Provider requests by task and outcome",
		}, []string{"task", "outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gptshell_request_duration_seconds",
			Help:    "Provider request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		pool: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gptshell_client_pool_lookups_total",
			Help: "Client pool lookups by result",
		}, []string{"result"}),
	}
}

// Registry exposes the collectors for promhttp.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) observe(task, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(task, outcome).Inc()
	m.latency.WithLabelValues(task).Observe(seconds)
}

func (m *Metrics) poolLookup(cached bool) {
	if m == nil {
		return
	}
	result := "miss"
	if cached {
		result = "hit"
	}
	m.pool.WithLabelValues(result).Inc()
}
