package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	InboundMessages     *prometheus.CounterVec
	ActiveConversations prometheus.Gauge
	LLMLatency          *prometheus.HistogramVec
	ToolCalls           *prometheus.CounterVec
	Compactions         prometheus.Counter
	ChunksSent          prometheus.Counter
	DuplicateDeliveries prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		InboundMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound messages by outcome.",
		}, []string{"outcome"}),
		ActiveConversations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Number of conversations currently active.",
		}),
		LLMLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_latency_ms",
			Help:      "Model request latency in milliseconds by kind.",
			Buckets:   []float64{200, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}, []string{"kind", "status"}),
		ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by name and status.",
		}, []string{"tool", "status"}),
		Compactions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "Number of history compactions performed.",
		}),
		ChunksSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_chunks_sent_total",
			Help:      "Outbound reply chunks sent to the messaging gateway.",
		}),
		DuplicateDeliveries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_deliveries_total",
			Help:      "Inbound deliveries dropped by the dedup guard.",
		}),
	}
}

func (m *Metrics) ObserveLLMLatency(kind, status string, d time.Duration) {
	m.LLMLatency.WithLabelValues(kind, status).Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
