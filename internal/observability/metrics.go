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
	ActiveSessions      prometheus.Gauge
	RealtimeEvents      *prometheus.CounterVec
	TransportReconnects prometheus.Counter
	BackendErrors       *prometheus.CounterVec
	SpeechSegments      prometheus.Counter
	Interruptions       prometheus.Counter
	StageLatency        *prometheus.HistogramVec
	CostUSD             prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active capture sessions.",
		}),
		RealtimeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Inbound realtime backend events by type.",
		}, []string{"type"}),
		TransportReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_reconnects_total",
			Help:      "Realtime transport reconnect cycles.",
		}),
		BackendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Non-benign backend errors by code.",
		}, []string{"code"}),
		SpeechSegments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_segments_total",
			Help:      "Speech segments detected by the voice activity detector.",
		}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Times the user spoke over assistant playback.",
		}),
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Pipeline stage latency in milliseconds.",
			Buckets:   []float64{50, 100, 200, 300, 500, 700, 900, 1200, 2000, 5000},
		}, []string{"stage"}),
		CostUSD: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_cost_usd_total",
			Help:      "Estimated backend spend in USD, derived from usage events.",
		}),
	}
}

func (m *Metrics) ObserveStageLatency(stage string, d time.Duration) {
	m.StageLatency.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
