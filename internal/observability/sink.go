package observability

import "time"

// Sink fans latency and cost observations out to both the Prometheus
// instruments and the in-process stage window that backs the stats
// endpoint. It satisfies the realtime session's UsageSink seam.
type Sink struct {
	metrics *Metrics
	window  *StageWindow
}

func NewSink(metrics *Metrics, window *StageWindow) *Sink {
	return &Sink{metrics: metrics, window: window}
}

func (s *Sink) ObserveLatency(stage string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveStageLatency(stage, d)
	}
	if s.window != nil {
		s.window.Observe(stage, float64(d.Milliseconds()))
	}
}

func (s *Sink) ObserveCost(usd float64) {
	if s.metrics != nil {
		s.metrics.CostUSD.Add(usd)
	}
}
