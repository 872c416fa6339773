package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromSink exports event totals and query latency as Prometheus
// metrics.
type PromSink struct {
	events   *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewPromSink registers the metrics with reg and returns the sink.
func NewPromSink(reg prometheus.Registerer) *PromSink {
	factory := promauto.With(reg)
	return &PromSink{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ragchat_events_total",
			Help: "Pipeline events by type.",
		}, []string{"type"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ragchat_query_duration_seconds",
			Help:    "End-to-end chat query latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (s *PromSink) Record(ctx context.Context, e Event) {
	s.events.WithLabelValues(string(e.Type)).Inc()

	if e.Type == EventPerformance {
		if ms, ok := e.Fields["duration_ms"].(int64); ok {
			s.duration.Observe(float64(ms) / 1000.0)
		}
	}
}

var _ Sink = (*PromSink)(nil)
