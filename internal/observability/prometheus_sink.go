// Package observability provides a Prometheus-backed Sink implementation.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink directly against the real event names and
// attributes the executor emits (request_start, request_end, retry,
// fallback — see executor.go/attempt.go), registering its collectors with
// the default Prometheus registry as a side effect of construction.
type PrometheusSink struct {
	activeRequests prometheus.Gauge
	requestsTotal  *prometheus.CounterVec
	retriesTotal   *prometheus.CounterVec
	fallbacksTotal *prometheus.CounterVec
}

// NewPrometheusSink creates a Sink backed by Prometheus collectors.
func NewPrometheusSink() *PrometheusSink {
	s := &PrometheusSink{
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aiproto_active_requests",
			Help: "Number of in-flight requests across all targets.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aiproto_requests_total",
			Help: "Total completed requests, by target and outcome.",
		}, []string{"target", "success"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aiproto_retries_total",
			Help: "Total retry attempts, by target and error kind.",
		}, []string{"target", "kind"}),
		fallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aiproto_fallbacks_total",
			Help: "Total fallback transitions away from a target, by error kind.",
		}, []string{"original_target", "kind"}),
	}

	prometheus.MustRegister(
		s.activeRequests,
		s.requestsTotal,
		s.retriesTotal,
		s.fallbacksTotal,
	)

	return s
}

// Emit records the subset of executor-emitted events Prometheus metrics
// make sense for; every other event name is a no-op. request_end carries
// "target" only on success (see attempt.go); a final failure after
// exhausting every fallback target reports an empty target label.
func (s *PrometheusSink) Emit(ctx context.Context, event Event) {
	switch event.Name {
	case "request_start":
		s.activeRequests.Inc()
	case "request_end":
		target, _ := event.Attributes["target"].(string)
		success, _ := event.Attributes["success"].(bool)
		s.activeRequests.Dec()
		s.requestsTotal.WithLabelValues(target, boolLabel(success)).Inc()
	case "retry":
		target, _ := event.Attributes["target"].(string)
		kind, _ := event.Attributes["kind"].(string)
		s.retriesTotal.WithLabelValues(target, kind).Inc()
	case "fallback":
		original, _ := event.Attributes["original_target"].(string)
		kind, _ := event.Attributes["kind"].(string)
		s.fallbacksTotal.WithLabelValues(original, kind).Inc()
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
