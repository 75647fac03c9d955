// Package metrics provides Prometheus-based metrics for the support chat.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records chat lifecycle events.
type Recorder interface {
	// ObserveTransition counts one dialogue engine reply by kind and matched rule.
	ObserveTransition(kind, rule string)
	// ObserveChatStarted counts a new chat.
	ObserveChatStarted()
	// ObserveRejected counts an operation rejected with the given reason.
	ObserveRejected(op, reason string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) ObserveTransition(string, string) {}
func (NopRecorder) ObserveChatStarted()              {}
func (NopRecorder) ObserveRejected(string, string)   {}

// PrometheusRecorder implements Recorder with Prometheus counters.
type PrometheusRecorder struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	chats       prometheus.Counter
	rejected    *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder with its own registry, which also
// carries the Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "support_dialogue_transitions_total",
				Help: "Dialogue engine replies by transition kind and matched keyword rule",
			},
			[]string{"kind", "rule"},
		),
		chats: factory.NewCounter(prometheus.CounterOpts{
			Name: "support_chats_started_total",
			Help: "Total number of chats started",
		}),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "support_operations_rejected_total",
				Help: "Chat operations rejected by operation and reason",
			},
			[]string{"op", "reason"},
		),
	}
}

// ObserveTransition implements Recorder.
func (p *PrometheusRecorder) ObserveTransition(kind, rule string) {
	p.transitions.WithLabelValues(kind, rule).Inc()
}

// ObserveChatStarted implements Recorder.
func (p *PrometheusRecorder) ObserveChatStarted() {
	p.chats.Inc()
}

// ObserveRejected implements Recorder.
func (p *PrometheusRecorder) ObserveRejected(op, reason string) {
	p.rejected.WithLabelValues(op, reason).Inc()
}

// Handler serves the recorder's registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}
