package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus records gate events as counters and operation latencies as
// histograms, labeled by network.
type Prometheus struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

// NewPrometheus builds a recorder and registers its collectors with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402",
			Name:      "events_total",
			Help:      "Payment gate event counters.",
		},
		[]string{"type", "network"},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "x402",
			Name:      "latency_seconds",
			Help:      "Facilitator and chain operation latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "network"},
	)

	reg.MustRegister(counters, histogram)

	return &Prometheus{counters: counters, histogram: histogram}
}

func (p *Prometheus) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":    name,
		"network": labels["network"],
	}).Inc()
}

func (p *Prometheus) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"operation": name,
		"network":   labels["network"],
	}).Observe(d.Seconds())
}
