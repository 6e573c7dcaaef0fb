// Package metrics exposes the Prometheus registry the admission
// pipeline records outcomes into, and the HTTP handler adminhttp
// mounts at /metrics.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Relay is the lazily-initialised, process-wide metrics registry. It
// implements pipeline.Recorder.
type Relay struct {
	outcomes        *prometheus.CounterVec
	rateLimited     prometheus.Counter
	webhookFailures *prometheus.CounterVec
	feesCollected   *prometheus.CounterVec
}

var (
	once     sync.Once
	registry *Relay
)

// Registry returns the singleton Relay metrics registry, registering its
// collectors with the default Prometheus registerer on first call.
func Registry() *Relay {
	once.Do(func() {
		registry = &Relay{
			outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "relay",
				Subsystem: "admission",
				Name:      "outcomes_total",
				Help:      "Count of admission outcomes by acceptance and rejection reason.",
			}, []string{"accepted", "reason"}),
			rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "relay",
				Subsystem: "admission",
				Name:      "rate_limited_total",
				Help:      "Count of events rejected by the sliding-window rate limiter.",
			}),
			webhookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "relay",
				Subsystem: "webhooks",
				Name:      "failures_total",
				Help:      "Count of failed webhook delivery attempts by endpoint.",
			}, []string{"endpoint"}),
			feesCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "relay",
				Subsystem: "fees",
				Name:      "collected_total",
				Help:      "Sum of fee amounts collected by fee kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			registry.outcomes,
			registry.rateLimited,
			registry.webhookFailures,
			registry.feesCollected,
		)
	})
	return registry
}

// ObserveOutcome implements pipeline.Recorder.
func (r *Relay) ObserveOutcome(accepted bool, reason string) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(strconv.FormatBool(accepted), reason).Inc()
}

// ObserveRateLimited implements pipeline.Recorder.
func (r *Relay) ObserveRateLimited() {
	if r == nil {
		return
	}
	r.rateLimited.Inc()
}

// ObserveWebhookFailure implements pipeline.Recorder.
func (r *Relay) ObserveWebhookFailure(endpoint string) {
	if r == nil {
		return
	}
	r.webhookFailures.WithLabelValues(endpoint).Inc()
}

// ObserveFeeCollected implements pipeline.Recorder. amount is parsed as a
// decimal number into a float64 counter increment; a malformed amount is recorded as zero rather
// than panicking, since metrics must never be able to crash the pipeline.
func (r *Relay) ObserveFeeCollected(kind string, amount string) {
	if r == nil {
		return
	}
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		v = 0
	}
	r.feesCollected.WithLabelValues(kind).Add(v)
}
