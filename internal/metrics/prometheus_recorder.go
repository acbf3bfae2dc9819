package metrics

import (
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ulp"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	attemptDuration   *prom.HistogramVec
	attempts          *prom.CounterVec
	sectionsCompleted *prom.CounterVec
	sectionsExhausted *prom.CounterVec
	transportRetries  *prom.CounterVec
	quotaRejected     prom.Counter
	runOutcomes       *prom.CounterVec
	runDuration       prom.Histogram
}

// NewPrometheusRecorder constructs and registers the metrics on reg (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		attemptDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Duration of individual generation attempts",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 90},
		}, []string{"section"}),
		attempts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Generation attempts by section and outcome",
		}, []string{"section", "outcome"}),
		sectionsCompleted: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sections_completed_total",
			Help:      "Sections that passed validation",
		}, []string{"section"}),
		sectionsExhausted: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sections_exhausted_total",
			Help:      "Sections whose attempts were exhausted",
		}, []string{"section"}),
		transportRetries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "transport_retries_total",
			Help:      "Generation service calls retried after a transient failure",
		}, []string{"status"}),
		quotaRejected: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "quota_rejected_total",
			Help:      "Generation calls rejected by the monthly usage limit",
		}),
		runOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Pipeline runs by final status",
		}, []string{"outcome"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs",
			Buckets:   prom.ExponentialBuckets(5, 2, 10),
		}),
	}
	reg.MustRegister(pr.attemptDuration, pr.attempts, pr.sectionsCompleted, pr.sectionsExhausted,
		pr.transportRetries, pr.quotaRejected, pr.runOutcomes, pr.runDuration)
	return pr
}

func (p *PrometheusRecorder) ObserveAttempt(section string, outcome AttemptOutcome, d time.Duration) {
	if p == nil {
		return
	}
	p.attemptDuration.WithLabelValues(section).Observe(d.Seconds())
	p.attempts.WithLabelValues(section, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncSectionCompleted(section string) {
	if p == nil {
		return
	}
	p.sectionsCompleted.WithLabelValues(section).Inc()
}

func (p *PrometheusRecorder) IncSectionExhausted(section string) {
	if p == nil {
		return
	}
	p.sectionsExhausted.WithLabelValues(section).Inc()
}

func (p *PrometheusRecorder) IncTransportRetry(status int) {
	if p == nil {
		return
	}
	p.transportRetries.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (p *PrometheusRecorder) IncQuotaRejected() {
	if p == nil {
		return
	}
	p.quotaRejected.Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil {
		return
	}
	p.runOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
