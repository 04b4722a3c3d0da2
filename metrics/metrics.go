package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const subsystem = "bridge"

// DeliveryBuckets covers hand-off latency from a native worker to the host
// context, which is usually sub-millisecond.
var DeliveryBuckets = []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5}

type Histogram interface {
	Observe(float64)
}

type Counter interface {
	Inc()
	Add(float64)
}

type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
	Sub(float64)
}

// CounterVec is a labeled counter family.
type CounterVec interface {
	With(labels ...string) Counter
}

type NoopStat struct{}

type noopCounterVec struct{}

func (n noopCounterVec) With(labels ...string) Counter { return NoopStat{} }

func (n NoopStat) Observe(float64) {}
func (n NoopStat) Set(float64)     {}
func (n NoopStat) Dec()            {}
func (n NoopStat) Sub(float64)     {}
func (n NoopStat) Inc()            {}
func (n NoopStat) Add(float64)     {}

type prometheusCounterVec struct {
	vec *prometheus.CounterVec
}

func (p *prometheusCounterVec) With(labelValues ...string) Counter {
	return p.vec.WithLabelValues(labelValues...)
}

// Metrics groups the bridge's instruments.
type Metrics struct {
	// RequestsStarted counts requests registered with the bridge
	RequestsStarted Counter

	// Completions counts native completions by outcome (delivered, dropped, stale)
	Completions CounterVec

	// InFlight tracks registered requests awaiting their finished completion
	InFlight Gauge

	// Drained counts requests released unanswered by shutdown
	Drained Counter

	// Cancelled counts requests released by Cancel
	Cancelled Counter

	// DeliveryLatency measures seconds from native completion to host callback
	DeliveryLatency Histogram
}

// Noop returns metrics that record nothing.
func Noop() *Metrics {
	return &Metrics{
		RequestsStarted: NoopStat{},
		Completions:     noopCounterVec{},
		InFlight:        NoopStat{},
		Drained:         NoopStat{},
		Cancelled:       NoopStat{},
		DeliveryLatency: NoopStat{},
	}
}

// New registers the bridge metrics with reg under namespace. A nil reg
// yields Noop metrics.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		return Noop()
	}

	requests := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_started_total",
		Help:      "Requests registered with the bridge.",
	})
	completions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "completions_total",
		Help:      "Native completions by dispatch outcome.",
	}, []string{"outcome"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_in_flight",
		Help:      "Requests awaiting their finished completion.",
	})
	drained := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_drained_total",
		Help:      "Requests released unanswered at shutdown.",
	})
	cancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_cancelled_total",
		Help:      "Requests released by cancellation.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "delivery_latency_seconds",
		Help:      "Time from native completion to host callback.",
		Buckets:   DeliveryBuckets,
	})

	reg.MustRegister(requests, completions, inFlight, drained, cancelled, latency)

	return &Metrics{
		RequestsStarted: requests,
		Completions:     &prometheusCounterVec{vec: completions},
		InFlight:        inFlight,
		Drained:         drained,
		Cancelled:       cancelled,
		DeliveryLatency: latency,
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
