// Package metrics exposes prometheus counters for conversation turns,
// completion failures, summarization passes and retrieval latency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the metrics of one assistant process. A nil *Collector is
// valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	Turns              prometheus.Counter
	CompletionFailures prometheus.Counter
	Summarizations     *prometheus.CounterVec
	RetrievalDuration  prometheus.Histogram
}

// New creates a collector registered on its own registry.
func New(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Turns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of user turns processed",
		}),
		CompletionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_failures_total",
			Help:      "Completion calls that failed and were replaced by the fallback reply",
		}),
		Summarizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summarizations_total",
			Help:      "Summarization passes by mode (llm or fallback)",
		}, []string{"mode"}),
		RetrievalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Time spent embedding the query and ranking the index",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	c.registry.MustRegister(c.Turns, c.CompletionFailures, c.Summarizations, c.RetrievalDuration)
	return c
}

// Registry returns the registry holding this collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveTurn() {
	if c == nil {
		return
	}
	c.Turns.Inc()
}

func (c *Collector) ObserveCompletionFailure() {
	if c == nil {
		return
	}
	c.CompletionFailures.Inc()
}

// ObserveSummary records one summarization pass.
func (c *Collector) ObserveSummary(fallback bool) {
	if c == nil {
		return
	}
	mode := "llm"
	if fallback {
		mode = "fallback"
	}
	c.Summarizations.WithLabelValues(mode).Inc()
}

func (c *Collector) ObserveRetrieval(d time.Duration) {
	if c == nil {
		return
	}
	c.RetrievalDuration.Observe(d.Seconds())
}
