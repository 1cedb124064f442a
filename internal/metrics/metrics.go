// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	PhaseTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reposcout",
		Name:      "phase_transitions_total",
		Help:      "Search request phase transitions by target phase.",
	}, []string{"phase"})

	AnalystOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reposcout",
		Name:      "analyst_outcomes_total",
		Help:      "Analyst task outcomes (complete, error, skipped).",
	}, []string{"outcome"})

	AnalystsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reposcout",
		Name:      "analysts_in_flight",
		Help:      "Analyst tasks currently running.",
	})

	CorrectionsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reposcout",
		Name:      "corrections_sent_total",
		Help:      "Correction messages delivered to analysts.",
	})

	JudgeDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reposcout",
		Name:      "judge_decisions_total",
		Help:      "Judge verdicts by decision.",
	}, []string{"verdict"})

	EnrichmentsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reposcout",
		Name:      "enrichments_processed_total",
		Help:      "Enrichments finished by final status.",
	}, []string{"status"})

	GenerationAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reposcout",
		Name:      "generation_attempts_total",
		Help:      "Structured generation attempts by result.",
	}, []string{"result"})

	GenerationTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reposcout",
		Name:      "generation_tokens_total",
		Help:      "Model tokens billed by kind (prompt, completion, embedding).",
	}, []string{"kind"})

	// WorkerPasses counts background loop passes per worker kind.
	WorkerPasses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reposcout",
		Name:      "worker_passes_total",
		Help:      "Background worker passes by worker kind and outcome (ok, error, panic).",
	}, []string{"worker", "outcome"})

	// HTTPRequests is labelled by route pattern, never by raw path.
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reposcout",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reposcout",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		PhaseTransitions,
		AnalystOutcomes,
		AnalystsInFlight,
		CorrectionsSent,
		JudgeDecisions,
		WorkerPasses,
		GenerationTokens,
		EnrichmentsProcessed,
		GenerationAttempts,
		HTTPRequests,
		HTTPDuration,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func Registry() *prometheus.Registry {
	return registry
}
