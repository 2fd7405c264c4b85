package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/fetch-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/internal/telemetry"
)

const outcomeSuccess = "success"

// Exporter publishes fetch metrics as Prometheus series.
type Exporter struct {
	registry     *prometheus.Registry
	attempts     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	bytes        *prometheus.CounterVec
	fetches      *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	health       prometheus.Gauge
}

// NewExporter creates an exporter with its own registry, including Go
// runtime and process collectors.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Exporter{
		registry: reg,
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_provider_attempts_total",
				Help: "Provider attempts by outcome (success or failure category)",
			},
			[]string{"provider", "engine", "outcome"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fetch_provider_attempt_duration_seconds",
				Help:    "Duration of provider attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "engine"},
		),
		bytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_provider_bytes_total",
				Help: "Response bytes received from providers",
			},
			[]string{"provider", "engine"},
		),
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_requests_total",
				Help: "Completed fetches by engine and result",
			},
			[]string{"engine", "result"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fetch_breaker_state",
				Help: "Circuit breaker state per provider and engine (0 closed, 1 open, 2 half-open)",
			},
			[]string{"provider", "engine"},
		),
		health: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fetch_system_health",
				Help: "System health level (0 operational, 1 degraded, 2 critical)",
			},
		),
	}
}

// ObserveTrace records one attempt. Short-circuits only bump the attempt
// counter under the circuitOpen outcome.
func (e *Exporter) ObserveTrace(t telemetry.Trace) {
	outcome := outcomeSuccess
	if !t.Success {
		outcome = string(t.Category)
	}
	e.attempts.WithLabelValues(t.Provider, string(t.Engine), outcome).Inc()

	if t.Duration > 0 {
		e.latency.WithLabelValues(t.Provider, string(t.Engine)).Observe(t.Duration.Seconds())
	}
	if t.Bytes > 0 {
		e.bytes.WithLabelValues(t.Provider, string(t.Engine)).Add(float64(t.Bytes))
	}
}

func (e *Exporter) ObserveFetch(eng engine.Engine, success bool) {
	result := "exhausted"
	if success {
		result = outcomeSuccess
	}
	e.fetches.WithLabelValues(string(eng), result).Inc()
}

func (e *Exporter) ObserveTransition(t circuitbreaker.Transition) {
	e.breakerState.WithLabelValues(t.Key.Provider, string(t.Key.Engine)).Set(float64(t.To))
}

// SetHealth records the current health level.
func (e *Exporter) SetHealth(level int) {
	e.health.Set(float64(level))
}

func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}
