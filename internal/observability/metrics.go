package observability

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	qualityScore  prometheus.Histogram
	qualityChecks *prometheus.CounterVec
	tierSelected  *prometheus.CounterVec
	queueClaims   *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return true
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("Prometheus metrics initialized")
		}
	})
	return instance
}

// NewMetrics builds an unregistered-global metrics set on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cg_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cg_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cg_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cg_llm_requests_total",
			Help: "LLM provider requests by model/path/status.",
		}, []string{"model", "path", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cg_llm_request_duration_seconds",
			Help:    "LLM provider latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"model", "path"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cg_llm_tokens_total",
			Help: "LLM tokens by model and direction.",
		}, []string{"model", "direction"}),
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cg_stage_runs_total",
			Help: "Stage handler executions by job type and outcome.",
		}, []string{"job_type", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cg_stage_duration_seconds",
			Help:    "Stage handler duration in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"job_type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cg_state_transitions_total",
			Help: "Course generation state transitions by target status kind.",
		}, []string{"status"}),
		qualityScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cg_quality_score",
			Help:    "Cosine similarity between originals and summaries.",
			Buckets: []float64{0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1},
		}),
		qualityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cg_quality_checks_total",
			Help: "Summary quality checks by result.",
		}, []string{"passed"}),
		tierSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cg_budget_tier_selected_total",
			Help: "Budget allocations by selected tier.",
		}, []string{"tier"}),
		queueClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cg_queue_claims_total",
			Help: "Queue lease attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.stageRuns, m.stageDuration, m.transitions,
		m.qualityScore, m.qualityChecks, m.tierSelected, m.queueClaims,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveAPI(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(d.Seconds())
}

func (m *Metrics) ObserveLLMRequest(model, path, status string, d time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(model, path, status).Inc()
	m.llmLatency.WithLabelValues(model, path).Observe(d.Seconds())
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) ObserveStage(jobType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageRuns.WithLabelValues(jobType, outcome).Inc()
	m.stageDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

func (m *Metrics) ObserveTransition(status string) {
	if m != nil {
		m.transitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveQuality(score float64, passed bool) {
	if m == nil {
		return
	}
	m.qualityScore.Observe(score)
	label := "false"
	if passed {
		label = "true"
	}
	m.qualityChecks.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveTier(tier string) {
	if m != nil {
		m.tierSelected.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) ObserveQueueClaim(result string) {
	if m != nil {
		m.queueClaims.WithLabelValues(result).Inc()
	}
}
