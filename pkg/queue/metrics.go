package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus collectors for the scheduler. A nil *Metrics
// is valid and records nothing, so queues can be wired without metrics.
type Metrics struct {
	submissions    *prometheus.CounterVec
	completions    *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	inFlight       *prometheus.GaugeVec
	admissionWait  *prometheus.HistogramVec
	processingTime *prometheus.HistogramVec
	inputTokens    *prometheus.CounterVec
	outputTokens   *prometheus.CounterVec
}

// NewMetrics creates collectors registered with the default Prometheus
// registerer. Call at most once per process.
func NewMetrics() *Metrics {
	return NewMetricsFor(prometheus.DefaultRegisterer)
}

// NewMetricsFor creates collectors registered with the given registerer.
func NewMetricsFor(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ganymede_queue_submissions_total",
				Help: "Total number of requests enqueued",
			},
			[]string{"model_id"},
		),

		completions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ganymede_queue_completions_total",
				Help: "Total number of requests reaching a terminal status",
			},
			[]string{"model_id", "status"},
		),

		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ganymede_queue_depth",
				Help: "Number of requests waiting for admission",
			},
			[]string{"model_id"},
		),

		inFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ganymede_queue_in_flight",
				Help: "Number of requests currently holding the limiter chain",
			},
			[]string{"model_id"},
		),

		admissionWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ganymede_queue_admission_wait_seconds",
				Help:    "Time spent waiting for all limiters to admit a request",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"model_id"},
		),

		processingTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ganymede_queue_processing_seconds",
				Help:    "Processor wall-clock duration",
				Buckets: prometheus.ExponentialBuckets(0.01, 3, 10),
			},
			[]string{"model_id"},
		),

		inputTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ganymede_queue_input_tokens_total",
				Help: "Actual input tokens reported by processors",
			},
			[]string{"model_id"},
		),

		outputTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ganymede_queue_output_tokens_total",
				Help: "Actual output tokens reported by processors",
			},
			[]string{"model_id"},
		),
	}
}

func (m *Metrics) observeEnqueue(modelID string, depth int) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(modelID).Inc()
	m.queueDepth.WithLabelValues(modelID).Set(float64(depth))
}

func (m *Metrics) setDepth(modelID string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(modelID).Set(float64(depth))
}

func (m *Metrics) setInFlight(modelID string, inFlight int) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(modelID).Set(float64(inFlight))
}

func (m *Metrics) observeAdmissionWait(modelID string, wait time.Duration) {
	if m == nil {
		return
	}
	m.admissionWait.WithLabelValues(modelID).Observe(wait.Seconds())
}

func (m *Metrics) observeComplete(modelID string, status Status, inputTokens, outputTokens int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(modelID, string(status)).Inc()
	m.processingTime.WithLabelValues(modelID).Observe(elapsed.Seconds())
	if inputTokens > 0 {
		m.inputTokens.WithLabelValues(modelID).Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.outputTokens.WithLabelValues(modelID).Add(float64(outputTokens))
	}
}
