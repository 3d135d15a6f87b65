package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Update outcomes.
const (
	outcomeHandled   = "handled"
	outcomeDuplicate = "duplicate"
	outcomeDropped   = "dropped"
	outcomeLimited   = "rate_limited"
	outcomeIgnored   = "ignored"
	outcomePanic     = "panic"
)

// Collaborators for remote_failures_total.
const (
	collaboratorDedupe    = "dedupe"
	collaboratorRateLimit = "rate_limit"
	collaboratorState     = "state"
	collaboratorLedger    = "ledger"
	collaboratorTelegram  = "telegram"
)

// Metrics структура для метрик Prometheus
type Metrics struct {
	UpdatesTotal         *prometheus.CounterVec
	StepTransitions      *prometheus.CounterVec
	SubmissionsTotal     *prometheus.CounterVec
	RemoteFailures       *prometheus.CounterVec
	UpdateProcessingTime prometheus.Histogram
}

// NewMetrics создает метрики и регистрирует их в reg (DefaultRegisterer, если nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		UpdatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nobat",
			Name:      "updates_total",
			Help:      "Telegram updates by outcome",
		}, []string{"outcome"}),

		StepTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nobat",
			Name:      "step_transitions_total",
			Help:      "Dialogue messages by current step and result",
		}, []string{"step", "result"}),

		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nobat",
			Name:      "submissions_total",
			Help:      "Confirmed appointments by ledger result",
		}, []string{"result"}),

		RemoteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nobat",
			Name:      "remote_failures_total",
			Help:      "Failed calls to external collaborators",
		}, []string{"collaborator"}),

		UpdateProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nobat",
			Name:      "update_processing_time_seconds",
			Help:      "Time spent processing updates",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) update(outcome string) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) step(step, result string) {
	if m == nil {
		return
	}
	m.StepTransitions.WithLabelValues(step, result).Inc()
}

func (m *Metrics) submission(result string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) remoteFailure(collaborator string) {
	if m == nil {
		return
	}
	m.RemoteFailures.WithLabelValues(collaborator).Inc()
}
