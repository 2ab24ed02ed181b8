package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks login attempt outcomes. A nil *Metrics records nothing.
type Metrics struct {
	AttemptsStarted    prometheus.Counter
	AttemptsFinished   *prometheus.CounterVec
	CorrelationDropped prometheus.Counter
	AttemptDuration    prometheus.Histogram
}

// NewMetrics registers the coordinator metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AttemptsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "designer_auth_attempts_started_total",
			Help: "Total number of login attempts started",
		}),
		AttemptsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "designer_auth_attempts_finished_total",
			Help: "Total number of login attempts settled, by terminal state",
		}, []string{"state"}),
		CorrelationDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "designer_auth_correlation_dropped_total",
			Help: "Inbound terminal messages dropped because no single attempt matched",
		}),
		AttemptDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "designer_auth_attempt_duration_seconds",
			Help:    "Time from login start to terminal state",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 180, 300},
		}),
	}
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.AttemptsStarted.Inc()
}

func (m *Metrics) finished(state State, d time.Duration) {
	if m == nil {
		return
	}
	m.AttemptsFinished.WithLabelValues(state.String()).Inc()
	m.AttemptDuration.Observe(d.Seconds())
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.CorrelationDropped.Inc()
}
