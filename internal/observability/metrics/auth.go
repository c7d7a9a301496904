// Package metrics exposes the Prometheus instruments for the login flow, the session
// sweeper and the HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	obserrors "github.com/weeklydigest/sessionauth/internal/observability/errors"
)

// Namespace prefixes every metric name.
const Namespace = "sessionauth"

// Login outcomes besides the error classes produced by obserrors.Classify.
const (
	OutcomeSuccess = "success"
)

// Provider steps observed by ProviderDuration.
const (
	StepExchange = "exchange"
	StepResolve  = "resolve"
)

// AuthMetrics groups the login and session instruments. A nil *AuthMetrics is a no-op.
type AuthMetrics struct {
	logins           *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	swept            prometheus.Counter
	sweepErrors      prometheus.Counter
}

// NewAuthMetrics registers the instruments with reg (prometheus.DefaultRegisterer when nil).
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &AuthMetrics{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "login_total",
			Help:      "Completed login callbacks by outcome",
		}, []string{"outcome"}),

		providerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Identity provider request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"step"}),

		swept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_swept_total",
			Help:      "Expired session records removed by the sweeper",
		}),

		sweepErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sweep_errors_total",
			Help:      "Sweeper passes that failed",
		}),
	}
}

// LoginCompleted records the outcome of a login callback; err == nil means success.
func (m *AuthMetrics) LoginCompleted(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = obserrors.Classify(err)
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// ProviderDuration records how long a provider step took.
func (m *AuthMetrics) ProviderDuration(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerDuration.WithLabelValues(step).Observe(d.Seconds())
}

// SessionsSwept records one sweeper pass.
func (m *AuthMetrics) SessionsSwept(n int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.sweepErrors.Inc()
		return
	}
	if n > 0 {
		m.swept.Add(float64(n))
	}
}
