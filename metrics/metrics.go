// Package metrics exposes Prometheus counters for the credential lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CredentialsIssued   prometheus.Counter
	CredentialsReissued prometheus.Counter
	CredentialsRevoked  prometheus.Counter
	StepsSubmitted      *prometheus.CounterVec
	StepsSkipped        *prometheus.CounterVec
	StepFailures        *prometheus.CounterVec
	StatusRefreshes     prometheus.Counter
}

// New creates and registers all lifecycle metrics against the given
// registerer. Tests pass a fresh prometheus.NewRegistry per service.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CredentialsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "issuer_api_credentials_issued_total",
			Help: "Total number of credentials fully issued (reached ACTIVE)",
		}),
		CredentialsReissued: factory.NewCounter(prometheus.CounterOpts{
			Name: "issuer_api_credentials_reissued_total",
			Help: "Total number of issue requests answered with an existing active credential",
		}),
		CredentialsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "issuer_api_credentials_revoked_total",
			Help: "Total number of credentials revoked",
		}),
		StepsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "issuer_api_steps_submitted_total",
			Help: "Total number of ledger transactions submitted, by step",
		}, []string{"step"}),
		StepsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "issuer_api_steps_skipped_total",
			Help: "Total number of steps skipped because the remote state already matched, by step",
		}, []string{"step"}),
		StepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "issuer_api_step_failures_total",
			Help: "Total number of failed steps, by step",
		}, []string{"step"}),
		StatusRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "issuer_api_status_refreshes_total",
			Help: "Total number of chain status refreshes from the status list",
		}),
	}
}
