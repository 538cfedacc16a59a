package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's domain metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	CredentialsIssued    prometheus.Counter
	CredentialsRevoked   *prometheus.CounterVec
	RevocationsRejected  *prometheus.CounterVec
	Verifications        *prometheus.CounterVec
	VerificationStages   *prometheus.CounterVec
	TwoFactorFailures    prometheus.Counter
	BackupCodesConsumed  prometheus.Counter
	PresentationsCreated prometheus.Counter
	UpstreamLatency      *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CredentialsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "credtrust_credentials_issued_total",
			Help: "Total number of credentials issued",
		}),
		CredentialsRevoked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credtrust_credentials_revoked_total",
			Help: "Total number of credentials revoked, by second-factor method",
		}, []string{"method"}),
		RevocationsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credtrust_revocations_rejected_total",
			Help: "Revocation attempts rejected, by reason",
		}, []string{"reason"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credtrust_verifications_total",
			Help: "Verification verdicts",
		}, []string{"outcome"}),
		VerificationStages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credtrust_verification_stage_results_total",
			Help: "Verification stage results, by stage and result",
		}, []string{"stage", "result"}),
		TwoFactorFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "credtrust_twofactor_failures_total",
			Help: "Rejected second-factor codes",
		}),
		BackupCodesConsumed: f.NewCounter(prometheus.CounterOpts{
			Name: "credtrust_backup_codes_consumed_total",
			Help: "Backup codes consumed",
		}),
		PresentationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "credtrust_presentations_created_total",
			Help: "Selective-disclosure presentations signed",
		}),
		UpstreamLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credtrust_upstream_latency_seconds",
			Help:    "Latency of calls to external collaborators",
			Buckets: prometheus.DefBuckets,
		}, []string{"upstream", "operation"}),
	}
}

func (m *Metrics) IncIssued() {
	if m == nil {
		return
	}
	m.CredentialsIssued.Inc()
}

func (m *Metrics) IncRevoked(method string) {
	if m == nil {
		return
	}
	m.CredentialsRevoked.WithLabelValues(method).Inc()
}

func (m *Metrics) IncRevocationRejected(reason string) {
	if m == nil {
		return
	}
	m.RevocationsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncVerification(valid bool) {
	if m == nil {
		return
	}
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncStage(stage, result string) {
	if m == nil {
		return
	}
	m.VerificationStages.WithLabelValues(stage, result).Inc()
}

func (m *Metrics) IncTwoFactorFailure() {
	if m == nil {
		return
	}
	m.TwoFactorFailures.Inc()
}

func (m *Metrics) IncBackupCodeConsumed() {
	if m == nil {
		return
	}
	m.BackupCodesConsumed.Inc()
}

func (m *Metrics) IncPresentation() {
	if m == nil {
		return
	}
	m.PresentationsCreated.Inc()
}

// ObserveUpstream records the duration since start.
func (m *Metrics) ObserveUpstream(upstream, operation string, start time.Time) {
	if m == nil {
		return
	}
	m.UpstreamLatency.WithLabelValues(upstream, operation).Observe(time.Since(start).Seconds())
}
