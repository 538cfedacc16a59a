package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncIssued()
		m.IncRevoked("two_factor")
		m.IncVerification(true)
		m.ObserveUpstream("signer", "sign", time.Now())
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncRevoked("backup_code")
	m.IncRevoked("backup_code")
	m.IncVerification(false)
	m.IncStage("signature", "failed")
	m.IncBackupCodeConsumed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CredentialsRevoked.WithLabelValues("backup_code")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VerificationStages.WithLabelValues("signature", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackupCodesConsumed))
}
