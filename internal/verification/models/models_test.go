package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewResultAllPassed(t *testing.T) {
	res := NewResult(
		Outcome{Stage: StageSignature, Result: StagePassed},
		Outcome{Stage: StageRevocation, Result: StageSkipped},
	)
	assert.True(t, res.Valid)
	assert.Equal(t, []string{ReasonAllChecksPassed}, res.Reasons)
}

func TestNewResultKeepsStageOrder(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	res := NewResult(
		Outcome{Stage: StageSignature, Result: StageFailed, Reasons: []string{ReasonSignatureInvalid, SignatureError("bad proof")}},
		Outcome{Stage: StageRevocation, Result: StageFailed, Reasons: []string{ReasonRevoked, RevokedAt(at), RevocationReason("lost")}},
	)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{
		"signature_invalid",
		"signature_error: bad proof",
		"revoked",
		"revoked_at: 2026-03-01T11:00:00Z",
		"revocation_reason: lost",
	}, res.Reasons)
}

func TestNewResultWarningsStayValid(t *testing.T) {
	res := NewResult(
		Outcome{Stage: StageSignature, Result: StagePassed},
		Outcome{Stage: StageIntegrity, Result: StageWarning, Reasons: []string{IntegrityCheckFailed("timeout")}},
	)
	assert.True(t, res.Valid)
	assert.Equal(t, []string{"ipfs_check_failed: timeout"}, res.Reasons)
}
