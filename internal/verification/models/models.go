package models

import (
	"encoding/json"
	"time"
)

// Reason strings reported to callers.
const (
	ReasonAllChecksPassed       = "all_checks_passed"
	ReasonSignatureInvalid      = "signature_invalid"
	ReasonRevoked               = "revoked"
	ReasonRevocationCheckFailed = "revocation_check_failed"
	ReasonIntegrityMismatch     = "ipfs_integrity_mismatch"

	prefixSignatureError   = "signature_error: "
	prefixRevokedAt        = "revoked_at: "
	prefixRevocationReason = "revocation_reason: "
	prefixIntegrityFailed  = "ipfs_check_failed: "
)

func SignatureError(detail string) string {
	return prefixSignatureError + detail
}

func RevokedAt(at time.Time) string {
	return prefixRevokedAt + at.UTC().Format(time.RFC3339)
}

func RevocationReason(reason string) string {
	return prefixRevocationReason + reason
}

func IntegrityCheckFailed(detail string) string {
	return prefixIntegrityFailed + detail
}

// Stage names one verification step.
type Stage string

const (
	StageSignature  Stage = "signature"
	StageRevocation Stage = "revocation"
	StageIntegrity  Stage = "integrity"
)

// StageResult is the metric label for a stage outcome.
type StageResult string

const (
	StagePassed  StageResult = "passed"
	StageFailed  StageResult = "failed"
	StageWarning StageResult = "warning"
	StageSkipped StageResult = "skipped"
)

// Outcome is what one stage concluded. Only StageFailed invalidates the document.
type Outcome struct {
	Stage   Stage
	Result  StageResult
	Reasons []string
}

// Fail marks the stage failed and appends reasons.
func (o *Outcome) Fail(reasons ...string) {
	o.Result = StageFailed
	o.Reasons = append(o.Reasons, reasons...)
}

// Warn records informational reasons without failing the stage.
func (o *Outcome) Warn(reasons ...string) {
	if o.Result != StageFailed {
		o.Result = StageWarning
	}
	o.Reasons = append(o.Reasons, reasons...)
}

// Request is a verification input. Exactly one of Credential or Presentation is set.
type Request struct {
	Credential     json.RawMessage
	Presentation   json.RawMessage
	ContentAddress string
}

// Result is the pipeline verdict.
type Result struct {
	Valid   bool      `json:"valid"`
	Reasons []string  `json:"reasons"`
	Checks  []Outcome `json:"-"`
}

// NewResult folds stage outcomes, in order, into a verdict.
func NewResult(outcomes ...Outcome) *Result {
	res := &Result{Valid: true, Reasons: []string{}, Checks: outcomes}
	for _, o := range outcomes {
		if o.Result == StageFailed {
			res.Valid = false
		}
		res.Reasons = append(res.Reasons, o.Reasons...)
	}
	if res.Valid && len(res.Reasons) == 0 {
		res.Reasons = []string{ReasonAllChecksPassed}
	}
	return res
}
