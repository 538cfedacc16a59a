package events

import "time"

// Type names a lifecycle event.
type Type string

const (
	CredentialIssued      Type = "credential_issued"
	CredentialRevoked     Type = "credential_revoked"
	RevocationUnprotected Type = "revocation_unprotected"
	PresentationCreated   Type = "presentation_created"
	TwoFactorSetup        Type = "twofactor_setup"
	TwoFactorEnabled      Type = "twofactor_enabled"
	TwoFactorDisabled     Type = "twofactor_disabled"
	TwoFactorFailed       Type = "twofactor_failed"
	BackupCodeConsumed    Type = "backup_code_consumed"
	BackupCodesRotated    Type = "backup_codes_regenerated"
)

// Event is emitted from services after a state change. Subject is the
// credential id or issuer id the event is about.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Subject    string            `json:"subject"`
	Actor      string            `json:"actor,omitempty"`
	RequestID  string            `json:"requestId,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}
