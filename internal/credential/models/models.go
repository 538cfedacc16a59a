package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"credtrust/pkg/platform/sentinel"
)

const (
	// URNUUIDPrefix is the scheme prefix used for credential identifiers.
	URNUUIDPrefix = "urn:uuid:"

	// DefaultRevocationReason is recorded when a revocation supplies no reason.
	DefaultRevocationReason = "No reason provided"
)

// Status is the externally visible revocation state of a credential.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// NewCredentialID returns a fresh urn:uuid: identifier.
func NewCredentialID() string {
	return URNUUIDPrefix + uuid.NewString()
}

// AlternateID returns the urn:uuid: prefixed form of a bare id, or the bare form
// of a prefixed id.
func AlternateID(id string) string {
	if rest, ok := strings.CutPrefix(id, URNUUIDPrefix); ok {
		return rest
	}
	return URNUUIDPrefix + id
}

// CredentialRecord is a stored credential and its revocation state.
// ID, Payload, HolderID and IssuerID never change after the first save.
type CredentialRecord struct {
	ID               string
	Payload          json.RawMessage
	HolderID         string
	IssuerID         string
	Types            []string
	ContentAddress   string
	IssuedAt         time.Time
	UpdatedAt        time.Time
	Revoked          bool
	RevokedAt        *time.Time
	RevocationReason string
}

// Status reports the record's revocation state.
func (r *CredentialRecord) Status() Status {
	if r.Revoked {
		return StatusRevoked
	}
	return StatusActive
}

// HasType reports whether t is one of the record's credential types.
func (r *CredentialRecord) HasType(t string) bool {
	for _, candidate := range r.Types {
		if candidate == t {
			return true
		}
	}
	return false
}

// Merge applies the non-zero mutable fields of update onto r. Identity,
// payload and revocation state are left alone.
func (r *CredentialRecord) Merge(update CredentialRecord, now time.Time) {
	if r.HolderID == "" {
		r.HolderID = update.HolderID
	}
	if r.IssuerID == "" {
		r.IssuerID = update.IssuerID
	}
	if len(r.Payload) == 0 {
		r.Payload = update.Payload
	}
	if len(update.Types) > 0 {
		r.Types = append([]string(nil), update.Types...)
	}
	if update.ContentAddress != "" {
		r.ContentAddress = update.ContentAddress
	}
	r.UpdatedAt = now
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	HolderID string
	Type     string
	Revoked  *bool
}

// Matches reports whether record satisfies the filter.
func (f ListFilter) Matches(record *CredentialRecord) bool {
	if f.HolderID != "" && record.HolderID != f.HolderID {
		return false
	}
	if f.Type != "" && !record.HasType(f.Type) {
		return false
	}
	if f.Revoked != nil && record.Revoked != *f.Revoked {
		return false
	}
	return true
}

// RevokeRequest carries a revocation attempt from the transport.
type RevokeRequest struct {
	CredentialID  string
	Reason        string
	TwoFactorCode string
}

// RevokeResult is returned by a successful revocation.
type RevokeResult struct {
	Record         *CredentialRecord
	TwoFAValidated bool
}

// IssueRequest carries the data to build and sign a new credential.
type IssueRequest struct {
	HolderID          string
	Types             []string
	CredentialSubject map[string]any
	ContentAddress    string
}

// IssueResult is the signed credential produced by Issue.
type IssueResult struct {
	CredentialID         string          `json:"credentialId"`
	VerifiableCredential json.RawMessage `json:"verifiableCredential"`
}

// AlreadyRevokedError carries the terminal revocation state back to callers.
type AlreadyRevokedError struct {
	CredentialID string
	RevokedAt    *time.Time
	Reason       string
}

func (e *AlreadyRevokedError) Error() string {
	return "credential " + e.CredentialID + " is already revoked"
}

func (e *AlreadyRevokedError) Unwrap() error {
	return sentinel.ErrAlreadyRevoked
}
