package testutil

import (
	"encoding/json"
	"time"

	"credtrust/internal/credential/models"
)

// Identifiers shared by fixtures.
const (
	TestHolderID = "did:example:holder-1"
	TestIssuerID = "did:example:university"
)

// SampleSubject is a credentialSubject with nested, numeric and date-valued fields.
func SampleSubject() map[string]any {
	return map[string]any{
		"id":   TestHolderID,
		"name": "Alice",
		"degree": map[string]any{
			"type": "BachelorDegree",
			"name": "Computer Science",
		},
		"gpa":            "3.8",
		"credits":        120,
		"graduationDate": "2024-06-15",
	}
}

// SampleCredentialJSON returns a JSON-LD credential with the given id and SampleSubject.
func SampleCredentialJSON(id string) json.RawMessage {
	vc := map[string]any{
		"@context":          []string{"https://www.w3.org/2018/credentials/v1"},
		"id":                id,
		"type":              []string{"VerifiableCredential", "UniversityDegreeCredential"},
		"issuer":            TestIssuerID,
		"issuanceDate":      "2024-06-20T00:00:00Z",
		"credentialSubject": SampleSubject(),
	}
	raw, err := json.Marshal(vc)
	if err != nil {
		panic(err)
	}
	return raw
}

// CredentialBuilder provides a fluent interface for building test credential records.
type CredentialBuilder struct {
	record models.CredentialRecord
}

// NewCredentialBuilder returns a builder with a sample JSON-LD payload.
func NewCredentialBuilder() *CredentialBuilder {
	id := models.NewCredentialID()
	return &CredentialBuilder{
		record: models.CredentialRecord{
			ID:       id,
			Payload:  SampleCredentialJSON(id),
			HolderID: TestHolderID,
			IssuerID: TestIssuerID,
			Types:    []string{"VerifiableCredential", "UniversityDegreeCredential"},
		},
	}
}

func (b *CredentialBuilder) WithID(id string) *CredentialBuilder {
	b.record.ID = id
	b.record.Payload = SampleCredentialJSON(id)
	return b
}

func (b *CredentialBuilder) WithHolder(holderID string) *CredentialBuilder {
	b.record.HolderID = holderID
	return b
}

func (b *CredentialBuilder) WithTypes(types ...string) *CredentialBuilder {
	b.record.Types = types
	return b
}

func (b *CredentialBuilder) WithPayload(payload json.RawMessage) *CredentialBuilder {
	b.record.Payload = payload
	return b
}

func (b *CredentialBuilder) WithContentAddress(addr string) *CredentialBuilder {
	b.record.ContentAddress = addr
	return b
}

func (b *CredentialBuilder) Revoked(at time.Time, reason string) *CredentialBuilder {
	b.record.Revoked = true
	b.record.RevokedAt = &at
	b.record.RevocationReason = reason
	return b
}

func (b *CredentialBuilder) Build() models.CredentialRecord {
	return b.record
}
