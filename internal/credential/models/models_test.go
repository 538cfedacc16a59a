package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlternateID(t *testing.T) {
	assert.Equal(t, "urn:uuid:abc", AlternateID("abc"))
	assert.Equal(t, "abc", AlternateID("urn:uuid:abc"))
}

func TestNewCredentialID(t *testing.T) {
	id := NewCredentialID()
	assert.True(t, len(id) > len(URNUUIDPrefix))
	assert.Equal(t, URNUUIDPrefix, id[:len(URNUUIDPrefix)])
}

func TestMergeKeepsImmutableAndRevocationFields(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	revokedAt := issued.Add(time.Hour)
	record := CredentialRecord{
		ID:               "urn:uuid:1",
		Payload:          json.RawMessage(`{"a":1}`),
		HolderID:         "did:example:holder",
		IssuerID:         "did:example:issuer",
		IssuedAt:         issued,
		Revoked:          true,
		RevokedAt:        &revokedAt,
		RevocationReason: "fraud",
	}

	now := issued.Add(2 * time.Hour)
	record.Merge(CredentialRecord{
		Payload:        json.RawMessage(`{"a":2}`),
		HolderID:       "did:example:other",
		Types:          []string{"VerifiableCredential", "Diploma"},
		ContentAddress: "bafy123",
	}, now)

	assert.JSONEq(t, `{"a":1}`, string(record.Payload))
	assert.Equal(t, "did:example:holder", record.HolderID)
	assert.Equal(t, []string{"VerifiableCredential", "Diploma"}, record.Types)
	assert.Equal(t, "bafy123", record.ContentAddress)
	assert.True(t, record.Revoked)
	assert.Equal(t, "fraud", record.RevocationReason)
	assert.Equal(t, issued, record.IssuedAt)
	assert.Equal(t, now, record.UpdatedAt)
}

func TestListFilterMatches(t *testing.T) {
	revoked := true
	active := false
	record := &CredentialRecord{HolderID: "h1", Types: []string{"Diploma"}, Revoked: true}

	assert.True(t, ListFilter{}.Matches(record))
	assert.True(t, ListFilter{HolderID: "h1", Type: "Diploma", Revoked: &revoked}.Matches(record))
	assert.False(t, ListFilter{HolderID: "h2"}.Matches(record))
	assert.False(t, ListFilter{Type: "Transcript"}.Matches(record))
	assert.False(t, ListFilter{Revoked: &active}.Matches(record))
	assert.Equal(t, StatusRevoked, record.Status())
}
