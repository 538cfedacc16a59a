package document

import (
	"encoding/json"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ldCredential = `{
	"@context": ["https://www.w3.org/2018/credentials/v1"],
	"id": "urn:uuid:1111",
	"type": ["VerifiableCredential", "UniversityDegreeCredential"],
	"issuer": {"id": "did:example:university"},
	"credentialSubject": {"id": "did:example:alice", "gpa": "3.8"}
}`

func signJWT(t *testing.T, claims jwt.MapClaims) json.RawMessage {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	raw, err := json.Marshal(token)
	require.NoError(t, err)
	return raw
}

func TestParseJSONCredential(t *testing.T) {
	doc, err := ParseCredential(json.RawMessage(ldCredential))
	require.NoError(t, err)

	assert.Equal(t, KindCredential, doc.Kind)
	assert.Equal(t, FormatJSON, doc.Format)
	assert.Equal(t, "urn:uuid:1111", doc.CredentialID())
	assert.Equal(t, "did:example:university", doc.IssuerID())
	assert.Equal(t, "did:example:alice", doc.HolderID())
	assert.Equal(t, []string{"VerifiableCredential", "UniversityDegreeCredential"}, doc.Types())
	assert.Equal(t, "3.8", doc.Subject()["gpa"])
}

func TestParseJWTCredential(t *testing.T) {
	raw := signJWT(t, jwt.MapClaims{
		"iss": "did:example:university",
		"sub": "did:example:alice",
		"jti": "urn:uuid:jwt-1",
		"vc": map[string]any{
			"type":              []string{"VerifiableCredential"},
			"credentialSubject": map[string]any{"degree": "BSc"},
		},
	})

	doc, err := ParseCredential(raw)
	require.NoError(t, err)

	assert.Equal(t, FormatJWT, doc.Format)
	assert.NotEmpty(t, doc.JWT)
	assert.Equal(t, "urn:uuid:jwt-1", doc.CredentialID())
	assert.Equal(t, "did:example:university", doc.IssuerID())
	assert.Equal(t, "did:example:alice", doc.HolderID())
	assert.Equal(t, "BSc", doc.Subject()["degree"])
}

func TestJWTCredentialFallsBackToVCID(t *testing.T) {
	raw := signJWT(t, jwt.MapClaims{"vc": map[string]any{"id": "urn:uuid:from-vc"}})
	doc, err := ParseCredential(raw)
	require.NoError(t, err)
	assert.Equal(t, "urn:uuid:from-vc", doc.CredentialID())
}

func TestPresentationFirstCredential(t *testing.T) {
	vp := `{"type":["VerifiablePresentation"],"holder":"did:example:alice","verifiableCredential":[` + ldCredential + `,{"id":"urn:uuid:2222"}]}`
	doc, err := ParsePresentation(json.RawMessage(vp))
	require.NoError(t, err)

	assert.Equal(t, "urn:uuid:1111", doc.CredentialID())
	assert.Equal(t, "did:example:alice", doc.HolderID())

	first, err := doc.FirstCredential()
	require.NoError(t, err)
	assert.Equal(t, KindCredential, first.Kind)
}

func TestPresentationWithJWTCredential(t *testing.T) {
	inner := signJWT(t, jwt.MapClaims{"jti": "urn:uuid:inner"})
	vp := `{"type":"VerifiablePresentation","verifiableCredential":[` + string(inner) + `]}`

	doc, err := ParsePresentation(json.RawMessage(vp))
	require.NoError(t, err)
	assert.Equal(t, "urn:uuid:inner", doc.CredentialID())
}

func TestPresentationWithoutCredential(t *testing.T) {
	doc, err := ParsePresentation(json.RawMessage(`{"verifiableCredential":[]}`))
	require.NoError(t, err)

	_, err = doc.FirstCredential()
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Empty(t, doc.CredentialID())
}

func TestParseRejects(t *testing.T) {
	_, err := ParseCredential(nil)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = ParseCredential(json.RawMessage(`null`))
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = ParseCredential(json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = ParseCredential(json.RawMessage(`"not.a.jwt"`))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = ParseCredential(json.RawMessage(`{"broken":`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCanonical(t *testing.T) {
	a, err := Canonical([]byte(`{"b": 1, "a": {"d": [1, 2], "c": "x"}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"c":"x","d":[1,2]},"b":1}`, string(a))

	_, err = Canonical([]byte(`{} {}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestMatchesContent(t *testing.T) {
	doc, err := ParseCredential(json.RawMessage(ldCredential))
	require.NoError(t, err)

	reordered := `{"type":["VerifiableCredential","UniversityDegreeCredential"],"id":"urn:uuid:1111","@context":["https://www.w3.org/2018/credentials/v1"],"issuer":{"id":"did:example:university"},"credentialSubject":{"gpa":"3.8","id":"did:example:alice"}}`
	ok, err := doc.MatchesContent([]byte(reordered))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = doc.MatchesContent([]byte(`{"id":"urn:uuid:1111"}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = doc.MatchesContent([]byte(`<html>`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestMatchesContentJWT(t *testing.T) {
	raw := signJWT(t, jwt.MapClaims{"jti": "urn:uuid:j"})
	doc, err := ParseCredential(raw)
	require.NoError(t, err)

	ok, err := doc.MatchesContent(raw)
	require.NoError(t, err)
	assert.True(t, ok)
}
