// Package local signs credentials and presentations as HS256 JWTs with a
// shared key. It stands in for the external signer in development and tests.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"credtrust/internal/document"
	"credtrust/internal/signer"
	"credtrust/pkg/requestcontext"
)

// ErrEmptyKey is returned when the signer is built without a key.
var ErrEmptyKey = errors.New("local signer key must not be empty")

// Signer issues and verifies JWT-VC / JWT-VP tokens.
type Signer struct {
	key    []byte
	issuer string
}

// New returns a Signer. issuer becomes the iss claim when the document carries none.
func New(key, issuer string) (*Signer, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	return &Signer{key: []byte(key), issuer: issuer}, nil
}

// SignCredential wraps credential in the vc claim and returns the token as a JSON string.
func (s *Signer) SignCredential(ctx context.Context, credential json.RawMessage) (json.RawMessage, error) {
	return s.sign(ctx, "vc", credential)
}

// SignPresentation wraps presentation in the vp claim and returns the token as a JSON string.
func (s *Signer) SignPresentation(ctx context.Context, presentation json.RawMessage) (json.RawMessage, error) {
	return s.sign(ctx, "vp", presentation)
}

func (s *Signer) sign(ctx context.Context, claim string, body json.RawMessage) (json.RawMessage, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", claim, err)
	}

	now := requestcontext.Now(ctx)
	claims := jwt.MapClaims{
		claim: payload,
		"iat": now.Unix(),
		"nbf": now.Unix(),
	}
	if id, ok := payload["id"].(string); ok && id != "" {
		claims["jti"] = id
	}
	claims["iss"] = s.issuer
	if iss := issuerOf(payload); iss != "" {
		claims["iss"] = iss
	}
	if sub := subjectOf(claim, payload); sub != "" {
		claims["sub"] = sub
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", claim, err)
	}
	out, err := json.Marshal(token)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Verify checks the HS256 signature of a JWT document. JSON-LD documents
// carry no proof this signer understands and are reported invalid.
func (s *Signer) Verify(_ context.Context, doc *document.Document) (*signer.VerifyResult, error) {
	if doc.Format != document.FormatJWT {
		return &signer.VerifyResult{Valid: false, Detail: "local signer verifies JWT documents only"}, nil
	}

	_, err := jwt.Parse(doc.JWT, func(t *jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(time.Minute))
	if err != nil {
		return &signer.VerifyResult{Valid: false, Detail: err.Error()}, nil
	}
	return &signer.VerifyResult{Valid: true}, nil
}

// Health always succeeds.
func (s *Signer) Health(context.Context) error {
	return nil
}

func issuerOf(payload map[string]any) string {
	switch iss := payload["issuer"].(type) {
	case string:
		return iss
	case map[string]any:
		id, _ := iss["id"].(string)
		return id
	}
	return ""
}

func subjectOf(claim string, payload map[string]any) string {
	if claim == "vp" {
		h, _ := payload["holder"].(string)
		return h
	}
	subject, _ := payload["credentialSubject"].(map[string]any)
	id, _ := subject["id"].(string)
	return id
}
