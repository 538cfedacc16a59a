// Package document parses verifiable credentials and presentations in either
// JSON-LD or JWT serialization into a single tagged representation.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
)

// Kind tags a Document as a credential or a presentation.
type Kind int

const (
	KindCredential Kind = iota + 1
	KindPresentation
)

func (k Kind) String() string {
	switch k {
	case KindCredential:
		return "credential"
	case KindPresentation:
		return "presentation"
	default:
		return "unknown"
	}
}

// Format is the serialization a Document arrived in.
type Format int

const (
	FormatJSON Format = iota + 1
	FormatJWT
)

var (
	ErrEmpty          = errors.New("document is empty")
	ErrMalformed      = errors.New("document is malformed")
	ErrNoCredential   = errors.New("presentation carries no credential")
	errUnsupportedRaw = errors.New("document must be a JSON object or a JWT string")
)

// Document is a parsed credential or presentation.
type Document struct {
	Kind   Kind
	Format Format
	// Raw is the value exactly as received: a JSON object, or a JSON string holding a JWT.
	Raw json.RawMessage
	// JWT is set when Format is FormatJWT.
	JWT string
	// Body is the JSON object carrying the W3C data model: the object itself,
	// or the vc/vp claim of a JWT (the whole claim set if that claim is absent).
	Body json.RawMessage
	// Claims holds the unverified JWT claims when Format is FormatJWT.
	Claims jwt.MapClaims
}

// ParseCredential parses raw as a verifiable credential.
func ParseCredential(raw json.RawMessage) (*Document, error) {
	return Parse(raw, KindCredential)
}

// ParsePresentation parses raw as a verifiable presentation.
func ParsePresentation(raw json.RawMessage) (*Document, error) {
	return Parse(raw, KindPresentation)
}

// Parse decodes raw without verifying any signature.
func Parse(raw json.RawMessage, kind Kind) (*Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmpty
	}

	switch trimmed[0] {
	case '{':
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
		}
		return &Document{Kind: kind, Format: FormatJSON, Raw: trimmed, Body: trimmed}, nil
	case '"':
		var token string
		if err := json.Unmarshal(trimmed, &token); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return parseJWT(trimmed, token, kind)
	default:
		return nil, fmt.Errorf("%w: %v", ErrMalformed, errUnsupportedRaw)
	}
}

func parseJWT(raw json.RawMessage, token string, kind Kind) (*Document, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmpty
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claimName := "vc"
	if kind == KindPresentation {
		claimName = "vp"
	}

	var body []byte
	var err error
	if inner, ok := claims[claimName]; ok {
		body, err = json.Marshal(inner)
	} else {
		body, err = json.Marshal(claims)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return &Document{
		Kind:   kind,
		Format: FormatJWT,
		Raw:    raw,
		JWT:    token,
		Body:   body,
		Claims: claims,
	}, nil
}

// CredentialID returns the credential identifier: the credential id, JWT
// jti, or vc.id. For a presentation it is the id of the first credential.
// Empty when none can be extracted.
func (d *Document) CredentialID() string {
	if d.Kind == KindPresentation {
		first, err := d.FirstCredential()
		if err != nil {
			return ""
		}
		return first.CredentialID()
	}
	if d.Format == FormatJWT {
		if jti, ok := d.Claims["jti"].(string); ok && jti != "" {
			return jti
		}
	}
	return gjson.GetBytes(d.Body, "id").String()
}

// FirstCredential returns the first embedded credential of a presentation, or
// the document itself for a credential.
func (d *Document) FirstCredential() (*Document, error) {
	if d.Kind == KindCredential {
		return d, nil
	}

	vcs := gjson.GetBytes(d.Body, "verifiableCredential")
	if !vcs.Exists() {
		return nil, ErrNoCredential
	}
	first := vcs
	if vcs.IsArray() {
		items := vcs.Array()
		if len(items) == 0 {
			return nil, ErrNoCredential
		}
		first = items[0]
	}
	return ParseCredential(json.RawMessage(first.Raw))
}

// SubjectJSON returns the raw credentialSubject object. An array subject
// yields its first element; anything else yields an empty object.
func (d *Document) SubjectJSON() json.RawMessage {
	subject := gjson.GetBytes(d.Body, "credentialSubject")
	if subject.IsArray() {
		items := subject.Array()
		if len(items) == 0 {
			return json.RawMessage("{}")
		}
		subject = items[0]
	}
	if !subject.IsObject() {
		return json.RawMessage("{}")
	}
	return json.RawMessage(subject.Raw)
}

// Subject returns credentialSubject as a map.
func (d *Document) Subject() map[string]any {
	out, ok := gjson.ParseBytes(d.SubjectJSON()).Value().(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return out
}

// Types returns the credential's type list.
func (d *Document) Types() []string {
	t := gjson.GetBytes(d.Body, "type")
	if !t.Exists() {
		return nil
	}
	if !t.IsArray() {
		return []string{t.String()}
	}
	out := make([]string, 0, len(t.Array()))
	for _, v := range t.Array() {
		out = append(out, v.String())
	}
	return out
}

// IssuerID returns the issuer as a string, accepting the object form {"id": ...}.
func (d *Document) IssuerID() string {
	issuer := gjson.GetBytes(d.Body, "issuer")
	if issuer.IsObject() {
		return issuer.Get("id").String()
	}
	if issuer.Exists() {
		return issuer.String()
	}
	if d.Format == FormatJWT {
		if iss, ok := d.Claims["iss"].(string); ok {
			return iss
		}
	}
	return ""
}

// HolderID returns the presentation holder or the credential subject id.
func (d *Document) HolderID() string {
	if d.Kind == KindPresentation {
		if h := gjson.GetBytes(d.Body, "holder").String(); h != "" {
			return h
		}
	} else if id, ok := d.Subject()["id"].(string); ok && id != "" {
		return id
	}
	if d.Format == FormatJWT {
		if sub, ok := d.Claims["sub"].(string); ok {
			return sub
		}
	}
	return ""
}

// MatchesContent reports whether blob is the same document: either the same
// JSON value as Raw (covers a stored JWT string) or as Body, compared in
// canonical form.
func (d *Document) MatchesContent(blob []byte) (bool, error) {
	canonicalBlob, err := Canonical(blob)
	if err != nil {
		return false, err
	}
	for _, candidate := range []json.RawMessage{d.Raw, d.Body} {
		c, err := Canonical(candidate)
		if err != nil {
			continue
		}
		if bytes.Equal(c, canonicalBlob) {
			return true, nil
		}
	}
	return false, nil
}
