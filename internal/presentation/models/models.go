package models

import (
	"encoding/json"
	"fmt"
	"strings"

	strutil "credtrust/pkg/platform/strings"
)

// Operator is a predicate comparison.
type Operator string

const (
	OpGreater      Operator = "gt"
	OpGreaterEqual Operator = "gte"
	OpLess         Operator = "lt"
	OpLessEqual    Operator = "lte"
	OpEqual        Operator = "eq"
)

// Valid reports whether o is a supported operator.
func (o Operator) Valid() bool {
	switch o {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual:
		return true
	}
	return false
}

// Predicate is a claim about a subject field proven without revealing it.
type Predicate struct {
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Describe renders the marker text, e.g. "gte 3.5".
func (p Predicate) Describe() string {
	return string(p.Operator) + " " + formatValue(p.Value)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case nil:
		return "null"
	default:
		return fmt.Sprint(val)
	}
}

// Marker replaces a field whose predicate held.
type Marker struct {
	Predicate string `json:"predicate"`
	Verified  bool   `json:"verified"`
}

// PresentRequest asks for a derived presentation of a stored credential.
// Predicates are keyed by field path.
type PresentRequest struct {
	CredentialID string
	HolderID     string
	Fields       []string
	Predicates   map[string]Predicate
}

// Normalize trims paths and drops empty and repeated ones.
func (r *PresentRequest) Normalize() {
	r.CredentialID = strings.TrimSpace(r.CredentialID)
	r.HolderID = strings.TrimSpace(r.HolderID)
	r.Fields = strutil.DedupeAndTrim(r.Fields)
}

// PresentResult is the signed presentation.
type PresentResult struct {
	VerifiablePresentation json.RawMessage `json:"verifiablePresentation"`
}
