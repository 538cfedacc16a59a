// Package disclosure derives a reduced credential subject from requested field
// paths and predicates.
//
// Field paths use dot notation ("degree.name"). A field with a predicate is
// replaced by a marker when the predicate holds and omitted when it does not;
// the actual value is never copied. A field without a predicate is copied with
// its nesting intact. Missing fields are omitted. The derived subject always
// carries id set to the holder.
package disclosure

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"credtrust/internal/presentation/models"
)

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?)?$`)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Derive returns the derived subject as a JSON object. subject is the source
// credentialSubject; fields and predicates may be empty.
func Derive(subject json.RawMessage, holderID string, fields []string, predicates map[string]models.Predicate) (json.RawMessage, error) {
	source := gjson.ParseBytes(subject)
	if !source.IsObject() {
		source = gjson.Parse("{}")
	}

	out := []byte(source.Raw)
	if len(fields) > 0 {
		var err error
		if out, err = copyPlain(source, fields, predicates); err != nil {
			return nil, err
		}
		if out, err = applyPredicates(out, source, fields, predicates); err != nil {
			return nil, err
		}
	}

	out, err := sjson.SetBytes(out, "id", holderID)
	if err != nil {
		return nil, fmt.Errorf("set id: %w", err)
	}
	return out, nil
}

// copyPlain copies every requested path that carries no predicate.
func copyPlain(source gjson.Result, fields []string, predicates map[string]models.Predicate) ([]byte, error) {
	out := []byte("{}")
	for _, path := range fields {
		if _, ok := predicates[path]; ok {
			continue
		}
		value := source.Get(path)
		if !value.Exists() {
			continue
		}
		var err error
		if out, err = sjson.SetRawBytes(out, path, []byte(value.Raw)); err != nil {
			return nil, fmt.Errorf("set %q: %w", path, err)
		}
	}
	return out, nil
}

// applyPredicates runs after copyPlain so a copied parent cannot carry a
// predicated value: a holding predicate overwrites it with the marker and a
// failing one deletes it.
func applyPredicates(out []byte, source gjson.Result, fields []string, predicates map[string]models.Predicate) ([]byte, error) {
	for _, path := range fields {
		pred, ok := predicates[path]
		if !ok {
			continue
		}
		value := source.Get(path)
		if !value.Exists() {
			continue
		}
		holds, err := Evaluate(value, pred)
		if err != nil {
			return nil, err
		}
		if holds {
			out, err = sjson.SetBytes(out, path, models.Marker{Predicate: pred.Describe(), Verified: true})
		} else {
			out, err = sjson.DeleteBytes(out, path)
		}
		if err != nil {
			return nil, fmt.Errorf("set %q: %w", path, err)
		}
	}
	return out, nil
}

// Evaluate applies pred to actual. Dates compare as timestamps, numbers
// numerically; eq falls back to string equality. Operands of mismatched kinds
// fail.
func Evaluate(actual gjson.Result, pred models.Predicate) (bool, error) {
	if !pred.Operator.Valid() {
		return false, fmt.Errorf("unsupported predicate operator %q", pred.Operator)
	}

	expected := expectedOperand(pred.Value)
	got := actualOperand(actual)

	if a, ok := asTime(got); ok {
		if b, ok := asTime(expected); ok {
			return compare(pred.Operator, a.Compare(b)), nil
		}
		return false, nil
	}
	if a, ok := asNumber(got); ok {
		if b, ok := asNumber(expected); ok {
			return compare(pred.Operator, cmpFloat(a, b)), nil
		}
		return false, nil
	}
	if pred.Operator == models.OpEqual {
		return got == expected, nil
	}
	return false, nil
}

func compare(op models.Operator, c int) bool {
	switch op {
	case models.OpGreater:
		return c > 0
	case models.OpGreaterEqual:
		return c >= 0
	case models.OpLess:
		return c < 0
	case models.OpLessEqual:
		return c <= 0
	default:
		return c == 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// operand is a value reduced to its textual form with a numeric hint.
type operand struct {
	text    string
	numeric bool
}

func actualOperand(r gjson.Result) operand {
	switch r.Type {
	case gjson.Number:
		return operand{text: r.Raw, numeric: true}
	case gjson.String:
		return operand{text: r.Str}
	default:
		return operand{text: r.Raw}
	}
}

func expectedOperand(v any) operand {
	switch val := v.(type) {
	case json.Number:
		return operand{text: val.String(), numeric: true}
	case float64:
		return operand{text: strconv.FormatFloat(val, 'f', -1, 64), numeric: true}
	case int:
		return operand{text: strconv.Itoa(val), numeric: true}
	case string:
		return operand{text: val}
	case nil:
		return operand{text: "null"}
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return operand{text: fmt.Sprint(val)}
		}
		return operand{text: string(raw)}
	}
}

func asTime(o operand) (time.Time, bool) {
	if o.numeric || !isoDate.MatchString(o.text) {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, o.text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func asNumber(o operand) (float64, bool) {
	text := strings.TrimSpace(o.text)
	if text == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
