// Package dialect covers the SQLite / PostgreSQL differences the stores care
// about: placeholder syntax, time encoding and row locking.
package dialect

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect describes one SQL backend.
type Dialect struct {
	Name        string
	numbered    bool
	textualTime bool
	lockClause  string
}

var (
	// SQLite uses ? placeholders and stores times as RFC 3339 text.
	SQLite = Dialect{Name: "sqlite", textualTime: true}
	// Postgres uses $n placeholders and native timestamps.
	Postgres = Dialect{Name: "postgres", numbered: true, lockClause: " FOR UPDATE"}
)

// Rebind rewrites ? placeholders for the backend.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TimeArg encodes t as a query argument.
func (d Dialect) TimeArg(t time.Time) any {
	if d.textualTime {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

// NullableTimeArg encodes t, or NULL when t is nil.
func (d Dialect) NullableTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.TimeArg(*t)
}

// ForUpdate returns the row-lock suffix for SELECTs inside a transaction.
// SQLite serializes writers already and has no such clause.
func (d Dialect) ForUpdate() string {
	return d.lockClause
}

// Time scans timestamps stored either natively or as RFC 3339 text.
type Time struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (t *Time) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", value)
	}
}

// Ptr returns nil for NULL.
func (t Time) Ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (t *Time) parse(s string) error {
	if s == "" {
		t.Time, t.Valid = time.Time{}, false
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", s, err)
	}
	t.Time, t.Valid = parsed.UTC(), true
	return nil
}
