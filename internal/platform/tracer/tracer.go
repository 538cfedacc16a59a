// Package tracer is a small tracing abstraction over OpenTelemetry.
//
// Implementations:
//   - NoopTracer for tests
//   - OTelTracer backed by the global tracer provider
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span. A non-nil err marks it failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
//	ctx, span := t.Start(ctx, tracer.SpanVerifySignature,
//	    tracer.String(tracer.AttrDocumentKind, "credential"),
//	)
//	defer span.End(nil)
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names used by the verification pipeline and presentation service.
const (
	SpanVerify            = "verification.verify"
	SpanVerifySignature   = "verification.signature"
	SpanVerifyRevocation  = "verification.revocation"
	SpanVerifyIntegrity   = "verification.integrity"
	SpanPresentationBuild = "presentation.build"
)

// Attribute keys.
const (
	AttrDocumentKind   = "document.kind"
	AttrDocumentFormat = "document.format"
	AttrCredentialID   = "credential.id"
	AttrStageResult    = "stage.result"
	AttrValid          = "verification.valid"
	AttrReasonCount    = "verification.reasons"
	AttrFieldCount     = "disclosure.fields"
)
