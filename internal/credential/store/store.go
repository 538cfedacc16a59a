// Package store persists credential records and resolves flexible identifiers.
//
// Identifier resolution order, shared by every backend:
//  1. exact id
//  2. urn:uuid: prefixed form of a bare id, or the bare form of a prefixed id
//  3. any stored id ending with the input, first in insertion order
package store

import (
	"context"
	"log/slog"
	"time"

	"credtrust/internal/credential/models"
)

// Store is the credential repository. Revoke is a compare-and-swap on the
// revoked flag: of two concurrent calls on the same record exactly one wins,
// the other returns sentinel.ErrAlreadyRevoked along with the stored record.
type Store interface {
	Save(ctx context.Context, record models.CredentialRecord) (*models.CredentialRecord, error)
	FindByID(ctx context.Context, idOrSuffix string) (*models.CredentialRecord, error)
	Revoke(ctx context.Context, idOrSuffix, reason string, at time.Time) (*models.CredentialRecord, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.CredentialRecord, error)
}

// Option configures a store.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for ambiguous-suffix warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) warnAmbiguous(ctx context.Context, input string, candidates int) {
	if o.logger == nil || candidates < 2 {
		return
	}
	o.logger.WarnContext(ctx, "credential id suffix matched multiple records",
		"suffix", input,
		"candidates", candidates,
	)
}

func reasonOrDefault(reason string) string {
	if reason == "" {
		return models.DefaultRevocationReason
	}
	return reason
}

func clone(r *models.CredentialRecord) *models.CredentialRecord {
	c := *r
	c.Payload = append([]byte(nil), r.Payload...)
	c.Types = append([]string(nil), r.Types...)
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}
