package store

import (
	"context"

	"credtrust/internal/twofactor/models"
	"credtrust/pkg/secrets"
)

// Store persists the per-issuer second-factor configuration.
// Error Contract:
//   - Get returns sentinel.ErrNotFound when no configuration exists
//   - ConsumeBackupCode reports false when the digest is not in the active set;
//     removal is atomic so a digest is consumed at most once
type Store interface {
	Get(ctx context.Context, issuerID string) (*models.Config, error)
	Save(ctx context.Context, cfg *models.Config) error
	ConsumeBackupCode(ctx context.Context, issuerID, digest string) (bool, error)
}

// Option configures durable stores.
type Option func(*options)

type options struct {
	sealer *secrets.Sealer
}

// WithSealer encrypts TOTP secrets at rest.
func WithSealer(s *secrets.Sealer) Option {
	return func(o *options) {
		o.sealer = s
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) seal(secret string) (string, error) {
	if o.sealer == nil {
		return secret, nil
	}
	return o.sealer.Seal(secret)
}

func (o options) open(sealed string) (string, error) {
	if o.sealer == nil {
		return sealed, nil
	}
	return o.sealer.Open(sealed)
}

func removeDigest(digests []string, digest string) ([]string, bool) {
	for i, d := range digests {
		if secrets.EqualDigest(d, digest) {
			out := make([]string, 0, len(digests)-1)
			out = append(out, digests[:i]...)
			return append(out, digests[i+1:]...), true
		}
	}
	return digests, false
}
