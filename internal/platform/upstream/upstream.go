// Package upstream wraps calls to external collaborators with bounded
// retries, a circuit breaker and latency metrics.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"credtrust/internal/platform/metrics"
	"credtrust/pkg/platform/circuit"
	"credtrust/pkg/platform/sentinel"
)

// Caller executes attempts against one named upstream.
type Caller struct {
	name    string
	retries uint64
	wait    time.Duration
	breaker *circuit.Breaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Caller.
type Option func(*Caller)

// WithRetries sets the retry count and the constant wait between attempts.
func WithRetries(n uint64, wait time.Duration) Option {
	return func(c *Caller) {
		c.retries = n
		c.wait = wait
	}
}

// WithBreaker sets the circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Caller) {
		c.breaker = b
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Caller) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for retry notices and breaker transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Caller) {
		c.logger = logger
	}
}

// New returns a Caller for name with two retries 200ms apart by default.
func New(name string, opts ...Option) *Caller {
	c := &Caller{name: name, retries: 2, wait: 200 * time.Millisecond}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the upstream name.
func (c *Caller) Name() string {
	return c.name
}

// Permanent marks err as not worth retrying. The upstream answered, so the
// breaker records it as a success.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Call runs fn until it succeeds, returns a Permanent error, the retry budget
// is spent, or ctx is done. Transport failures come back wrapping
// sentinel.ErrUnavailable.
func (c *Caller) Call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			return fmt.Errorf("%s %s: %w: %w", c.name, operation, sentinel.ErrUnavailable, err)
		}
	}

	start := time.Now()
	defer c.metrics.ObserveUpstream(c.name, operation, start)

	var permanent bool
	attempt := func() error {
		err := fn(ctx)
		var p *backoff.PermanentError
		if errors.As(err, &p) {
			permanent = true
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.wait), c.retries), ctx)
	err := backoff.RetryNotify(attempt, policy, func(err error, next time.Duration) {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "upstream call failed, retrying",
				"upstream", c.name,
				"operation", operation,
				"retry_in", next,
				"error", err,
			)
		}
	})

	if err == nil || permanent {
		c.recordSuccess(ctx)
		return err
	}

	c.recordFailure(ctx)
	if errors.Is(err, sentinel.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%s %s: %w: %w", c.name, operation, sentinel.ErrUnavailable, err)
}

func (c *Caller) recordSuccess(ctx context.Context) {
	if c.breaker == nil {
		return
	}
	if change := c.breaker.RecordSuccess(); change.Closed && c.logger != nil {
		c.logger.InfoContext(ctx, "upstream circuit closed", "upstream", c.name)
	}
}

func (c *Caller) recordFailure(ctx context.Context) {
	if c.breaker == nil {
		return
	}
	if change := c.breaker.RecordFailure(); change.Opened && c.logger != nil {
		c.logger.WarnContext(ctx, "upstream circuit opened", "upstream", c.name)
	}
}
