// Package events publishes credential and two-factor lifecycle events to a sink.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"credtrust/pkg/requestcontext"
)

// Sink receives events. Kafka in production, a log or memory sink otherwise.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher stamps events with request metadata and hands them to a sink.
// A nil *Publisher drops everything.
type Publisher struct {
	sink   Sink
	events chan Event
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
	async  bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer queues events and delivers them from a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets the logger for delivery failures.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{sink: sink}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		if err := p.sink.Append(context.Background(), event); err != nil {
			p.logFailure(event, err)
		}
	}
}

// Close drains queued events. Events emitted afterwards are dropped.
func (p *Publisher) Close() {
	if p == nil || !p.async || p.events == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()
	p.wg.Wait()
}

// Emit publishes event. Delivery failures are logged, never returned: the
// state change the event describes has already happened.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil || p.sink == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Actor == "" {
		event.Actor = requestcontext.APIKeyID(ctx)
	}

	if p.async {
		p.enqueue(ctx, event)
		return
	}
	if err := p.sink.Append(ctx, event); err != nil {
		p.logFailure(event, err)
	}
}

func (p *Publisher) enqueue(ctx context.Context, event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	drop := "publisher closed, event dropped"
	if !p.closed {
		select {
		case p.events <- event:
			return
		default:
			drop = "event buffer full, event dropped"
		}
	}
	if p.logger != nil {
		p.logger.WarnContext(ctx, drop,
			"type", event.Type,
			"subject", event.Subject,
		)
	}
}

func (p *Publisher) logFailure(event Event, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("failed to publish event",
		"error", err,
		"type", event.Type,
		"subject", event.Subject,
	)
}
