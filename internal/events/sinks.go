package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"credtrust/internal/platform/kafka/producer"
)

// Producer is the subset of the Kafka producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaSink writes events as JSON records keyed by subject, so all events for
// one credential land on the same partition in order.
type KafkaSink struct {
	producer Producer
	topic    string
}

func NewKafkaSink(p Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(event.Subject),
		Value: value,
		Headers: map[string]string{
			"event_type": string(event.Type),
			"event_id":   event.ID,
		},
	})
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, "lifecycle event",
		"event_id", event.ID,
		"type", event.Type,
		"subject", event.Subject,
		"actor", event.Actor,
		"request_id", event.RequestID,
	)
	return nil
}

// MemorySink records events for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything appended so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Types returns the types appended so far, in order.
func (s *MemorySink) Types() []Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Type, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}
