//go:build integration

// Package containers starts throwaway backends for integration tests.
// Each backend boots on first use and is reused by every suite in the test
// binary; Ryuk reaps them when the process exits.
package containers

import (
	"sync"
	"testing"
)

// lazy starts a container once and hands the same instance to later callers.
// A failed start is not cached, so the next suite retries.
type lazy[T any] struct {
	mu  sync.Mutex
	val *T
}

func (l *lazy[T]) get(t *testing.T, start func(*testing.T) *T) *T {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.val == nil {
		l.val = start(t)
	}
	return l.val
}

// Manager hands out the shared backends.
type Manager struct {
	postgres lazy[PostgresContainer]
	redis    lazy[RedisContainer]
	kafka    lazy[KafkaContainer]
}

var shared Manager

// GetManager returns the process-wide manager.
func GetManager() *Manager { return &shared }

// GetPostgres returns a migrated Postgres instance.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, NewPostgresContainer)
}

// GetRedis returns a Redis instance.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, NewRedisContainer)
}

// GetKafka returns a Redpanda broker.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, NewKafkaContainer)
}
