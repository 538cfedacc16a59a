package store

import (
	"context"
	"sync"

	"credtrust/internal/twofactor/models"
	"credtrust/pkg/platform/sentinel"
)

// InMemoryStore keeps configurations in a mutex-guarded map.
type InMemoryStore struct {
	mu      sync.Mutex
	configs map[string]*models.Config
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{configs: make(map[string]*models.Config)}
}

func (s *InMemoryStore) Get(_ context.Context, issuerID string) (*models.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[issuerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cfg.Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, cfg *models.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.IssuerID] = cfg.Clone()
	return nil
}

func (s *InMemoryStore) ConsumeBackupCode(_ context.Context, issuerID, digest string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[issuerID]
	if !ok {
		return false, nil
	}
	remaining, removed := removeDigest(cfg.BackupCodes, digest)
	cfg.BackupCodes = remaining
	return removed, nil
}
