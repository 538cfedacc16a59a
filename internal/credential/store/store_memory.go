package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"credtrust/internal/credential/models"
	"credtrust/pkg/platform/sentinel"
	"credtrust/pkg/requestcontext"
)

// InMemoryStore keeps records in insertion order. Safe for concurrent use.
type InMemoryStore struct {
	mu      sync.RWMutex
	order   []string
	records map[string]*models.CredentialRecord
	opts    options
}

// NewInMemoryStore constructs an empty in-memory credential store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*models.CredentialRecord),
		opts:    buildOptions(opts),
	}
}

// Save inserts a new record or merges into the existing one with the same id.
func (s *InMemoryStore) Save(ctx context.Context, record models.CredentialRecord) (*models.CredentialRecord, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[record.ID]; ok {
		existing.Merge(record, now)
		return clone(existing), nil
	}

	stored := clone(&record)
	stored.IssuedAt = now
	stored.UpdatedAt = now
	stored.Revoked = false
	stored.RevokedAt = nil
	stored.RevocationReason = ""
	s.records[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	return clone(stored), nil
}

// FindByID resolves idOrSuffix and returns a copy of the record.
func (s *InMemoryStore) FindByID(ctx context.Context, idOrSuffix string) (*models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record := s.resolve(ctx, idOrSuffix)
	if record == nil {
		return nil, sentinel.ErrNotFound
	}
	return clone(record), nil
}

// Revoke flips the revoked flag once.
func (s *InMemoryStore) Revoke(ctx context.Context, idOrSuffix, reason string, at time.Time) (*models.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.resolve(ctx, idOrSuffix)
	if record == nil {
		return nil, sentinel.ErrNotFound
	}
	if record.Revoked {
		return clone(record), sentinel.ErrAlreadyRevoked
	}

	revokedAt := at
	record.Revoked = true
	record.RevokedAt = &revokedAt
	record.RevocationReason = reasonOrDefault(reason)
	record.UpdatedAt = at
	return clone(record), nil
}

// List returns matching records in insertion order.
func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter) ([]*models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.CredentialRecord, 0)
	for _, id := range s.order {
		record := s.records[id]
		if filter.Matches(record) {
			out = append(out, clone(record))
		}
	}
	return out, nil
}

// resolve must be called with s.mu held.
func (s *InMemoryStore) resolve(ctx context.Context, input string) *models.CredentialRecord {
	if input == "" {
		return nil
	}
	if record, ok := s.records[input]; ok {
		return record
	}
	if record, ok := s.records[models.AlternateID(input)]; ok {
		return record
	}

	var first *models.CredentialRecord
	matches := 0
	for _, id := range s.order {
		if strings.HasSuffix(id, input) {
			if first == nil {
				first = s.records[id]
			}
			matches++
		}
	}
	s.opts.warnAmbiguous(ctx, input, matches)
	return first
}
