package store

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credtrust/internal/credential/models"
	"credtrust/internal/platform/sqlite"
	"credtrust/pkg/platform/sentinel"
	"credtrust/pkg/requestcontext"
	"credtrust/pkg/testutil"
)

// StoreSuite runs the repository contract against each backend.
type StoreSuite struct {
	suite.Suite
	newStore func(t *testing.T, logger *slog.Logger) Store
	store    Store
	logs     *bytes.Buffer
	ctx      context.Context
	now      time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(_ *testing.T, logger *slog.Logger) Store {
		return NewInMemoryStore(WithLogger(logger))
	}})
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(t *testing.T, logger *slog.Logger) Store {
		db, err := sqlite.OpenMemory(context.Background(), t.Name())
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		return NewSQLite(db, WithLogger(logger))
	}})
}

func (s *StoreSuite) SetupTest() {
	s.logs = &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(s.logs, nil))
	s.store = s.newStore(s.T(), logger)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *StoreSuite) save(id string) *models.CredentialRecord {
	record, err := s.store.Save(s.ctx, testutil.NewCredentialBuilder().WithID(id).Build())
	s.Require().NoError(err)
	return record
}

func (s *StoreSuite) TestSaveInsertStampsIssuedAt() {
	record := s.save("urn:uuid:1111")

	s.Equal(s.now, record.IssuedAt)
	s.Equal(s.now, record.UpdatedAt)
	s.False(record.Revoked)
	s.Nil(record.RevokedAt)
}

func (s *StoreSuite) TestSaveMergesExisting() {
	s.save("urn:uuid:1111")

	later := s.now.Add(time.Hour)
	ctx := requestcontext.WithTime(context.Background(), later)
	record, err := s.store.Save(ctx, models.CredentialRecord{
		ID:             "urn:uuid:1111",
		Payload:        json.RawMessage(`{"replaced":true}`),
		HolderID:       "did:example:someone-else",
		ContentAddress: "bafyupdated",
	})
	s.Require().NoError(err)

	s.Equal(s.now, record.IssuedAt)
	s.Equal(later, record.UpdatedAt)
	s.Equal(testutil.TestHolderID, record.HolderID)
	s.Equal("bafyupdated", record.ContentAddress)
	s.NotContains(string(record.Payload), "replaced")
}

func (s *StoreSuite) TestSaveDoesNotTouchRevocation() {
	s.save("urn:uuid:1111")
	_, err := s.store.Revoke(s.ctx, "urn:uuid:1111", "fraud", s.now)
	s.Require().NoError(err)

	record := s.save("urn:uuid:1111")
	s.True(record.Revoked)
	s.Equal("fraud", record.RevocationReason)
}

func (s *StoreSuite) TestFindByIDForms() {
	s.save("urn:uuid:123e4567-e89b-12d3-a456-426614174000")
	s.save("bare-456")

	for _, input := range []string{
		"urn:uuid:123e4567-e89b-12d3-a456-426614174000",
		"123e4567-e89b-12d3-a456-426614174000",
		"426614174000",
	} {
		record, err := s.store.FindByID(s.ctx, input)
		s.Require().NoError(err, input)
		s.Equal("urn:uuid:123e4567-e89b-12d3-a456-426614174000", record.ID, input)
	}

	record, err := s.store.FindByID(s.ctx, "urn:uuid:bare-456")
	s.Require().NoError(err)
	s.Equal("bare-456", record.ID)
}

func (s *StoreSuite) TestFindByIDPrefersExactOverSuffix() {
	s.save("urn:uuid:x-abc")
	s.save("abc")

	record, err := s.store.FindByID(s.ctx, "abc")
	s.Require().NoError(err)
	s.Equal("abc", record.ID)
}

func (s *StoreSuite) TestFindByIDAmbiguousSuffixReturnsFirstAndWarns() {
	s.save("urn:uuid:first-abc")
	s.save("urn:uuid:second-abc")

	record, err := s.store.FindByID(s.ctx, "-abc")
	s.Require().NoError(err)
	s.Equal("urn:uuid:first-abc", record.ID)
	s.Contains(s.logs.String(), "matched multiple records")
	s.Contains(s.logs.String(), "candidates=2")
}

func (s *StoreSuite) TestFindByIDNotFound() {
	_, err := s.store.FindByID(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByID(s.ctx, "")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestRevokeOnce() {
	s.save("urn:uuid:1111")
	at := s.now.Add(time.Minute)

	record, err := s.store.Revoke(s.ctx, "1111", "", at)
	s.Require().NoError(err)
	s.True(record.Revoked)
	s.Require().NotNil(record.RevokedAt)
	s.Equal(at, *record.RevokedAt)
	s.Equal(models.DefaultRevocationReason, record.RevocationReason)

	again, err := s.store.Revoke(s.ctx, "urn:uuid:1111", "second", at.Add(time.Hour))
	s.ErrorIs(err, sentinel.ErrAlreadyRevoked)
	s.Require().NotNil(again)
	s.Equal(at, *again.RevokedAt)
	s.Equal(models.DefaultRevocationReason, again.RevocationReason)
}

func (s *StoreSuite) TestRevokeNotFound() {
	_, err := s.store.Revoke(s.ctx, "nope", "x", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestConcurrentRevokeExactlyOneWins() {
	s.save("urn:uuid:race")

	result := testutil.RunConcurrent(20, func(int) error {
		_, err := s.store.Revoke(s.ctx, "urn:uuid:race", "race", s.now)
		return err
	})

	s.Equal(int32(1), result.Successes)
	s.Equal(int32(19), result.AlreadyRevoked)
	s.Zero(result.Errors)
}

func (s *StoreSuite) TestList() {
	s.save("urn:uuid:a")
	_, err := s.store.Save(s.ctx, testutil.NewCredentialBuilder().
		WithID("urn:uuid:b").
		WithHolder("did:example:other").
		WithTypes("VerifiableCredential", "Transcript").
		Build())
	s.Require().NoError(err)
	_, err = s.store.Revoke(s.ctx, "urn:uuid:a", "", s.now)
	s.Require().NoError(err)

	all, err := s.store.List(s.ctx, models.ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal("urn:uuid:a", all[0].ID)

	byHolder, err := s.store.List(s.ctx, models.ListFilter{HolderID: "did:example:other"})
	s.Require().NoError(err)
	s.Require().Len(byHolder, 1)
	s.Equal("urn:uuid:b", byHolder[0].ID)

	byType, err := s.store.List(s.ctx, models.ListFilter{Type: "Transcript"})
	s.Require().NoError(err)
	s.Len(byType, 1)

	revoked := true
	onlyRevoked, err := s.store.List(s.ctx, models.ListFilter{Revoked: &revoked})
	s.Require().NoError(err)
	s.Require().Len(onlyRevoked, 1)
	s.Equal("urn:uuid:a", onlyRevoked[0].ID)
}

func (s *StoreSuite) TestReturnedRecordsAreCopies() {
	record := s.save("urn:uuid:copy")
	record.Types[0] = "Mutated"

	fresh, err := s.store.FindByID(s.ctx, "urn:uuid:copy")
	s.Require().NoError(err)
	s.NotEqual("Mutated", fresh.Types[0])
}
