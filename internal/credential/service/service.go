package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"credtrust/internal/credential/models"
	"credtrust/internal/events"
	"credtrust/internal/platform/metrics"
	"credtrust/internal/platform/privacy"
	tfmodels "credtrust/internal/twofactor/models"
	dErrors "credtrust/pkg/domain-errors"
	"credtrust/pkg/platform/sentinel"
	pkgsync "credtrust/pkg/platform/sync"
	"credtrust/pkg/requestcontext"
)

const credentialsContext = "https://www.w3.org/2018/credentials/v1"

// Store defines the persistence interface for credential records.
// Error Contract:
//   - FindByID and Revoke return sentinel.ErrNotFound when nothing matches
//   - Revoke returns sentinel.ErrAlreadyRevoked with the stored record when it lost the race
type Store interface {
	Save(ctx context.Context, record models.CredentialRecord) (*models.CredentialRecord, error)
	FindByID(ctx context.Context, idOrSuffix string) (*models.CredentialRecord, error)
	Revoke(ctx context.Context, idOrSuffix, reason string, at time.Time) (*models.CredentialRecord, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.CredentialRecord, error)
}

// Authorizer gates revocation behind the second factor. Check validates a
// code without spending a backup code.
type Authorizer interface {
	Authorize(ctx context.Context, code string) (*tfmodels.Authorization, error)
	Check(ctx context.Context, code string) (*tfmodels.Authorization, error)
}

// Signer turns an unsigned credential into a verifiable one.
type Signer interface {
	SignCredential(ctx context.Context, credential json.RawMessage) (json.RawMessage, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPublisher(p *events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithSigner enables issuance.
func WithSigner(signer Signer) Option {
	return func(s *Service) {
		s.signer = signer
	}
}

// Service owns the credential lifecycle: issuance, lookup and revocation.
type Service struct {
	store      Store
	authorizer Authorizer
	signer     Signer
	issuerID   string
	locks      *pkgsync.ShardedMutex
	publisher  *events.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewService(store Store, authorizer Authorizer, issuerID string, opts ...Option) *Service {
	svc := &Service{
		store:      store,
		authorizer: authorizer,
		issuerID:   issuerID,
		locks:      pkgsync.NewShardedMutex(0),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Save upserts a record.
func (s *Service) Save(ctx context.Context, record models.CredentialRecord) (*models.CredentialRecord, error) {
	if strings.TrimSpace(record.ID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "credential id is required")
	}
	saved, err := s.store.Save(ctx, record)
	if err != nil {
		return nil, s.storageError(ctx, "failed to save credential", err)
	}
	return saved, nil
}

// Issue builds a credential for the holder, has it signed and stores it.
func (s *Service) Issue(ctx context.Context, req models.IssueRequest) (*models.IssueResult, error) {
	if s.signer == nil {
		return nil, dErrors.New(dErrors.CodeUpstreamUnavailable, "no credential signer configured")
	}
	if req.HolderID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "holderId is required")
	}

	id := models.NewCredentialID()
	types := credentialTypes(req.Types)
	subject := make(map[string]any, len(req.CredentialSubject)+1)
	for k, v := range req.CredentialSubject {
		subject[k] = v
	}
	subject["id"] = req.HolderID

	unsigned, err := json.Marshal(map[string]any{
		"@context":          []string{credentialsContext},
		"id":                id,
		"type":              types,
		"issuer":            s.issuerID,
		"issuanceDate":      requestcontext.Now(ctx).UTC().Format(time.RFC3339),
		"credentialSubject": subject,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "credentialSubject is not serializable")
	}

	signed, err := s.signer.SignCredential(ctx, unsigned)
	if err != nil {
		s.logger.ErrorContext(ctx, "credential signing failed",
			"error", err,
			"credential_id", id,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "credential signer unavailable")
	}

	if _, err := s.Save(ctx, models.CredentialRecord{
		ID:             id,
		Payload:        signed,
		HolderID:       req.HolderID,
		IssuerID:       s.issuerID,
		Types:          types,
		ContentAddress: req.ContentAddress,
	}); err != nil {
		return nil, err
	}

	s.metrics.IncIssued()
	s.publisher.Emit(ctx, events.Event{
		Type:       events.CredentialIssued,
		Subject:    id,
		Attributes: map[string]string{"holder_id": req.HolderID},
	})
	return &models.IssueResult{CredentialID: id, VerifiableCredential: signed}, nil
}

// FindByID resolves an exact id, its urn:uuid: alternate, or a suffix.
func (s *Service) FindByID(ctx context.Context, idOrSuffix string) (*models.CredentialRecord, error) {
	idOrSuffix = strings.TrimSpace(idOrSuffix)
	if idOrSuffix == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "credentialId is required")
	}
	record, err := s.store.FindByID(ctx, idOrSuffix)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
	}
	if err != nil {
		return nil, s.storageError(ctx, "failed to find credential", err)
	}
	return record, nil
}

// Revoke authorizes the caller, then revokes the credential exactly once.
// Second-factor errors take precedence over not_found and already_revoked.
// A backup code is only spent when the credential can still be revoked.
func (s *Service) Revoke(ctx context.Context, req models.RevokeRequest) (*models.RevokeResult, error) {
	id := strings.TrimSpace(req.CredentialID)
	if id == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "credentialId is required")
	}

	var (
		auth   *tfmodels.Authorization
		record *models.CredentialRecord
	)
	err := s.locks.Do(id, func() error {
		current, findErr := s.store.FindByID(ctx, id)
		if findErr != nil && !errors.Is(findErr, sentinel.ErrNotFound) {
			return findErr
		}
		if current == nil || current.Revoked {
			if _, authErr := s.authorizer.Check(ctx, req.TwoFactorCode); authErr != nil {
				return authErr
			}
			if current == nil {
				return sentinel.ErrNotFound
			}
			record = current
			return sentinel.ErrAlreadyRevoked
		}

		var authErr error
		if auth, authErr = s.authorizer.Authorize(ctx, req.TwoFactorCode); authErr != nil {
			return authErr
		}
		var revokeErr error
		record, revokeErr = s.store.Revoke(ctx, id, strings.TrimSpace(req.Reason), requestcontext.Now(ctx))
		return revokeErr
	})
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		s.metrics.IncRevocationRejected(string(domainErr.Code))
		return nil, err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		s.metrics.IncRevocationRejected(string(dErrors.CodeNotFound))
		return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
	case errors.Is(err, sentinel.ErrAlreadyRevoked):
		s.metrics.IncRevocationRejected(string(dErrors.CodeAlreadyRevoked))
		already := &models.AlreadyRevokedError{CredentialID: id}
		if record != nil {
			already.CredentialID = record.ID
			already.RevokedAt = record.RevokedAt
			already.Reason = record.RevocationReason
		}
		return nil, dErrors.Wrap(already, dErrors.CodeAlreadyRevoked, "credential already revoked")
	case err != nil:
		return nil, s.storageError(ctx, "failed to revoke credential", err)
	}

	s.metrics.IncRevoked(auth.Method)
	s.logger.InfoContext(ctx, "credential revoked",
		"credential_id", record.ID,
		"two_factor_method", auth.Method,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publisher.Emit(ctx, events.Event{
		Type:    events.CredentialRevoked,
		Subject: record.ID,
		Attributes: map[string]string{
			"reason":            record.RevocationReason,
			"two_factor_method": auth.Method,
		},
	})
	if !auth.Validated {
		s.logger.WarnContext(ctx, "credential revoked without two-factor authentication",
			"credential_id", record.ID,
			"request_id", requestcontext.RequestID(ctx),
			"client_ip", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
		)
		s.publisher.Emit(ctx, events.Event{Type: events.RevocationUnprotected, Subject: record.ID})
	}

	return &models.RevokeResult{Record: record, TwoFAValidated: auth.Validated}, nil
}

// List returns the records matching filter.
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.CredentialRecord, error) {
	records, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, s.storageError(ctx, "failed to list credentials", err)
	}
	return records, nil
}

func (s *Service) storageError(ctx context.Context, msg string, err error) error {
	s.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func credentialTypes(extra []string) []string {
	types := []string{"VerifiableCredential"}
	for _, t := range extra {
		t = strings.TrimSpace(t)
		if t != "" && t != "VerifiableCredential" {
			types = append(types, t)
		}
	}
	return types
}
