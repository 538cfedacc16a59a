package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tidwall/sjson"

	credmodels "credtrust/internal/credential/models"
	"credtrust/internal/document"
	"credtrust/internal/events"
	"credtrust/internal/platform/metrics"
	"credtrust/internal/platform/tracer"
	"credtrust/internal/presentation/disclosure"
	"credtrust/internal/presentation/models"
	dErrors "credtrust/pkg/domain-errors"
	"credtrust/pkg/requestcontext"
)

const credentialsContext = "https://www.w3.org/2018/credentials/v1"

// CredentialFinder loads stored credentials. Errors are domain errors.
type CredentialFinder interface {
	FindByID(ctx context.Context, idOrSuffix string) (*credmodels.CredentialRecord, error)
}

// Signer signs presentations.
type Signer interface {
	SignPresentation(ctx context.Context, presentation json.RawMessage) (json.RawMessage, error)
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

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// Service builds holder presentations with selectively disclosed subjects.
type Service struct {
	credentials CredentialFinder
	signer      Signer
	publisher   *events.Publisher
	tracer      tracer.Tracer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewService(credentials CredentialFinder, signer Signer, opts ...Option) *Service {
	svc := &Service{
		credentials: credentials,
		signer:      signer,
		tracer:      tracer.NewNoop(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Present derives the requested view of a holder's credential and has the
// resulting presentation signed.
func (s *Service) Present(ctx context.Context, req models.PresentRequest) (result *models.PresentResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanPresentationBuild,
		tracer.String(tracer.AttrCredentialID, req.CredentialID),
		tracer.Int(tracer.AttrFieldCount, len(req.Fields)),
	)
	defer func() { span.End(err) }()

	if req.CredentialID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "credentialId is required")
	}
	if req.HolderID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "holderId is required")
	}
	for path, pred := range req.Predicates {
		if !pred.Operator.Valid() {
			return nil, dErrors.New(dErrors.CodeValidation, "unsupported predicate operator for "+path)
		}
	}

	record, err := s.credentials.FindByID(ctx, req.CredentialID)
	if err != nil {
		return nil, err
	}
	if record.HolderID != req.HolderID {
		s.logger.WarnContext(ctx, "presentation requested by non-holder",
			"credential_id", record.ID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.New(dErrors.CodeForbidden, "credential does not belong to holder")
	}
	if record.Revoked {
		return nil, dErrors.New(dErrors.CodeCredentialRevoked, "credential is revoked")
	}

	unsigned, err := s.buildPresentation(record, req)
	if err != nil {
		return nil, err
	}

	if s.signer == nil {
		return nil, dErrors.New(dErrors.CodeUpstreamUnavailable, "no presentation signer configured")
	}
	signed, err := s.signer.SignPresentation(ctx, unsigned)
	if err != nil {
		s.logger.ErrorContext(ctx, "presentation signing failed",
			"error", err,
			"credential_id", record.ID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "presentation signer unavailable")
	}

	s.metrics.IncPresentation()
	s.publisher.Emit(ctx, events.Event{
		Type:    events.PresentationCreated,
		Subject: record.ID,
		Attributes: map[string]string{
			"holder_id": req.HolderID,
		},
	})
	return &models.PresentResult{VerifiablePresentation: signed}, nil
}

// buildPresentation replaces the credential subject with the derived one and
// wraps the credential in an unsigned presentation. The original proof is dropped.
func (s *Service) buildPresentation(record *credmodels.CredentialRecord, req models.PresentRequest) (json.RawMessage, error) {
	doc, err := document.ParseCredential(record.Payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stored credential is unreadable")
	}

	derived, err := disclosure.Derive(doc.SubjectJSON(), req.HolderID, req.Fields, req.Predicates)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "selective disclosure failed")
	}

	body, err := sjson.SetRawBytes(append([]byte(nil), doc.Body...), "credentialSubject", derived)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build derived credential")
	}
	body, err = sjson.DeleteBytes(body, "proof")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build derived credential")
	}

	vp, err := json.Marshal(map[string]any{
		"@context":             []string{credentialsContext},
		"type":                 []string{"VerifiablePresentation"},
		"holder":               req.HolderID,
		"verifiableCredential": []json.RawMessage{body},
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build presentation")
	}
	return vp, nil
}
