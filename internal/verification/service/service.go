package service

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"credtrust/internal/contentstore"
	credmodels "credtrust/internal/credential/models"
	"credtrust/internal/document"
	"credtrust/internal/platform/metrics"
	"credtrust/internal/platform/tracer"
	"credtrust/internal/signer"
	"credtrust/internal/verification/models"
	dErrors "credtrust/pkg/domain-errors"
	"credtrust/pkg/platform/sentinel"
	"credtrust/pkg/requestcontext"
)

// Signer checks proofs on credentials and presentations.
type Signer interface {
	Verify(ctx context.Context, doc *document.Document) (*signer.VerifyResult, error)
}

// RevocationLookup resolves stored credentials. FindByID returns
// sentinel.ErrNotFound for unknown ids.
type RevocationLookup interface {
	FindByID(ctx context.Context, idOrSuffix string) (*credmodels.CredentialRecord, error)
}

// ContentFetcher retrieves blobs by content address.
type ContentFetcher interface {
	Fetch(ctx context.Context, address string) ([]byte, error)
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

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithContentStore enables the integrity stage.
func WithContentStore(fetcher ContentFetcher) Option {
	return func(s *Service) {
		s.content = fetcher
	}
}

// Service runs the verification pipeline. Every stage runs and its reasons
// are reported; only failed stages invalidate.
type Service struct {
	signer  Signer
	lookup  RevocationLookup
	content ContentFetcher
	tracer  tracer.Tracer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService builds a pipeline. A nil signer makes every signature stage fail.
func NewService(signer Signer, lookup RevocationLookup, opts ...Option) *Service {
	svc := &Service{
		signer: signer,
		lookup: lookup,
		tracer: tracer.NewNoop(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Verify parses the request document and runs the pipeline on it.
func (s *Service) Verify(ctx context.Context, req models.Request) (*models.Result, error) {
	var (
		doc *document.Document
		err error
	)
	switch {
	case len(req.Credential) > 0:
		doc, err = document.ParseCredential(req.Credential)
	case len(req.Presentation) > 0:
		doc, err = document.ParsePresentation(req.Presentation)
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "vc or vp is required")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "document could not be parsed")
	}
	return s.VerifyDocument(ctx, doc, req.ContentAddress), nil
}

// VerifyDocument runs signature and revocation concurrently, then integrity
// when a content address is given and neither prior stage failed.
func (s *Service) VerifyDocument(ctx context.Context, doc *document.Document, contentAddress string) *models.Result {
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify,
		tracer.String(tracer.AttrDocumentKind, doc.Kind.String()),
	)

	var signature, revocation models.Outcome
	var g errgroup.Group
	g.Go(func() error {
		signature = s.checkSignature(ctx, doc)
		return nil
	})
	g.Go(func() error {
		revocation = s.checkRevocation(ctx, doc)
		return nil
	})
	_ = g.Wait()

	outcomes := []models.Outcome{signature, revocation}
	if contentAddress != "" && signature.Result != models.StageFailed && revocation.Result != models.StageFailed {
		outcomes = append(outcomes, s.checkIntegrity(ctx, doc, contentAddress))
	}

	res := models.NewResult(outcomes...)
	s.metrics.IncVerification(res.Valid)
	span.SetAttributes(
		tracer.Bool(tracer.AttrValid, res.Valid),
		tracer.Int(tracer.AttrReasonCount, len(res.Reasons)),
	)
	span.End(nil)

	s.logger.InfoContext(ctx, "verification completed",
		"kind", doc.Kind.String(),
		"valid", res.Valid,
		"reasons", res.Reasons,
		"request_id", requestcontext.RequestID(ctx),
	)
	return res
}

func (s *Service) checkSignature(ctx context.Context, doc *document.Document) models.Outcome {
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerifySignature)
	out := models.Outcome{Stage: models.StageSignature, Result: models.StagePassed}
	defer func() { s.finishStage(span, out) }()

	if s.signer == nil {
		out.Fail(models.ReasonSignatureInvalid, models.SignatureError("no signer configured"))
		return out
	}

	result, err := s.signer.Verify(ctx, doc)
	if err != nil {
		s.logger.WarnContext(ctx, "signature check failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		detail := err.Error()
		if errors.Is(err, sentinel.ErrUnavailable) {
			detail = "signer unavailable"
		}
		out.Fail(models.ReasonSignatureInvalid, models.SignatureError(detail))
		return out
	}
	if !result.Valid {
		out.Fail(models.ReasonSignatureInvalid)
		if result.Detail != "" {
			out.Reasons = append(out.Reasons, models.SignatureError(result.Detail))
		}
	}
	return out
}

func (s *Service) checkRevocation(ctx context.Context, doc *document.Document) models.Outcome {
	id := doc.CredentialID()
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerifyRevocation, tracer.String(tracer.AttrCredentialID, id))
	out := models.Outcome{Stage: models.StageRevocation, Result: models.StagePassed}
	defer func() { s.finishStage(span, out) }()

	if id == "" || s.lookup == nil {
		out.Result = models.StageSkipped
		return out
	}

	record, err := s.lookup.FindByID(ctx, id)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return out
	case err != nil:
		s.logger.ErrorContext(ctx, "revocation lookup failed",
			"error", err,
			"credential_id", id,
			"request_id", requestcontext.RequestID(ctx),
		)
		out.Result = models.StageWarning
		out.Reasons = []string{models.ReasonRevocationCheckFailed}
		return out
	}

	if record.Revoked {
		out.Fail(models.ReasonRevoked)
		if record.RevokedAt != nil {
			out.Reasons = append(out.Reasons, models.RevokedAt(*record.RevokedAt))
		}
		out.Reasons = append(out.Reasons, models.RevocationReason(record.RevocationReason))
	}
	return out
}

func (s *Service) checkIntegrity(ctx context.Context, doc *document.Document, address string) models.Outcome {
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerifyIntegrity)
	out := models.Outcome{Stage: models.StageIntegrity, Result: models.StagePassed}
	defer func() { s.finishStage(span, out) }()

	if s.content == nil {
		out.Warn(models.IntegrityCheckFailed("no content store configured"))
		return out
	}

	credential, err := doc.FirstCredential()
	if err != nil {
		out.Fail(models.ReasonIntegrityMismatch)
		return out
	}

	blob, err := s.content.Fetch(ctx, address)
	if err != nil {
		s.logger.WarnContext(ctx, "content store fetch failed",
			"error", err,
			"content_address", address,
			"request_id", requestcontext.RequestID(ctx),
		)
		out.Warn(models.IntegrityCheckFailed(fetchDetail(err)))
		return out
	}

	matches, err := credential.MatchesContent(blob)
	if err != nil || !matches {
		out.Fail(models.ReasonIntegrityMismatch)
	}
	return out
}

func (s *Service) finishStage(span tracer.Span, out models.Outcome) {
	span.SetAttributes(tracer.String(tracer.AttrStageResult, string(out.Result)))
	span.End(nil)
	s.metrics.IncStage(string(out.Stage), string(out.Result))
}

func fetchDetail(err error) string {
	switch {
	case errors.Is(err, contentstore.ErrNotFound):
		return "content not found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, sentinel.ErrUnavailable):
		return "content store unavailable"
	default:
		return err.Error()
	}
}
