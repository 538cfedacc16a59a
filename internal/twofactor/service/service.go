package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"credtrust/internal/events"
	"credtrust/internal/platform/metrics"
	"credtrust/internal/twofactor/models"
	"credtrust/internal/twofactor/totp"
	dErrors "credtrust/pkg/domain-errors"
	"credtrust/pkg/platform/sentinel"
	"credtrust/pkg/requestcontext"
)

// Store persists the singleton configuration.
// Error Contract:
//   - Get returns sentinel.ErrNotFound when nothing has been set up
//   - ConsumeBackupCode removes a digest atomically and reports whether it was present
type Store interface {
	Get(ctx context.Context, issuerID string) (*models.Config, error)
	Save(ctx context.Context, cfg *models.Config) error
	ConsumeBackupCode(ctx context.Context, issuerID, digest string) (bool, error)
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

// WithUnprotectedRevocation lets protected actions proceed while no second
// factor is configured. Every such action is logged and emitted.
func WithUnprotectedRevocation(allow bool) Option {
	return func(s *Service) {
		s.allowUnprotected = allow
	}
}

// WithWindow sets the accepted TOTP drift in 30s steps either side. Default 1.
func WithWindow(steps uint) Option {
	return func(s *Service) {
		s.window = steps
	}
}

// Service guards protected actions with a TOTP code or a single-use backup code.
// Configuration mutations are serialized by mu; backup-code consumption is
// additionally atomic in the store.
type Service struct {
	store            Store
	generator        *totp.Generator
	issuerID         string
	allowUnprotected bool
	window           uint
	mu               sync.Mutex
	publisher        *events.Publisher
	metrics          *metrics.Metrics
	logger           *slog.Logger
}

func NewService(store Store, generator *totp.Generator, issuerID string, opts ...Option) *Service {
	svc := &Service{
		store:     store,
		generator: generator,
		issuerID:  issuerID,
		window:    totp.DefaultWindow,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// AllowsUnprotected reports whether protected actions may run without 2FA.
func (s *Service) AllowsUnprotected() bool {
	return s.allowUnprotected
}

func (s *Service) load(ctx context.Context) (*models.Config, error) {
	cfg, err := s.store.Get(ctx, s.issuerID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.Config{IssuerID: s.issuerID}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load two-factor configuration")
	}
	return cfg, nil
}

func (s *Service) save(ctx context.Context, cfg *models.Config) error {
	if err := s.store.Save(ctx, cfg); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save two-factor configuration")
	}
	return nil
}

// Setup generates a pending secret and backup codes. The plain codes are
// returned once; only their digests are stored.
func (s *Service) Setup(ctx context.Context, label string) (*models.SetupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.IsConfigured() {
		return nil, dErrors.New(dErrors.CodeConflict, "two-factor authentication is already enabled; disable it first")
	}

	secret, err := s.generator.GenerateSecret(label)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate two-factor secret")
	}
	cfg.BeginSetup(secret.Secret, totp.DigestBackupCodes(secret.BackupCodes), requestcontext.Now(ctx))
	if err := s.save(ctx, cfg); err != nil {
		return nil, err
	}

	s.publisher.Emit(ctx, events.Event{Type: events.TwoFactorSetup, Subject: s.issuerID})
	return &models.SetupResult{
		Secret:          secret.Secret,
		ProvisioningURI: secret.ProvisioningURI,
		BackupCodes:     secret.BackupCodes,
	}, nil
}

// Enable commits the pending setup once code matches the pending secret.
func (s *Service) Enable(ctx context.Context, code string) error {
	if err := requireCode(code); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load(ctx)
	if err != nil {
		return err
	}
	if !cfg.HasPendingSetup() {
		return dErrors.New(dErrors.CodeBadRequest, "no pending two-factor setup; call setup first")
	}
	now := requestcontext.Now(ctx)
	if !totp.VerifyCode(code, cfg.PendingSecret, now, s.window) {
		s.recordFailure(ctx, "enable")
		return dErrors.New(dErrors.CodeInvalidTwoFactor, "invalid two-factor code")
	}

	cfg.Enable(now)
	if err := s.save(ctx, cfg); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "two-factor authentication enabled",
		"issuer_id", s.issuerID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publisher.Emit(ctx, events.Event{Type: events.TwoFactorEnabled, Subject: s.issuerID})
	return nil
}

// Disable clears the configuration after a valid TOTP code.
func (s *Service) Disable(ctx context.Context, code string) error {
	if err := requireCode(code); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load(ctx)
	if err != nil {
		return err
	}
	if !cfg.IsConfigured() {
		return dErrors.New(dErrors.CodeBadRequest, "two-factor authentication is not enabled")
	}
	now := requestcontext.Now(ctx)
	if !totp.VerifyCode(code, cfg.Secret, now, s.window) {
		s.recordFailure(ctx, "disable")
		return dErrors.New(dErrors.CodeInvalidTwoFactor, "invalid two-factor code")
	}

	cfg.Disable(now)
	if err := s.save(ctx, cfg); err != nil {
		return err
	}
	s.logger.WarnContext(ctx, "two-factor authentication disabled",
		"issuer_id", s.issuerID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publisher.Emit(ctx, events.Event{Type: events.TwoFactorDisabled, Subject: s.issuerID})
	return nil
}

// Verify checks a TOTP code against the active secret without side effects.
func (s *Service) Verify(ctx context.Context, code string) error {
	if err := requireCode(code); err != nil {
		return err
	}
	cfg, err := s.load(ctx)
	if err != nil {
		return err
	}
	if !cfg.IsConfigured() {
		return dErrors.New(dErrors.CodeBadRequest, "two-factor authentication is not enabled")
	}
	if !totp.VerifyCode(code, cfg.Secret, requestcontext.Now(ctx), s.window) {
		s.recordFailure(ctx, "verify")
		return dErrors.New(dErrors.CodeInvalidTwoFactor, "invalid two-factor code")
	}
	return nil
}

// RegenerateBackupCodes replaces every backup code after a valid TOTP code.
func (s *Service) RegenerateBackupCodes(ctx context.Context, code string) ([]string, error) {
	if err := requireCode(code); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.IsConfigured() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "two-factor authentication is not enabled")
	}
	now := requestcontext.Now(ctx)
	if !totp.VerifyCode(code, cfg.Secret, now, s.window) {
		s.recordFailure(ctx, "regenerate_backup_codes")
		return nil, dErrors.New(dErrors.CodeInvalidTwoFactor, "invalid two-factor code")
	}

	codes, err := s.generator.GenerateBackupCodes()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate backup codes")
	}
	cfg.ReplaceBackupCodes(totp.DigestBackupCodes(codes), now)
	if err := s.save(ctx, cfg); err != nil {
		return nil, err
	}
	s.publisher.Emit(ctx, events.Event{Type: events.BackupCodesRotated, Subject: s.issuerID})
	return codes, nil
}

// Status summarizes the configuration.
func (s *Service) Status(ctx context.Context) (*models.Status, error) {
	cfg, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return &models.Status{
		Configured:           cfg.IsConfigured(),
		Enabled:              cfg.Enabled,
		PendingSetup:         cfg.HasPendingSetup(),
		BackupCodesRemaining: len(cfg.BackupCodes),
		EnabledAt:            cfg.EnabledAt,
	}, nil
}

// Authorize gates a protected action. With 2FA configured the code must be a
// valid TOTP code or an unused backup code, which is consumed. Without 2FA the
// action proceeds only when unprotected actions are allowed.
func (s *Service) Authorize(ctx context.Context, code string) (*models.Authorization, error) {
	return s.authorize(ctx, code, true)
}

// Check applies the same rules as Authorize but leaves backup codes unspent.
// It answers for actions that are refused after authorization anyway.
func (s *Service) Check(ctx context.Context, code string) (*models.Authorization, error) {
	return s.authorize(ctx, code, false)
}

func (s *Service) authorize(ctx context.Context, code string, consume bool) (*models.Authorization, error) {
	cfg, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	if !cfg.IsConfigured() {
		if !s.allowUnprotected {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "two-factor authentication must be configured for this action")
		}
		if consume {
			s.logger.WarnContext(ctx, "protected action allowed without two-factor authentication",
				"issuer_id", s.issuerID,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return &models.Authorization{Validated: false, Method: models.MethodUnprotected}, nil
	}

	if totp.NormalizeCode(code) == "" {
		return nil, dErrors.New(dErrors.CodeTwoFactorRequired, "two-factor code required")
	}

	if totp.VerifyCode(code, cfg.Secret, requestcontext.Now(ctx), s.window) {
		return &models.Authorization{Validated: true, Method: models.MethodTOTP}, nil
	}

	if totp.VerifyBackupCode(code, cfg.BackupCodes) {
		if !consume {
			return &models.Authorization{Validated: true, Method: models.MethodBackupCode}, nil
		}
		consumed, err := s.store.ConsumeBackupCode(ctx, s.issuerID, totp.DigestBackupCode(code))
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume backup code")
		}
		if consumed {
			s.metrics.IncBackupCodeConsumed()
			s.logger.InfoContext(ctx, "backup code consumed",
				"issuer_id", s.issuerID,
				"remaining", len(cfg.BackupCodes)-1,
				"request_id", requestcontext.RequestID(ctx),
			)
			s.publisher.Emit(ctx, events.Event{Type: events.BackupCodeConsumed, Subject: s.issuerID})
			return &models.Authorization{Validated: true, Method: models.MethodBackupCode}, nil
		}
	}

	s.recordFailure(ctx, "authorize")
	return nil, dErrors.New(dErrors.CodeInvalidTwoFactor, "invalid two-factor code")
}

func (s *Service) recordFailure(ctx context.Context, operation string) {
	s.metrics.IncTwoFactorFailure()
	s.logger.WarnContext(ctx, "two-factor code rejected",
		"operation", operation,
		"issuer_id", s.issuerID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publisher.Emit(ctx, events.Event{
		Type:       events.TwoFactorFailed,
		Subject:    s.issuerID,
		Attributes: map[string]string{"operation": operation},
	})
}

func requireCode(code string) error {
	if totp.NormalizeCode(code) == "" {
		return dErrors.New(dErrors.CodeValidation, "code is required")
	}
	return nil
}
