package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"credtrust/internal/events"
	"credtrust/internal/platform/metrics"
	"credtrust/internal/twofactor/models"
	"credtrust/internal/twofactor/service/mocks"
	"credtrust/internal/twofactor/store"
	"credtrust/internal/twofactor/totp"
	dErrors "credtrust/pkg/domain-errors"
	"credtrust/pkg/platform/sentinel"
	"credtrust/pkg/requestcontext"
	tu "credtrust/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	sink    *events.MemorySink
	metrics *metrics.Metrics
	logs    *bytes.Buffer
	service *Service
	now     time.Time
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemoryStore()
	s.sink = events.NewMemorySink()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.logs = &bytes.Buffer{}
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.service = s.newService(true)
}

func (s *ServiceSuite) newService(allowUnprotected bool) *Service {
	return NewService(s.store, totp.NewGenerator("CredTrust", 3), tu.TestIssuerID,
		WithLogger(slog.New(slog.NewTextHandler(s.logs, nil))),
		WithMetrics(s.metrics),
		WithPublisher(events.NewPublisher(s.sink)),
		WithUnprotectedRevocation(allowUnprotected),
	)
}

func (s *ServiceSuite) code(secret string) string {
	code, err := totp.GenerateCode(secret, s.now)
	s.Require().NoError(err)
	return code
}

// enable runs setup and enable, returning the secret and plain backup codes.
func (s *ServiceSuite) enable() (string, []string) {
	setup, err := s.service.Setup(s.ctx, "issuer")
	s.Require().NoError(err)
	s.Require().NoError(s.service.Enable(s.ctx, s.code(setup.Secret)))
	return setup.Secret, setup.BackupCodes
}

func (s *ServiceSuite) TestSetupLeavesConfigPending() {
	setup, err := s.service.Setup(s.ctx, "")
	s.Require().NoError(err)
	s.Len(setup.BackupCodes, 3)
	s.Contains(setup.ProvisioningURI, "otpauth://totp/")

	status, err := s.service.Status(s.ctx)
	s.Require().NoError(err)
	s.False(status.Configured)
	s.True(status.PendingSetup)
	s.Zero(status.BackupCodesRemaining)

	stored, err := s.store.Get(s.ctx, tu.TestIssuerID)
	s.Require().NoError(err)
	for _, c := range setup.BackupCodes {
		s.NotContains(stored.PendingBackupCodes, c, "plain codes are never stored")
	}
}

func (s *ServiceSuite) TestEnableRequiresPendingSetup() {
	err := s.service.Enable(s.ctx, "123456")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestEnableRejectsWrongCode() {
	_, err := s.service.Setup(s.ctx, "issuer")
	s.Require().NoError(err)

	err = s.service.Enable(s.ctx, "000000")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTwoFactor))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.TwoFactorFailures))
}

func (s *ServiceSuite) TestEnableCommitsSecretAndCodes() {
	s.enable()

	status, err := s.service.Status(s.ctx)
	s.Require().NoError(err)
	s.True(status.Configured)
	s.False(status.PendingSetup)
	s.Equal(3, status.BackupCodesRemaining)
	s.Require().NotNil(status.EnabledAt)
	s.Equal(s.now, *status.EnabledAt)
	s.Equal([]events.Type{events.TwoFactorSetup, events.TwoFactorEnabled}, s.sink.Types())
}

func (s *ServiceSuite) TestSetupWhileEnabledConflicts() {
	s.enable()
	_, err := s.service.Setup(s.ctx, "again")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestDisable() {
	secret, _ := s.enable()

	s.True(dErrors.HasCode(s.service.Disable(s.ctx, "000000"), dErrors.CodeInvalidTwoFactor))
	s.Require().NoError(s.service.Disable(s.ctx, s.code(secret)))

	status, err := s.service.Status(s.ctx)
	s.Require().NoError(err)
	s.False(status.Configured)
	s.Zero(status.BackupCodesRemaining)
}

func (s *ServiceSuite) TestVerify() {
	secret, _ := s.enable()
	s.NoError(s.service.Verify(s.ctx, s.code(secret)))
	s.True(dErrors.HasCode(s.service.Verify(s.ctx, "111111"), dErrors.CodeInvalidTwoFactor))
	s.True(dErrors.HasCode(s.service.Verify(s.ctx, ""), dErrors.CodeValidation))
}

func (s *ServiceSuite) TestRegenerateBackupCodes() {
	secret, old := s.enable()

	fresh, err := s.service.RegenerateBackupCodes(s.ctx, s.code(secret))
	s.Require().NoError(err)
	s.Len(fresh, 3)

	_, err = s.service.Authorize(s.ctx, old[0])
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTwoFactor), "old codes stop working")
	auth, err := s.service.Authorize(s.ctx, fresh[0])
	s.Require().NoError(err)
	s.Equal(models.MethodBackupCode, auth.Method)
}

func (s *ServiceSuite) TestAuthorizeUnprotectedAllowed() {
	auth, err := s.service.Authorize(s.ctx, "")
	s.Require().NoError(err)
	s.False(auth.Validated)
	s.Equal(models.MethodUnprotected, auth.Method)
	s.Contains(s.logs.String(), "without two-factor authentication")
}

func (s *ServiceSuite) TestAuthorizeUnprotectedDenied() {
	svc := s.newService(false)
	_, err := svc.Authorize(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestAuthorizePendingSetupIsNotConfigured() {
	_, err := s.service.Setup(s.ctx, "issuer")
	s.Require().NoError(err)

	auth, err := s.service.Authorize(s.ctx, "")
	s.Require().NoError(err)
	s.False(auth.Validated)
}

func (s *ServiceSuite) TestAuthorizeMissingCode() {
	s.enable()
	_, err := s.service.Authorize(s.ctx, " ")
	s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorRequired))
}

func (s *ServiceSuite) TestAuthorizeTOTP() {
	secret, _ := s.enable()

	auth, err := s.service.Authorize(s.ctx, s.code(secret))
	s.Require().NoError(err)
	s.True(auth.Validated)
	s.Equal(models.MethodTOTP, auth.Method)

	drifted, err := totp.GenerateCode(secret, s.now.Add(-90*time.Second))
	s.Require().NoError(err)
	_, err = s.service.Authorize(s.ctx, drifted)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTwoFactor))
}

func (s *ServiceSuite) TestAuthorizeBackupCodeSingleUse() {
	_, codes := s.enable()

	auth, err := s.service.Authorize(s.ctx, codes[1])
	s.Require().NoError(err)
	s.True(auth.Validated)
	s.Equal(models.MethodBackupCode, auth.Method)

	_, err = s.service.Authorize(s.ctx, codes[1])
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTwoFactor))

	status, err := s.service.Status(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, status.BackupCodesRemaining)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.BackupCodesConsumed))
	s.Contains(s.sink.Types(), events.BackupCodeConsumed)
}

func (s *ServiceSuite) TestCheckLeavesBackupCodeUnspent() {
	_, codes := s.enable()

	auth, err := s.service.Check(s.ctx, codes[0])
	s.Require().NoError(err)
	s.Equal(models.MethodBackupCode, auth.Method)

	status, err := s.service.Status(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, status.BackupCodesRemaining)
	s.NotContains(s.sink.Types(), events.BackupCodeConsumed)

	_, err = s.service.Authorize(s.ctx, codes[0])
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestCheckRejectsLikeAuthorize() {
	s.enable()
	_, err := s.service.Check(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeTwoFactorRequired))
	_, err = s.service.Check(s.ctx, "000000")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTwoFactor))
}

func (s *ServiceSuite) TestConcurrentBackupCodeUseHasOneWinner() {
	_, codes := s.enable()

	result := tu.RunConcurrent(10, func(int) error {
		_, err := s.service.Authorize(s.ctx, codes[0])
		return err
	})
	s.Equal(int32(1), result.Successes)
	s.Equal(int32(9), result.Errors)
}

func (s *ServiceSuite) TestAuthorizeWrongCode() {
	s.enable()
	_, err := s.service.Authorize(s.ctx, "000000")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTwoFactor))
	s.Contains(s.sink.Types(), events.TwoFactorFailed)
}

func TestStoreFailuresAreInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	svc := NewService(st, totp.NewGenerator("CredTrust", 1), "issuer")

	st.EXPECT().Get(gomock.Any(), "issuer").Return(nil, errors.New("disk full"))
	_, err := svc.Authorize(context.Background(), "123456")
	if !dErrors.HasCode(err, dErrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}

	st.EXPECT().Get(gomock.Any(), "issuer").Return(nil, sentinel.ErrNotFound)
	st.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	if _, err := svc.Setup(context.Background(), "x"); !dErrors.HasCode(err, dErrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestConsumeFailureIsInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	svc := NewService(st, totp.NewGenerator("CredTrust", 1), "issuer")

	cfg := &models.Config{IssuerID: "issuer", Secret: "JBSWY3DPEHPK3PXP", Enabled: true,
		BackupCodes: totp.DigestBackupCodes([]string{"ABCDE12345"})}
	st.EXPECT().Get(gomock.Any(), "issuer").Return(cfg, nil)
	st.EXPECT().ConsumeBackupCode(gomock.Any(), "issuer", totp.DigestBackupCode("ABCDE12345")).
		Return(false, errors.New("connection reset"))

	_, err := svc.Authorize(context.Background(), "abcde-12345")
	if !dErrors.HasCode(err, dErrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}
