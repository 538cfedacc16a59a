package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks Service

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"credtrust/internal/twofactor/handler/mocks"
	"credtrust/internal/twofactor/models"
	dErrors "credtrust/pkg/domain-errors"
)

type HandlerSuite struct {
	suite.Suite
	router      http.Handler
	ctrl        *gomock.Controller
	mockService *mocks.MockService
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockService = mocks.NewMockService(s.ctrl)
	h := New(s.mockService, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) errorCode(rec *httptest.ResponseRecorder) string {
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	code, _ := body["error"].(string)
	return code
}

func (s *HandlerSuite) TestSetup() {
	s.mockService.EXPECT().Setup(gomock.Any(), "issuer-device").Return(&models.SetupResult{
		Secret:          "JBSWY3DPEHPK3PXP",
		ProvisioningURI: "otpauth://totp/CredTrust:issuer-device",
		BackupCodes:     []string{"ABCDE23456"},
	}, nil)

	rec := s.do(http.MethodPost, "/2fa/setup", `{"label":" issuer-device "}`)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"secret":"JBSWY3DPEHPK3PXP","provisioningUri":"otpauth://totp/CredTrust:issuer-device","backupCodes":["ABCDE23456"]}`, rec.Body.String())
}

func (s *HandlerSuite) TestEnableMissingCode() {
	rec := s.do(http.MethodPost, "/2fa/enable", `{}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("validation_failed", s.errorCode(rec))
}

func (s *HandlerSuite) TestEnableInvalidCode() {
	s.mockService.EXPECT().Enable(gomock.Any(), "000000").
		Return(dErrors.New(dErrors.CodeInvalidTwoFactor, "invalid two-factor code"))

	rec := s.do(http.MethodPost, "/2fa/enable", `{"code":"000000"}`)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("invalid_two_factor_code", s.errorCode(rec))
}

func (s *HandlerSuite) TestEnableAndDisable() {
	s.mockService.EXPECT().Enable(gomock.Any(), "123456").Return(nil)
	s.mockService.EXPECT().Disable(gomock.Any(), "654321").Return(nil)

	s.Equal(http.StatusOK, s.do(http.MethodPost, "/2fa/enable", `{"code":"123456"}`).Code)
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/2fa/disable", `{"code":"654321"}`).Code)
}

func (s *HandlerSuite) TestVerify() {
	s.mockService.EXPECT().Verify(gomock.Any(), "123456").Return(nil)

	rec := s.do(http.MethodPost, "/2fa/verify", `{"code":"123456"}`)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"valid":true}`, rec.Body.String())
}

func (s *HandlerSuite) TestRegenerateBackupCodes() {
	s.mockService.EXPECT().RegenerateBackupCodes(gomock.Any(), "123456").Return([]string{"A", "B"}, nil)

	rec := s.do(http.MethodPost, "/2fa/backup-codes", `{"code":"123456"}`)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"backupCodes":["A","B"]}`, rec.Body.String())
}

func (s *HandlerSuite) TestStatus() {
	s.mockService.EXPECT().Status(gomock.Any()).Return(&models.Status{Configured: true, Enabled: true, BackupCodesRemaining: 7}, nil)

	rec := s.do(http.MethodGet, "/2fa/status", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"configured":true,"enabled":true,"pendingSetup":false,"backupCodesRemaining":7}`, rec.Body.String())
}

func (s *HandlerSuite) TestInternalErrorHidesDetail() {
	s.mockService.EXPECT().Status(gomock.Any()).
		Return(nil, dErrors.Wrap(errors.New("disk on fire"), dErrors.CodeInternal, "failed to load two-factor configuration"))

	rec := s.do(http.MethodGet, "/2fa/status", "")
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.NotContains(rec.Body.String(), "disk on fire")
}

func (s *HandlerSuite) TestInvalidJSON() {
	rec := s.do(http.MethodPost, "/2fa/setup", `not json`)
	s.Equal(http.StatusBadRequest, rec.Code)
}
