package twofactor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"credtrust/e2e/steps/credential"
	"credtrust/internal/twofactor/totp"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	credential.TestContext
	RequireTwoFactorForRevocation() error
}

const (
	savedSecret      = "twoFactorSecret"
	savedBackupCodes = "twoFactorBackupCodes"
)

// RegisterSteps registers two-factor step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &twoFactorSteps{tc: tc}

	ctx.Step(`^unprotected revocation is disabled$`, steps.disableUnprotectedRevocation)
	ctx.Step(`^two-factor authentication is enabled$`, steps.enableTwoFactor)
	ctx.Step(`^I revoke the issued credential with a valid TOTP code$`, steps.revokeWithTOTP)
	ctx.Step(`^I revoke the issued credential with backup code (\d+)$`, steps.revokeWithBackupCode)
	ctx.Step(`^I check the two-factor status$`, steps.checkStatus)
	ctx.Step(`^(\d+) backup codes should remain$`, steps.backupCodesShouldRemain)
}

type twoFactorSteps struct {
	tc TestContext
}

func (s *twoFactorSteps) disableUnprotectedRevocation(ctx context.Context) error {
	return s.tc.RequireTwoFactorForRevocation()
}

func (s *twoFactorSteps) enableTwoFactor(ctx context.Context) error {
	if err := s.tc.POST("/2fa/setup", map[string]any{"label": "e2e"}); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return fmt.Errorf("2FA setup failed with %d: %s", s.tc.GetLastResponseStatus(), s.tc.GetLastResponseBody())
	}
	secret := s.tc.ResponseField("secret").String()
	var codes []string
	for _, c := range s.tc.ResponseField("backupCodes").Array() {
		codes = append(codes, c.String())
	}
	s.tc.Save(savedSecret, secret)
	s.tc.Save(savedBackupCodes, strings.Join(codes, ","))

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		return err
	}
	if err := s.tc.POST("/2fa/enable", map[string]any{"code": code}); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return fmt.Errorf("2FA enable failed with %d: %s", s.tc.GetLastResponseStatus(), s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *twoFactorSteps) revokeWithTOTP(ctx context.Context) error {
	secret, err := s.tc.Recall(savedSecret)
	if err != nil {
		return err
	}
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		return err
	}
	return credential.RevokeWith(s.tc, map[string]any{"twoFA": code})
}

func (s *twoFactorSteps) revokeWithBackupCode(ctx context.Context, n int) error {
	saved, err := s.tc.Recall(savedBackupCodes)
	if err != nil {
		return err
	}
	codes := strings.Split(saved, ",")
	if n < 1 || n > len(codes) {
		return fmt.Errorf("backup code %d out of range (have %d)", n, len(codes))
	}
	return credential.RevokeWith(s.tc, map[string]any{"twoFA": codes[n-1]})
}

func (s *twoFactorSteps) checkStatus(ctx context.Context) error {
	return s.tc.GET("/2fa/status")
}

func (s *twoFactorSteps) backupCodesShouldRemain(ctx context.Context, expected int) error {
	remaining := s.tc.ResponseField("backupCodesRemaining")
	if !remaining.Exists() {
		return fmt.Errorf("no backupCodesRemaining in %s", s.tc.GetLastResponseBody())
	}
	if got := int(remaining.Int()); got != expected {
		return fmt.Errorf("expected %d backup codes remaining, got %d", expected, got)
	}
	return nil
}
