// Package totp generates and checks RFC 6238 codes and single-use backup codes.
package totp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"credtrust/pkg/secrets"
)

const (
	Period           = 30
	Digits           = 6
	DefaultWindow    = 1
	BackupCodeLength = 10
	defaultCodeCount = 10
	defaultLabel     = "revocation"
)

var validateOpts = totp.ValidateOpts{
	Period:    Period,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Secret is a freshly generated, unpersisted second factor.
type Secret struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// Generator creates secrets for one issuer name.
type Generator struct {
	issuer    string
	codeCount int
}

// NewGenerator returns a Generator. codeCount <= 0 means 10 backup codes.
func NewGenerator(issuer string, codeCount int) *Generator {
	if codeCount <= 0 {
		codeCount = defaultCodeCount
	}
	return &Generator{issuer: issuer, codeCount: codeCount}
}

// GenerateSecret creates a TOTP secret and its backup codes. Nothing is persisted.
func (g *Generator) GenerateSecret(label string) (*Secret, error) {
	if strings.TrimSpace(label) == "" {
		label = defaultLabel
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      g.issuer,
		AccountName: label,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	codes, err := g.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	return &Secret{Secret: key.Secret(), ProvisioningURI: key.URL(), BackupCodes: codes}, nil
}

// GenerateBackupCodes returns codeCount distinct codes of uppercase letters and digits.
func (g *Generator) GenerateBackupCodes() ([]string, error) {
	seen := make(map[string]struct{}, g.codeCount)
	codes := make([]string, 0, g.codeCount)
	for len(codes) < g.codeCount {
		code := rand.Text()[:BackupCodeLength]
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// NormalizeCode strips spaces and dashes.
func NormalizeCode(code string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(code))
}

// NormalizeBackupCode strips spaces and dashes and uppercases.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(NormalizeCode(code))
}

// IsWellFormedCode reports whether code normalizes to exactly six digits.
func IsWellFormedCode(code string) bool {
	code = NormalizeCode(code)
	if len(code) != Digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// VerifyCode checks code against secret at the time step containing at and
// window steps either side.
func VerifyCode(code, secret string, at time.Time, window uint) bool {
	if secret == "" || !IsWellFormedCode(code) {
		return false
	}
	opts := validateOpts
	opts.Skew = window
	ok, err := totp.ValidateCustom(NormalizeCode(code), secret, at, opts)
	return err == nil && ok
}

// GenerateCode returns the code for secret at t.
func GenerateCode(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, at, validateOpts)
	if err != nil {
		return "", fmt.Errorf("generate totp code: %w", err)
	}
	return code, nil
}

// DigestBackupCode is the stored form of a backup code.
func DigestBackupCode(code string) string {
	return secrets.Digest(NormalizeBackupCode(code))
}

// DigestBackupCodes digests every code.
func DigestBackupCodes(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = DigestBackupCode(c)
	}
	return out
}

// ErrBackupCodeNotFound is returned by ConsumeBackupCode when nothing matches.
var ErrBackupCodeNotFound = errors.New("backup code not found")

// VerifyBackupCode reports whether code matches one of the stored digests.
func VerifyBackupCode(code string, digests []string) bool {
	return matchBackupCode(code, digests) >= 0
}

// ConsumeBackupCode returns digests without the entry matching code.
func ConsumeBackupCode(code string, digests []string) ([]string, error) {
	idx := matchBackupCode(code, digests)
	if idx < 0 {
		return digests, ErrBackupCodeNotFound
	}
	remaining := make([]string, 0, len(digests)-1)
	remaining = append(remaining, digests[:idx]...)
	return append(remaining, digests[idx+1:]...), nil
}

// matchBackupCode compares against every digest so timing does not reveal the position.
func matchBackupCode(code string, digests []string) int {
	normalized := NormalizeBackupCode(code)
	if normalized == "" {
		return -1
	}
	candidate := secrets.Digest(normalized)
	found := -1
	for i, d := range digests {
		if secrets.EqualDigest(candidate, d) && found < 0 {
			found = i
		}
	}
	return found
}
