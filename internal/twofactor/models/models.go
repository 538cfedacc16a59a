package models

import "time"

// Authorization methods reported after a protected action is allowed.
const (
	MethodTOTP        = "totp"
	MethodBackupCode  = "backup_code"
	MethodUnprotected = "unprotected"
)

// Config is the per-issuer second-factor configuration. Secrets are plain
// base32 here; durable stores seal them at rest. Backup codes are held as
// digests of the normalized code, never in the clear.
type Config struct {
	IssuerID           string
	Secret             string
	Enabled            bool
	BackupCodes        []string
	PendingSecret      string
	PendingBackupCodes []string
	CreatedAt          time.Time
	EnabledAt          *time.Time
	UpdatedAt          time.Time
}

// IsConfigured is true only when a secret is present and enabled.
func (c *Config) IsConfigured() bool {
	return c != nil && c.Enabled && c.Secret != ""
}

// HasPendingSetup reports a generated secret waiting for a confirming code.
func (c *Config) HasPendingSetup() bool {
	return c != nil && c.PendingSecret != ""
}

// BeginSetup records a fresh pending secret and code digests.
// An enabled configuration keeps working until the new secret is enabled.
func (c *Config) BeginSetup(secret string, codeDigests []string, now time.Time) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.PendingSecret = secret
	c.PendingBackupCodes = append([]string(nil), codeDigests...)
	c.UpdatedAt = now
}

// Enable commits the pending secret and codes.
func (c *Config) Enable(now time.Time) {
	c.Secret = c.PendingSecret
	c.BackupCodes = c.PendingBackupCodes
	c.PendingSecret = ""
	c.PendingBackupCodes = nil
	c.Enabled = true
	c.EnabledAt = &now
	c.UpdatedAt = now
}

// Disable clears the secret and every code.
func (c *Config) Disable(now time.Time) {
	c.Enabled = false
	c.Secret = ""
	c.BackupCodes = nil
	c.PendingSecret = ""
	c.PendingBackupCodes = nil
	c.EnabledAt = nil
	c.UpdatedAt = now
}

// ReplaceBackupCodes swaps the active code digests.
func (c *Config) ReplaceBackupCodes(codeDigests []string, now time.Time) {
	c.BackupCodes = append([]string(nil), codeDigests...)
	c.UpdatedAt = now
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.BackupCodes = append([]string(nil), c.BackupCodes...)
	out.PendingBackupCodes = append([]string(nil), c.PendingBackupCodes...)
	if c.EnabledAt != nil {
		t := *c.EnabledAt
		out.EnabledAt = &t
	}
	return &out
}

// SetupResult is returned once from setup; the plain codes are never stored.
type SetupResult struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioningUri"`
	BackupCodes     []string `json:"backupCodes"`
}

// Status summarizes the configuration without exposing secrets.
type Status struct {
	Configured           bool       `json:"configured"`
	Enabled              bool       `json:"enabled"`
	PendingSetup         bool       `json:"pendingSetup"`
	BackupCodesRemaining int        `json:"backupCodesRemaining"`
	EnabledAt            *time.Time `json:"enabledAt,omitempty"`
}

// Authorization is the outcome of a successful Authorize call.
type Authorization struct {
	Validated bool
	Method    string
}
