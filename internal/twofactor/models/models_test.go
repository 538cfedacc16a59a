package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := &Config{IssuerID: "did:example:university"}
	assert.False(t, cfg.IsConfigured())

	cfg.BeginSetup("SECRET", []string{"d1", "d2"}, now)
	assert.True(t, cfg.HasPendingSetup())
	assert.False(t, cfg.IsConfigured(), "pending secret is not configured")
	assert.Equal(t, now, cfg.CreatedAt)

	later := now.Add(time.Minute)
	cfg.Enable(later)
	assert.True(t, cfg.IsConfigured())
	assert.False(t, cfg.HasPendingSetup())
	assert.Equal(t, []string{"d1", "d2"}, cfg.BackupCodes)
	require.NotNil(t, cfg.EnabledAt)
	assert.Equal(t, later, *cfg.EnabledAt)

	cfg.Disable(later.Add(time.Minute))
	assert.False(t, cfg.IsConfigured())
	assert.Empty(t, cfg.Secret)
	assert.Empty(t, cfg.BackupCodes)
	assert.Nil(t, cfg.EnabledAt)
	assert.Equal(t, now, cfg.CreatedAt)
}

func TestSecretWithoutEnabledIsNotConfigured(t *testing.T) {
	assert.False(t, (&Config{Secret: "S"}).IsConfigured())
	assert.False(t, (&Config{Enabled: true}).IsConfigured())
	assert.False(t, (*Config)(nil).IsConfigured())
}

func TestClone(t *testing.T) {
	at := time.Now()
	cfg := &Config{BackupCodes: []string{"a"}, EnabledAt: &at}
	cp := cfg.Clone()
	cp.BackupCodes[0] = "b"
	*cp.EnabledAt = at.Add(time.Hour)

	assert.Equal(t, "a", cfg.BackupCodes[0])
	assert.Equal(t, at, *cfg.EnabledAt)
}
