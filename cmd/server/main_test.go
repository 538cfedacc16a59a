package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"credtrust/internal/platform/config"
)

func TestWarnUnprotectedRevocation(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	warnUnprotectedRevocation(log, config.TwoFactor{AllowUnprotectedRevocation: false})
	assert.Empty(t, buf.String())

	warnUnprotectedRevocation(log, config.TwoFactor{AllowUnprotectedRevocation: true})
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), "unprotected revocation is enabled")
}
