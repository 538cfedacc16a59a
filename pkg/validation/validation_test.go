package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "credtrust/pkg/domain-errors"
)

type sampleRequest struct {
	CredentialID string `json:"credentialId" validate:"required"`
	HolderID     string `json:"holderId,omitempty" validate:"notblank"`
	Operator     string `json:"operator" validate:"omitempty,oneof=gt gte lt lte eq"`
	Internal     string `json:"-" validate:"max=3"`
}

func TestValidate(t *testing.T) {
	valid := sampleRequest{CredentialID: "urn:uuid:1", HolderID: "did:example:h"}

	tests := []struct {
		name    string
		mutate  func(r *sampleRequest)
		message string
	}{
		{"missing required uses json name", func(r *sampleRequest) { r.CredentialID = "" }, "credentialId is required"},
		{"json options are stripped", func(r *sampleRequest) { r.HolderID = "   " }, "holderId must not be blank"},
		{"oneof lists choices", func(r *sampleRequest) { r.Operator = "ne" }, "operator must be one of [gt gte lt lte eq]"},
		{"hidden field falls back to struct name", func(r *sampleRequest) { r.Internal = "toolong" }, "Internal must be at most 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := Validate(req)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	assert.NoError(t, Validate(valid))
}

func TestErrorMessageForNonValidatorError(t *testing.T) {
	assert.Equal(t, "invalid request body", ErrorMessage(assert.AnError))
}
