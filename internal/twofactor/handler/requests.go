package handler

import (
	"strings"

	"credtrust/pkg/platform/validation"
	tags "credtrust/pkg/validation"
)

type SetupRequest struct {
	Label string `json:"label"`
}

func (r *SetupRequest) Normalize() {
	r.Label = strings.TrimSpace(r.Label)
}

func (r *SetupRequest) Validate() error {
	return validation.CheckStringLength("label", r.Label, validation.MaxLabelLength)
}

// CodeRequest carries a 6-digit TOTP code.
type CodeRequest struct {
	Code string `json:"code" validate:"required"`
}

func (r *CodeRequest) Normalize() {
	r.Code = strings.TrimSpace(r.Code)
}

func (r *CodeRequest) Validate() error {
	return validation.FirstError(
		tags.Validate(r),
		validation.CheckStringLength("code", r.Code, validation.MaxTwoFactorCodeLen),
	)
}

type VerifyResponse struct {
	Valid bool `json:"valid"`
}

type BackupCodesResponse struct {
	BackupCodes []string `json:"backupCodes"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
