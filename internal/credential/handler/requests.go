package handler

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"credtrust/internal/credential/models"
	dErrors "credtrust/pkg/domain-errors"
	strutil "credtrust/pkg/platform/strings"
	"credtrust/pkg/platform/validation"
	tags "credtrust/pkg/validation"
)

type RevokeRequest struct {
	CredentialID string `json:"credentialId" validate:"required"`
	TwoFA        string `json:"twoFA"`
	Reason       string `json:"reason"`
}

func (r *RevokeRequest) Normalize() {
	r.CredentialID = strings.TrimSpace(r.CredentialID)
	r.TwoFA = strings.TrimSpace(r.TwoFA)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *RevokeRequest) Validate() error {
	return validation.FirstError(
		tags.Validate(r),
		validation.CheckStringLength("credentialId", r.CredentialID, validation.MaxCredentialIDLength),
		validation.CheckStringLength("reason", r.Reason, validation.MaxReasonLength),
		validation.CheckStringLength("twoFA", r.TwoFA, validation.MaxTwoFactorCodeLen),
	)
}

type RevokeResponse struct {
	Success        bool       `json:"success"`
	RevokedAt      *time.Time `json:"revokedAt"`
	Reason         string     `json:"reason"`
	TwoFAValidated bool       `json:"twoFAValidated"`
}

// AlreadyRevokedResponse extends the error envelope with the terminal state.
type AlreadyRevokedResponse struct {
	Error            string     `json:"error"`
	ErrorDescription string     `json:"error_description,omitempty"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	Reason           string     `json:"reason,omitempty"`
}

type StatusResponse struct {
	CredentialID string        `json:"credentialId"`
	Status       models.Status `json:"status"`
	RevokedAt    *time.Time    `json:"revokedAt,omitempty"`
	Reason       string        `json:"reason,omitempty"`
}

// IssueRequest accepts "type" as a single string or a list.
type IssueRequest struct {
	HolderID          string          `json:"holderId" validate:"required"`
	Type              json.RawMessage `json:"type"`
	CredentialSubject map[string]any  `json:"credentialSubject" validate:"required"`
	ContentAddress    string          `json:"contentAddress"`

	types []string
}

func (r *IssueRequest) Normalize() {
	r.HolderID = strings.TrimSpace(r.HolderID)
	r.ContentAddress = strings.TrimSpace(r.ContentAddress)
}

func (r *IssueRequest) Validate() error {
	if err := validation.FirstError(
		tags.Validate(r),
		validation.CheckStringLength("holderId", r.HolderID, validation.MaxHolderIDLength),
	); err != nil {
		return err
	}
	types, err := parseTypes(r.Type)
	if err != nil {
		return err
	}
	if err := validation.CheckSliceCount("types", len(types), validation.MaxCredentialTypes); err != nil {
		return err
	}
	r.types = types
	return nil
}

func (r *IssueRequest) toModel() models.IssueRequest {
	return models.IssueRequest{
		HolderID:          r.HolderID,
		Types:             r.types,
		CredentialSubject: r.CredentialSubject,
		ContentAddress:    r.ContentAddress,
	}
}

func parseTypes(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strutil.DedupeAndTrim([]string{single}), nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "type must be a string or a list of strings")
	}
	return strutil.DedupeAndTrim(many), nil
}

type CredentialSummary struct {
	CredentialID   string          `json:"credentialId"`
	HolderID       string          `json:"holderId"`
	IssuerID       string          `json:"issuerId"`
	Types          []string        `json:"type"`
	ContentAddress string          `json:"contentAddress,omitempty"`
	Status         models.Status   `json:"status"`
	IssuedAt       time.Time       `json:"issuedAt"`
	RevokedAt      *time.Time      `json:"revokedAt,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Credential     json.RawMessage `json:"credential,omitempty"`
}

type ListResponse struct {
	Credentials []CredentialSummary `json:"credentials"`
}

func summarize(record *models.CredentialRecord) CredentialSummary {
	return CredentialSummary{
		CredentialID:   record.ID,
		HolderID:       record.HolderID,
		IssuerID:       record.IssuerID,
		Types:          record.Types,
		ContentAddress: record.ContentAddress,
		Status:         record.Status(),
		IssuedAt:       record.IssuedAt,
		RevokedAt:      record.RevokedAt,
		Reason:         record.RevocationReason,
		Credential:     record.Payload,
	}
}

func parseListFilter(holderID, credentialType, revoked string) (models.ListFilter, error) {
	filter := models.ListFilter{
		HolderID: strings.TrimSpace(holderID),
		Type:     strings.TrimSpace(credentialType),
	}
	if revoked = strings.TrimSpace(revoked); revoked != "" {
		v, err := strconv.ParseBool(revoked)
		if err != nil {
			return filter, dErrors.New(dErrors.CodeValidation, "revoked must be true or false")
		}
		filter.Revoked = &v
	}
	return filter, nil
}
