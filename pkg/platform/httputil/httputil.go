package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "credtrust/pkg/domain-errors"
)

// ErrorResponse is the envelope for every non-2xx response. Error is always a
// machine-checkable key.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON encodes response with the given status.
func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding failure cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
// Internal errors never leak their message to the caller.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := ErrorResponse{Error: string(domainErr.Code)}
		if domainErr.Code != dErrors.CodeInternal && domainErr.Message != "" {
			response.ErrorDescription = domainErr.Message
		}
		WriteJSON(w, StatusForCode(domainErr.Code), response)
		return
	}

	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: string(dErrors.CodeInternal)})
}

// StatusForCode translates domain error codes to HTTP status codes.
func StatusForCode(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeTwoFactorRequired:
		return http.StatusBadRequest
	case dErrors.CodeAlreadyRevoked, dErrors.CodeCredentialRevoked:
		// Revocation conflicts are reported as 400 so existing wallet UIs keep working.
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized, dErrors.CodeInvalidTwoFactor:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
