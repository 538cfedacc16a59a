package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"credtrust/internal/credential/models"
	dErrors "credtrust/pkg/domain-errors"
	"credtrust/pkg/platform/httputil"
	"credtrust/pkg/requestcontext"
)

// Service defines the credential lifecycle operations exposed over HTTP.
type Service interface {
	Issue(ctx context.Context, req models.IssueRequest) (*models.IssueResult, error)
	FindByID(ctx context.Context, idOrSuffix string) (*models.CredentialRecord, error)
	Revoke(ctx context.Context, req models.RevokeRequest) (*models.RevokeResult, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.CredentialRecord, error)
}

// Handler serves issuance, status, listing and revocation.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the credential routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/issue", h.handleIssue)
	r.Post("/revoke", h.handleRevoke)
	r.Get("/status/{credentialId}", h.handleStatus)
	r.Get("/credentials", h.handleList)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RevokeRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.service.Revoke(ctx, models.RevokeRequest{
		CredentialID:  req.CredentialID,
		Reason:        req.Reason,
		TwoFactorCode: req.TwoFA,
	})
	if err != nil {
		var already *models.AlreadyRevokedError
		if errors.As(err, &already) {
			h.logger.WarnContext(ctx, "revocation of revoked credential",
				"credential_id", already.CredentialID,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteJSON(w, http.StatusBadRequest, AlreadyRevokedResponse{
				Error:            string(dErrors.CodeAlreadyRevoked),
				ErrorDescription: "Credential is already revoked",
				RevokedAt:        already.RevokedAt,
				Reason:           already.Reason,
			})
			return
		}
		h.fail(ctx, w, "revocation failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, RevokeResponse{
		Success:        true,
		RevokedAt:      res.Record.RevokedAt,
		Reason:         res.Record.RevocationReason,
		TwoFAValidated: res.TwoFAValidated,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, err := h.service.FindByID(ctx, chi.URLParam(r, "credentialId"))
	if err != nil {
		h.fail(ctx, w, "status lookup failed", err)
		return
	}

	res := StatusResponse{CredentialID: record.ID, Status: record.Status()}
	if record.Revoked {
		res.RevokedAt = record.RevokedAt
		res.Reason = record.RevocationReason
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[IssueRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.service.Issue(ctx, req.toModel())
	if err != nil {
		h.fail(ctx, w, "issuance failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter, err := parseListFilter(q.Get("holderId"), q.Get("type"), q.Get("revoked"))
	if err != nil {
		h.fail(ctx, w, "invalid credential filter", err)
		return
	}

	records, err := h.service.List(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "credential listing failed", err)
		return
	}

	res := ListResponse{Credentials: make([]CredentialSummary, 0, len(records))}
	for _, record := range records {
		res.Credentials = append(res.Credentials, summarize(record))
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}
