package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"credtrust/internal/presentation/models"
	dErrors "credtrust/pkg/domain-errors"
	"credtrust/pkg/platform/httputil"
	"credtrust/pkg/platform/validation"
	"credtrust/pkg/requestcontext"
	tags "credtrust/pkg/validation"
)

// Service builds presentations.
type Service interface {
	Present(ctx context.Context, req models.PresentRequest) (*models.PresentResult, error)
}

type PresentRequest struct {
	CredentialID string                      `json:"credentialId" validate:"required"`
	HolderID     string                      `json:"holderId" validate:"required"`
	Fields       []string                    `json:"fields"`
	Predicates   map[string]models.Predicate `json:"predicates"`
}

func (r *PresentRequest) Normalize() {
	r.CredentialID = strings.TrimSpace(r.CredentialID)
	r.HolderID = strings.TrimSpace(r.HolderID)
}

func (r *PresentRequest) toModel() models.PresentRequest {
	m := models.PresentRequest{
		CredentialID: r.CredentialID,
		HolderID:     r.HolderID,
		Fields:       r.Fields,
		Predicates:   r.Predicates,
	}
	m.Normalize()
	return m
}

func (r *PresentRequest) Validate() error {
	if err := validation.FirstError(
		tags.Validate(r),
		validation.CheckStringLength("holderId", r.HolderID, validation.MaxHolderIDLength),
		validation.CheckSliceCount("fields", len(r.Fields), validation.MaxDisclosedFields),
		validation.CheckEachStringLength("field path", r.Fields, validation.MaxFieldPathLength),
		validation.CheckSliceCount("predicates", len(r.Predicates), validation.MaxPredicates),
	); err != nil {
		return err
	}
	for path, pred := range r.Predicates {
		if err := validation.CheckStringLength("predicate path", path, validation.MaxFieldPathLength); err != nil {
			return err
		}
		if !pred.Operator.Valid() {
			return dErrors.New(dErrors.CodeValidation, "unsupported predicate operator for "+path)
		}
	}
	return nil
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/present", h.handlePresent)
}

func (h *Handler) handlePresent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[PresentRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.service.Present(ctx, req.toModel())
	if err != nil {
		level := slog.LevelWarn
		if code := dErrors.CodeOf(err); code == dErrors.CodeInternal || code == dErrors.CodeUpstreamUnavailable {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, "presentation failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
