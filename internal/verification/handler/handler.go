package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"credtrust/internal/verification/models"
	dErrors "credtrust/pkg/domain-errors"
	"credtrust/pkg/platform/httputil"
	"credtrust/pkg/requestcontext"
)

// Service runs the verification pipeline.
type Service interface {
	Verify(ctx context.Context, req models.Request) (*models.Result, error)
}

type VerifyRequest struct {
	VC             json.RawMessage `json:"vc"`
	VP             json.RawMessage `json:"vp"`
	ContentAddress string          `json:"contentAddress"`
}

func (r *VerifyRequest) Normalize() {
	r.ContentAddress = strings.TrimSpace(r.ContentAddress)
	if isNull(r.VC) {
		r.VC = nil
	}
	if isNull(r.VP) {
		r.VP = nil
	}
}

func (r *VerifyRequest) Validate() error {
	if r.VC == nil && r.VP == nil {
		return dErrors.New(dErrors.CodeValidation, "vc or vp is required")
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/verify", h.handleVerify)
}

// handleVerify always answers 200 once the document parses; the verdict is in the body.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[VerifyRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.service.Verify(ctx, models.Request{
		Credential:     req.VC,
		Presentation:   req.VP,
		ContentAddress: req.ContentAddress,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "verification rejected",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
