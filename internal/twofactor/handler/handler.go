package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"credtrust/internal/twofactor/models"
	dErrors "credtrust/pkg/domain-errors"
	"credtrust/pkg/platform/httputil"
	"credtrust/pkg/requestcontext"
)

// Service defines the interface for second-factor management.
type Service interface {
	Setup(ctx context.Context, label string) (*models.SetupResult, error)
	Enable(ctx context.Context, code string) error
	Disable(ctx context.Context, code string) error
	Verify(ctx context.Context, code string) error
	RegenerateBackupCodes(ctx context.Context, code string) ([]string, error)
	Status(ctx context.Context) (*models.Status, error)
}

// Handler serves the /2fa endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the two-factor routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/2fa", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Post("/setup", h.handleSetup)
		r.Post("/enable", h.handleEnable)
		r.Post("/disable", h.handleDisable)
		r.Post("/verify", h.handleVerify)
		r.Post("/backup-codes", h.handleRegenerateBackupCodes)
	})
}

func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SetupRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.service.Setup(ctx, req.Label)
	if err != nil {
		h.fail(ctx, w, "two-factor setup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleEnable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CodeRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	if err := h.service.Enable(ctx, req.Code); err != nil {
		h.fail(ctx, w, "two-factor enable failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Two-factor authentication enabled"})
}

func (h *Handler) handleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CodeRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	if err := h.service.Disable(ctx, req.Code); err != nil {
		h.fail(ctx, w, "two-factor disable failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Two-factor authentication disabled"})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CodeRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	if err := h.service.Verify(ctx, req.Code); err != nil {
		h.fail(ctx, w, "two-factor verification failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{Valid: true})
}

func (h *Handler) handleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CodeRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	codes, err := h.service.RegenerateBackupCodes(ctx, req.Code)
	if err != nil {
		h.fail(ctx, w, "backup code regeneration failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.service.Status(ctx)
	if err != nil {
		h.fail(ctx, w, "two-factor status failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
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
