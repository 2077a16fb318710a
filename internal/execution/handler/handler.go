package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"custodian/internal/execution"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/httputil"
	"custodian/pkg/requestcontext"
)

// Service defines the interface for execution operations.
type Service interface {
	Execute(ctx context.Context, actionID id.ActionID, creds execution.Credentials, actorEmail string) (*execution.Outcome, error)
}

// Handler wires the execute endpoint to the dispatcher.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts execution endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/actions/{actionID}/execute", h.HandleExecute)
}

// ExecuteRequest is the HTTP request body for POST /actions/{actionID}/execute.
// The platform token is supplied per call; the engine never stores it.
type ExecuteRequest struct {
	PlatformAccessToken string `json:"platform_access_token"`
}

// Validate validates the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *ExecuteRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if strings.TrimSpace(r.PlatformAccessToken) == "" {
		return dErrors.New(dErrors.CodeValidation, "platform_access_token is required")
	}
	return nil
}

// ExecuteResponse is the HTTP response for POST /actions/{actionID}/execute.
type ExecuteResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HandleExecute handles POST /actions/{actionID}/execute requests.
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	actorEmail := requestcontext.ActorEmail(ctx)
	if actorEmail == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	actionID, err := id.ParseActionID(chi.URLParam(r, "actionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[*ExecuteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	outcome, err := h.service.Execute(ctx, actionID, execution.Credentials{
		AccessToken: req.PlatformAccessToken,
	}, actorEmail)
	if err != nil {
		h.logger.ErrorContext(ctx, "execution rejected",
			"request_id", requestID,
			"action_id", actionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "execution finished",
		"request_id", requestID,
		"action_id", actionID,
		"status", outcome.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, ExecuteResponse{
		Status: outcome.Status.String(),
		Error:  outcome.ErrorMessage,
	})
}
