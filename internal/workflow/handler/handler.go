package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodian/internal/workflow"
	"custodian/internal/workflow/models"
	"custodian/internal/workflow/service"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/httputil"
	"custodian/pkg/requestcontext"
)

// Service defines the interface for workflow operations.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*service.CreateResult, error)
	Decide(ctx context.Context, approvalID id.ApprovalID, decision models.Decision, approverEmail string, comment string) (models.ActionStatus, error)
	GetStatus(ctx context.Context, actionID id.ActionID) (*workflow.StatusSnapshot, error)
}

// Handler wires workflow endpoints to the workflow service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a workflow handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts workflow endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/actions", h.HandleCreate)
	r.Get("/actions/{actionID}", h.HandleGetStatus)
	r.Post("/approvals/{approvalID}/decide", h.HandleDecide)
}

// CreateActionResponse is the HTTP response for POST /actions.
type CreateActionResponse struct {
	ActionID    id.ActionID     `json:"action_id"`
	ApprovalIDs []id.ApprovalID `json:"approval_ids"`
}

// HandleCreate handles POST /actions requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID := requestcontext.UserID(ctx)
	actorEmail := requestcontext.ActorEmail(ctx)
	if userID == (id.UserID{}) || actorEmail == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[*CreateActionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Create(ctx, service.CreateRequest{
		OwnerUserID:      userID,
		AssetID:          req.ParsedAssetID(),
		AssetExternalID:  req.AssetExternalID,
		Type:             req.ParsedType(),
		RequestedByEmail: actorEmail,
		ApproverEmails:   req.ApproverEmails,
		Reason:           req.Reason,
		Params:           req.ParsedParams(),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "action creation failed",
			"request_id", requestID,
			"user_id", userID,
			"action_type", req.ActionType,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "action created",
		"request_id", requestID,
		"action_id", result.ActionID,
		"action_type", req.ActionType,
		"approvers", len(result.ApprovalIDs),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusCreated, CreateActionResponse{
		ActionID:    result.ActionID,
		ApprovalIDs: result.ApprovalIDs,
	})
}

// DecideResponse is the HTTP response for POST /approvals/{approvalID}/decide.
type DecideResponse struct {
	ActionStatus models.ActionStatus `json:"action_status"`
}

// HandleDecide handles POST /approvals/{approvalID}/decide requests.
func (h *Handler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actorEmail := requestcontext.ActorEmail(ctx)
	if actorEmail == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	approvalID, err := id.ParseApprovalID(chi.URLParam(r, "approvalID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[*DecideRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	status, err := h.service.Decide(ctx, approvalID, req.ParsedDecision(), actorEmail, req.Comment)
	if err != nil {
		h.logger.ErrorContext(ctx, "decision failed",
			"request_id", requestID,
			"approval_id", approvalID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "decision recorded",
		"request_id", requestID,
		"approval_id", approvalID,
		"decision", req.Decision,
		"action_status", status,
	)

	httputil.WriteJSON(w, http.StatusOK, DecideResponse{ActionStatus: status})
}

// HandleGetStatus handles GET /actions/{actionID} requests.
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actionID, err := id.ParseActionID(chi.URLParam(r, "actionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	snapshot, err := h.service.GetStatus(ctx, actionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snapshot)
}
