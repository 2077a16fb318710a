package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"custodian/internal/audit"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/httputil"
	"custodian/pkg/requestcontext"
)

// Service defines the interface for ledger queries.
type Service interface {
	ListByTarget(ctx context.Context, target string) ([]*audit.Entry, error)
	ListByOwner(ctx context.Context, ownerUserID id.UserID) ([]*audit.Entry, error)
	ListRecent(ctx context.Context, limit int) ([]*audit.Entry, error)
}

// Handler wires ledger read endpoints to the audit service. The ledger has
// no write endpoints; entries are only ever appended by the engine itself.
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

// Register mounts audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.HandleList)
	r.Get("/audit/actions/{actionID}", h.HandleListForAction)
	r.Get("/audit/assets/{assetID}", h.HandleListForAsset)
}

// EntryResponse is one ledger entry on the wire.
type EntryResponse struct {
	ID             string         `json:"id"`
	EventType      string         `json:"event_type"`
	ActorEmail     string         `json:"actor_email"`
	TargetResource string         `json:"target_resource"`
	Timestamp      time.Time      `json:"timestamp"`
	RequestID      string         `json:"request_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ListResponse is the HTTP response for all ledger list endpoints.
type ListResponse struct {
	Entries []EntryResponse `json:"entries"`
}

func toListResponse(entries []*audit.Entry) ListResponse {
	resp := ListResponse{Entries: make([]EntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, EntryResponse{
			ID:             e.ID.String(),
			EventType:      e.EventType,
			ActorEmail:     e.ActorEmail,
			TargetResource: e.TargetResource,
			Timestamp:      e.Timestamp,
			RequestID:      e.RequestID,
			Metadata:       e.Metadata,
		})
	}
	return resp
}

// HandleList handles GET /audit requests: the caller's own trail, or the
// most recent entries when limit is given.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := requestcontext.UserID(ctx)
	if userID == (id.UserID{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		entries, err := h.service.ListRecent(ctx, min(limit, 500))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toListResponse(entries))
		return
	}

	entries, err := h.service.ListByOwner(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(entries))
}

// HandleListForAction handles GET /audit/actions/{actionID} requests.
func (h *Handler) HandleListForAction(w http.ResponseWriter, r *http.Request) {
	actionID, err := id.ParseActionID(chi.URLParam(r, "actionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.listForTarget(w, r, audit.ActionResource(actionID))
}

// HandleListForAsset handles GET /audit/assets/{assetID} requests.
func (h *Handler) HandleListForAsset(w http.ResponseWriter, r *http.Request) {
	assetID, err := id.ParseAssetID(chi.URLParam(r, "assetID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.listForTarget(w, r, audit.AssetResource(assetID))
}

func (h *Handler) listForTarget(w http.ResponseWriter, r *http.Request, target string) {
	ctx := r.Context()
	entries, err := h.service.ListByTarget(ctx, target)
	if err != nil {
		h.logger.ErrorContext(ctx, "ledger query failed",
			"request_id", requestcontext.RequestID(ctx),
			"target", target,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(entries))
}
