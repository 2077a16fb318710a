package workflow

import (
	"context"
	"time"

	"custodian/internal/workflow/models"
	id "custodian/pkg/domain"
)

// StatusSnapshot is the read model for the polling surface: the action's
// current status plus the per-approver breakdown.
type StatusSnapshot struct {
	ActionID         id.ActionID         `json:"action_id"`
	AssetID          id.AssetID          `json:"asset_id"`
	Type             models.ActionType   `json:"action_type"`
	Status           models.ActionStatus `json:"status"`
	RequestedByEmail string              `json:"requested_by_email"`
	Reason           string              `json:"reason"`
	CreatedAt        time.Time           `json:"created_at"`
	ExecutedAt       *time.Time          `json:"executed_at,omitempty"`
	ErrorMessage     string              `json:"error_message,omitempty"`
	Approvals        []ApprovalStatus    `json:"approvals"`
}

// ApprovalStatus is one approver's row in the breakdown.
type ApprovalStatus struct {
	ApprovalID    id.ApprovalID   `json:"approval_id"`
	ApproverEmail string          `json:"approver_email"`
	Decision      models.Decision `json:"decision"`
	Comment       string          `json:"comment,omitempty"`
	RespondedAt   *time.Time      `json:"responded_at,omitempty"`
}

// StatusCache is an optional read-through cache in front of GetStatus.
// Implementations must be safe to skip entirely: a nil cache or a cache
// error never fails the read path.
type StatusCache interface {
	Get(ctx context.Context, actionID id.ActionID) (*StatusSnapshot, bool)
	Set(ctx context.Context, snapshot *StatusSnapshot)
	Invalidate(ctx context.Context, actionID id.ActionID)
}
