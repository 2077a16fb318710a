package audit

import (
	"time"

	"github.com/google/uuid"

	id "custodian/pkg/domain"
)

// Event type tags recorded by the workflow engine. Execution outcome tags are
// derived per remediation; failures append ".failed".
const (
	EventActionCreated       = "action.created"
	EventActionApproved      = "action.approved"
	EventActionRejected      = "action.rejected"
	EventActionStatusChanged = "action.status_changed"

	EventAssetDeleted              = "asset.deleted"
	EventAssetVisibilityChanged    = "asset.visibility_changed"
	EventAssetPermissionRemoved    = "asset.permission_removed"
	EventAssetOwnershipTransferred = "asset.ownership_transferred"
)

// Entry is one immutable fact in the ledger. Entries are appended in the same
// logical operation as the state write they describe and are never updated
// or deleted; retention is an external concern.
type Entry struct {
	ID             uuid.UUID
	OwnerUserID    id.UserID
	EventType      string
	ActorEmail     string
	TargetResource string
	Timestamp      time.Time
	RequestID      string
	Metadata       map[string]any
}

// ActionResource formats the target reference for an action-scoped entry.
func ActionResource(actionID id.ActionID) string {
	return "action:" + actionID.String()
}

// AssetResource formats the target reference for an asset-scoped entry.
func AssetResource(assetID id.AssetID) string {
	return "asset:" + assetID.String()
}
