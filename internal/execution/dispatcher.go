package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"custodian/internal/audit"
	"custodian/internal/execution/metrics"
	"custodian/internal/workflow"
	"custodian/internal/workflow/models"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/sentinel"
)

// Dispatcher executes approved governance actions. The sequence per action:
// atomically claim approved->executing (a single conditional update, so at
// most one caller ever reaches the platform), make the platform call while
// holding no lock, then record the outcome and its ledger entry as one unit.
// Failed is terminal: re-running a remediation requires a new action with
// fresh approvals, because platform calls are not assumed idempotent.
type Dispatcher struct {
	store    workflow.Store
	tx       workflow.StoreTx
	auditor  *audit.Service
	platform Capability
	cache    workflow.StatusCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithStatusCache(cache workflow.StatusCache) Option {
	return func(d *Dispatcher) {
		d.cache = cache
	}
}

func New(store workflow.Store, tx workflow.StoreTx, auditor *audit.Service, platform Capability, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("workflow store is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("workflow store tx is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit service is required")
	}
	if platform == nil {
		return nil, fmt.Errorf("platform capability is required")
	}
	d := &Dispatcher{
		store:    store,
		tx:       tx,
		auditor:  auditor,
		platform: platform,
		logger:   slog.Default(),
		tracer:   otel.Tracer("custodian/execution"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Outcome reports how an execution resolved. Err carries the platform's
// message when Status is failed; the dispatcher itself returned cleanly.
type Outcome struct {
	Status       models.ActionStatus
	ErrorMessage string
}

// Execute runs one approved action against the platform.
//
// Errors: CodeNotFound for an unknown action; CodeInvalidState when the
// action is not approved (including when a concurrent caller holds the
// executing claim) — in that case no platform call is made and no ledger
// entry is appended. A platform failure is not an error: it resolves the
// action to failed and is reported in the Outcome.
func (d *Dispatcher) Execute(ctx context.Context, actionID id.ActionID, creds Credentials, actorEmail string) (*Outcome, error) {
	action, err := d.store.GetAction(ctx, actionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "action not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load action")
	}
	if action.Status != models.StatusApproved {
		return nil, dErrors.New(dErrors.CodeInvalidState,
			"action is "+action.Status.String()+"; only approved actions can be executed")
	}

	// The claim. A single conditional update decides the race: the loser
	// sees ErrInvalidState and never reaches the platform.
	if err := d.store.TransitionStatus(ctx, actionID, models.StatusApproved, models.StatusExecuting); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidState, "action is already being executed")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "action not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "claim action for execution")
	}

	// Platform call: blocking network I/O, made while holding no lock so
	// unrelated actions proceed freely. No cancellation once dispatched —
	// whatever comes back (including a timeout) is the recorded outcome.
	callErr := d.dispatch(ctx, action, creds)

	now := time.Now().UTC()
	outcome := &Outcome{Status: models.StatusExecuted}
	eventType := executionEvent(action.Type)
	metadata := executionMetadata(action)
	if callErr != nil {
		outcome.Status = models.StatusFailed
		outcome.ErrorMessage = platformMessage(callErr)
		eventType += ".failed"
		metadata["error"] = outcome.ErrorMessage
	}

	err = d.tx.RunInTx(ctx, actionID, func(ctx context.Context, store workflow.Store) error {
		if err := store.RecordOutcome(ctx, actionID, outcome.Status, now, outcome.ErrorMessage); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "record execution outcome")
		}
		return d.auditor.Append(ctx, &audit.Entry{
			OwnerUserID:    action.OwnerUserID,
			EventType:      eventType,
			ActorEmail:     actorEmail,
			TargetResource: audit.AssetResource(action.AssetID),
			Metadata:       metadata,
		})
	})
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		d.cache.Invalidate(ctx, actionID)
	}
	result := "executed"
	if callErr != nil {
		result = "failed"
	}
	d.metrics.IncrementOutcome(action.Type.String(), result)
	d.logger.InfoContext(ctx, "action executed",
		"action_id", actionID,
		"action_type", action.Type,
		"result", result,
	)
	return outcome, nil
}

// dispatch maps the action to its one platform call.
func (d *Dispatcher) dispatch(ctx context.Context, action *models.GovernanceAction, creds Credentials) error {
	ctx, span := d.tracer.Start(ctx, "platform."+action.Type.String(),
		trace.WithAttributes(
			attribute.String("action.id", action.ID.String()),
			attribute.String("asset.external_id", action.AssetExternalID),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		d.metrics.ObservePlatformLatency(action.Type.String(), time.Since(start))
	}()

	switch params := action.Params.(type) {
	case models.DeleteParams:
		return d.platform.Delete(ctx, creds, action.AssetExternalID)
	case models.ChangeVisibilityParams:
		return d.platform.ChangeVisibility(ctx, creds, action.AssetExternalID, params.TargetVisibility)
	case models.RemovePermissionParams:
		return d.platform.RemovePermission(ctx, creds, action.AssetExternalID, params.PermissionID)
	case models.TransferOwnershipParams:
		return d.platform.TransferOwnership(ctx, creds, action.AssetExternalID, params.NewOwnerEmail)
	default:
		// Creation-time validation makes this unreachable.
		return NewPlatformError("unsupported action params", nil)
	}
}

func executionEvent(t models.ActionType) string {
	switch t {
	case models.ActionTypeDelete:
		return audit.EventAssetDeleted
	case models.ActionTypeChangeVisibility:
		return audit.EventAssetVisibilityChanged
	case models.ActionTypeRemovePermission:
		return audit.EventAssetPermissionRemoved
	case models.ActionTypeTransferOwnership:
		return audit.EventAssetOwnershipTransferred
	default:
		return "asset.unknown"
	}
}

func executionMetadata(action *models.GovernanceAction) map[string]any {
	metadata := map[string]any{
		"action_id":         action.ID.String(),
		"asset_external_id": action.AssetExternalID,
	}
	switch params := action.Params.(type) {
	case models.ChangeVisibilityParams:
		metadata["target_visibility"] = params.TargetVisibility.String()
	case models.RemovePermissionParams:
		metadata["permission_id"] = params.PermissionID
	case models.TransferOwnershipParams:
		metadata["new_owner_email"] = params.NewOwnerEmail
	}
	return metadata
}

func platformMessage(err error) string {
	if pe, ok := AsPlatformError(err); ok {
		return pe.Message
	}
	return err.Error()
}
