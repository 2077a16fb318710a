package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"custodian/internal/audit"
	"custodian/internal/workflow"
	"custodian/internal/workflow/metrics"
	"custodian/internal/workflow/models"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/sentinel"
	platformstrings "custodian/pkg/platform/strings"
)

// Service orchestrates governance actions: creation with their approval
// sets, decision recording with consensus evaluation, and the status read
// model. Every state write goes through the per-action StoreTx so the
// decision write, the consensus transition, and the ledger entries commit or
// fail as one unit.
type Service struct {
	store   workflow.Store
	tx      workflow.StoreTx
	auditor *audit.Service
	cache   workflow.StatusCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithStatusCache(cache workflow.StatusCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func New(store workflow.Store, tx workflow.StoreTx, auditor *audit.Service, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("workflow store is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("workflow store tx is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit service is required")
	}
	svc := &Service{
		store:   store,
		tx:      tx,
		auditor: auditor,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateRequest carries everything needed to propose a remediation.
type CreateRequest struct {
	OwnerUserID      id.UserID
	AssetID          id.AssetID
	AssetExternalID  string
	Type             models.ActionType
	RequestedByEmail string
	ApproverEmails   []string
	Reason           string
	Params           models.ActionParams
}

// CreateResult returns the identifiers the caller needs for polling.
type CreateResult struct {
	ActionID    id.ActionID
	ApprovalIDs []id.ApprovalID
}

// Create validates the proposal, persists the action with one pending
// approval per approver, and records the action.created ledger entry — all
// atomically. No platform call is made here.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	action := &models.GovernanceAction{
		ID:               id.NewActionID(),
		OwnerUserID:      req.OwnerUserID,
		AssetID:          req.AssetID,
		AssetExternalID:  req.AssetExternalID,
		Type:             req.Type,
		Status:           models.StatusPending,
		RequestedByEmail: req.RequestedByEmail,
		Reason:           req.Reason,
		Params:           req.Params,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	approvers := platformstrings.DedupeAndTrimLower(req.ApproverEmails)
	approvals := make([]*models.Approval, 0, len(approvers))
	approvalIDs := make([]id.ApprovalID, 0, len(approvers))
	for _, email := range approvers {
		approval := &models.Approval{
			ID:            id.NewApprovalID(),
			ActionID:      action.ID,
			ApproverEmail: email,
			Decision:      models.DecisionPending,
		}
		approvals = append(approvals, approval)
		approvalIDs = append(approvalIDs, approval.ID)
	}

	err := s.tx.RunInTx(ctx, action.ID, func(ctx context.Context, store workflow.Store) error {
		if err := store.CreateAction(ctx, action, approvals); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create governance action")
		}
		return s.auditor.Append(ctx, &audit.Entry{
			OwnerUserID:    action.OwnerUserID,
			EventType:      audit.EventActionCreated,
			ActorEmail:     action.RequestedByEmail,
			TargetResource: audit.ActionResource(action.ID),
			Metadata: map[string]any{
				"asset_id":    action.AssetID.String(),
				"action_type": action.Type.String(),
				"approvers":   approvers,
				"reason":      action.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementCreated(action.Type.String())
	s.logger.InfoContext(ctx, "governance action created",
		"action_id", action.ID,
		"action_type", action.Type,
		"asset_id", action.AssetID,
		"approvers", len(approvers),
	)
	return &CreateResult{ActionID: action.ID, ApprovalIDs: approvalIDs}, nil
}

func validateCreate(req CreateRequest) error {
	if !req.Type.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unsupported action type")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if strings.TrimSpace(req.RequestedByEmail) == "" {
		return dErrors.New(dErrors.CodeValidation, "requested_by_email is required")
	}
	if req.OwnerUserID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "owner_user_id is required")
	}
	if req.AssetID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "asset_id is required")
	}
	if strings.TrimSpace(req.AssetExternalID) == "" {
		return dErrors.New(dErrors.CodeValidation, "asset_external_id is required")
	}
	// An action with no approvers has no ballots and could never leave
	// pending; self-service remediation lists the requester as sole approver.
	if len(platformstrings.DedupeAndTrimLower(req.ApproverEmails)) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one approver is required")
	}
	for _, email := range req.ApproverEmails {
		if !strings.Contains(email, "@") {
			return dErrors.New(dErrors.CodeValidation, "invalid approver email: "+email)
		}
	}
	if req.Params == nil {
		return dErrors.New(dErrors.CodeValidation, "action params are required")
	}
	if req.Params.ActionType() != req.Type {
		return dErrors.New(dErrors.CodeValidation, "params do not match action type")
	}
	return req.Params.Validate()
}

// Decide records one approver's ballot and re-evaluates consensus over the
// full approval set, all inside the per-action transaction. Rejection is
// sticky: the pending-guarded transition means a later approval can never
// revert a rejected action. Returns the action's resulting status so the
// caller can branch.
func (s *Service) Decide(ctx context.Context, approvalID id.ApprovalID, decision models.Decision, approverEmail string, comment string) (models.ActionStatus, error) {
	start := time.Now()

	switch decision {
	case models.DecisionApproved, models.DecisionRejected:
	default:
		return "", dErrors.New(dErrors.CodeValidation, "decision must be approved or rejected")
	}

	// Locate the parent action before entering its transaction scope.
	approval, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return "", translateStoreErr(err, "approval")
	}
	if !strings.EqualFold(approval.ApproverEmail, approverEmail) {
		return "", dErrors.New(dErrors.CodeForbidden, "approval does not belong to this approver")
	}

	var resulting models.ActionStatus
	err = s.tx.RunInTx(ctx, approval.ActionID, func(ctx context.Context, store workflow.Store) error {
		// Lock the parent first: consensus is read-the-set-then-write-the-
		// parent and must not interleave with another ballot on this action.
		action, err := store.GetActionForUpdate(ctx, approval.ActionID)
		if err != nil {
			return translateStoreErr(err, "action")
		}
		if action.Status != models.StatusPending {
			return dErrors.New(dErrors.CodeInvalidState,
				"action is "+action.Status.String()+"; decisions are only accepted while pending")
		}

		now := time.Now().UTC()
		if err := store.RecordDecision(ctx, approvalID, decision, comment, now); err != nil {
			return translateStoreErr(err, "approval")
		}

		ballotEvent := audit.EventActionApproved
		if decision == models.DecisionRejected {
			ballotEvent = audit.EventActionRejected
		}
		if err := s.auditor.Append(ctx, &audit.Entry{
			OwnerUserID:    action.OwnerUserID,
			EventType:      ballotEvent,
			ActorEmail:     approval.ApproverEmail,
			TargetResource: audit.ActionResource(action.ID),
			Metadata: map[string]any{
				"approval_id": approvalID.String(),
				"comment":     comment,
			},
		}); err != nil {
			return err
		}

		_, approvals, err := store.GetActionWithApprovals(ctx, action.ID)
		if err != nil {
			return translateStoreErr(err, "action")
		}

		resulting = models.StatusPending
		switch models.EvaluateConsensus(approvals) {
		case models.ConsensusRejected:
			resulting = models.StatusRejected
		case models.ConsensusApproved:
			resulting = models.StatusApproved
		default:
			return nil
		}

		if err := store.TransitionStatus(ctx, action.ID, models.StatusPending, resulting); err != nil {
			return translateStoreErr(err, "action")
		}
		s.metrics.IncrementTransition(resulting.String())
		return s.auditor.Append(ctx, &audit.Entry{
			OwnerUserID:    action.OwnerUserID,
			EventType:      audit.EventActionStatusChanged,
			ActorEmail:     approval.ApproverEmail,
			TargetResource: audit.ActionResource(action.ID),
			Metadata: map[string]any{
				"old": models.StatusPending.String(),
				"new": resulting.String(),
			},
		})
	})
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, approval.ActionID)
	}
	s.metrics.ObserveDecideLatency(time.Since(start))
	s.logger.InfoContext(ctx, "decision recorded",
		"approval_id", approvalID,
		"action_id", approval.ActionID,
		"decision", decision,
		"action_status", resulting,
	)
	return resulting, nil
}

// GetStatus returns the action's status plus the per-approver breakdown,
// read through the optional cache for the polling surface.
func (s *Service) GetStatus(ctx context.Context, actionID id.ActionID) (*workflow.StatusSnapshot, error) {
	if s.cache != nil {
		if snapshot, ok := s.cache.Get(ctx, actionID); ok {
			return snapshot, nil
		}
	}

	action, approvals, err := s.store.GetActionWithApprovals(ctx, actionID)
	if err != nil {
		return nil, translateStoreErr(err, "action")
	}

	snapshot := &workflow.StatusSnapshot{
		ActionID:         action.ID,
		AssetID:          action.AssetID,
		Type:             action.Type,
		Status:           action.Status,
		RequestedByEmail: action.RequestedByEmail,
		Reason:           action.Reason,
		CreatedAt:        action.CreatedAt,
		ExecutedAt:       action.ExecutedAt,
		ErrorMessage:     action.ErrorMessage,
		Approvals:        make([]workflow.ApprovalStatus, 0, len(approvals)),
	}
	for _, a := range approvals {
		snapshot.Approvals = append(snapshot.Approvals, workflow.ApprovalStatus{
			ApprovalID:    a.ID,
			ApproverEmail: a.ApproverEmail,
			Decision:      a.Decision,
			Comment:       a.Comment,
			RespondedAt:   a.RespondedAt,
		})
	}

	if s.cache != nil {
		s.cache.Set(ctx, snapshot)
	}
	return snapshot, nil
}

// RecoverStalled fails actions stuck in the executing claim since before
// olderThan ago. A crash between claiming and recording the outcome would
// otherwise strand an action in executing forever; the true platform-side
// outcome is unknown, so failing it keeps the ledger honest.
func (s *Service) RecoverStalled(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	stalled, err := s.store.ListStalledExecuting(ctx, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "list stalled actions")
	}

	recovered := 0
	for _, action := range stalled {
		err := s.tx.RunInTx(ctx, action.ID, func(ctx context.Context, store workflow.Store) error {
			now := time.Now().UTC()
			if err := store.RecordOutcome(ctx, action.ID, models.StatusFailed, now, "execution interrupted: outcome unknown"); err != nil {
				// Another writer finished it in the meantime.
				if dErrors.HasCode(translateStoreErr(err, "action"), dErrors.CodeInvalidState) {
					return nil
				}
				return translateStoreErr(err, "action")
			}
			return s.auditor.Append(ctx, &audit.Entry{
				OwnerUserID:    action.OwnerUserID,
				EventType:      audit.EventActionStatusChanged,
				ActorEmail:     "system",
				TargetResource: audit.ActionResource(action.ID),
				Metadata: map[string]any{
					"old":    models.StatusExecuting.String(),
					"new":    models.StatusFailed.String(),
					"reason": "stalled execution recovered",
				},
			})
		})
		if err != nil {
			return recovered, err
		}
		if s.cache != nil {
			s.cache.Invalidate(ctx, action.ID)
		}
		recovered++
		s.logger.WarnContext(ctx, "stalled execution recovered",
			"action_id", action.ID,
		)
	}
	return recovered, nil
}

// translateStoreErr converts store sentinel errors into coded domain errors.
func translateStoreErr(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, entity+" not found")
	case errors.Is(err, sentinel.ErrAlreadyDecided):
		return dErrors.Wrap(err, dErrors.CodeConflict, "approval already carries a decision")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, entity+" is not in the required status")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, entity+" write conflict")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, entity+" store failure")
	}
}
