package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"custodian/internal/workflow/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

// Store keeps actions and approvals in memory for tests and local
// development. The conditional methods mirror the compare-and-set semantics
// of the postgres store exactly: callers must observe the same error
// contract regardless of backend.
type Store struct {
	mu        sync.RWMutex
	actions   map[id.ActionID]*models.GovernanceAction
	approvals map[id.ApprovalID]*models.Approval
}

func New() *Store {
	return &Store{
		actions:   make(map[id.ActionID]*models.GovernanceAction),
		approvals: make(map[id.ApprovalID]*models.Approval),
	}
}

func (s *Store) CreateAction(_ context.Context, action *models.GovernanceAction, approvals []*models.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.actions[action.ID]; exists {
		return fmt.Errorf("action %s: %w", action.ID, sentinel.ErrConflict)
	}
	s.actions[action.ID] = cloneAction(action)
	for _, a := range approvals {
		s.approvals[a.ID] = cloneApproval(a)
	}
	return nil
}

func (s *Store) GetAction(_ context.Context, actionID id.ActionID) (*models.GovernanceAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	action, ok := s.actions[actionID]
	if !ok {
		return nil, fmt.Errorf("action %s: %w", actionID, sentinel.ErrNotFound)
	}
	return cloneAction(action), nil
}

// GetActionForUpdate aliases GetAction: the sharded per-action lock in the
// service tx runner already serializes writers for this backend.
func (s *Store) GetActionForUpdate(ctx context.Context, actionID id.ActionID) (*models.GovernanceAction, error) {
	return s.GetAction(ctx, actionID)
}

func (s *Store) GetActionWithApprovals(_ context.Context, actionID id.ActionID) (*models.GovernanceAction, []*models.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	action, ok := s.actions[actionID]
	if !ok {
		return nil, nil, fmt.Errorf("action %s: %w", actionID, sentinel.ErrNotFound)
	}
	var approvals []*models.Approval
	for _, a := range s.approvals {
		if a.ActionID == actionID {
			approvals = append(approvals, cloneApproval(a))
		}
	}
	return cloneAction(action), approvals, nil
}

func (s *Store) GetApproval(_ context.Context, approvalID id.ApprovalID) (*models.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	approval, ok := s.approvals[approvalID]
	if !ok {
		return nil, fmt.Errorf("approval %s: %w", approvalID, sentinel.ErrNotFound)
	}
	return cloneApproval(approval), nil
}

func (s *Store) RecordDecision(_ context.Context, approvalID id.ApprovalID, decision models.Decision, comment string, respondedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	approval, ok := s.approvals[approvalID]
	if !ok {
		return fmt.Errorf("approval %s: %w", approvalID, sentinel.ErrNotFound)
	}
	if approval.Decision != models.DecisionPending {
		return fmt.Errorf("approval %s: %w", approvalID, sentinel.ErrAlreadyDecided)
	}
	approval.Decision = decision
	approval.Comment = comment
	t := respondedAt
	approval.RespondedAt = &t
	return nil
}

func (s *Store) TransitionStatus(_ context.Context, actionID id.ActionID, from, to models.ActionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[actionID]
	if !ok {
		return fmt.Errorf("action %s: %w", actionID, sentinel.ErrNotFound)
	}
	if action.Status != from {
		return fmt.Errorf("action %s is %s, not %s: %w", actionID, action.Status, from, sentinel.ErrInvalidState)
	}
	action.Status = to
	action.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) RecordOutcome(_ context.Context, actionID id.ActionID, status models.ActionStatus, executedAt time.Time, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[actionID]
	if !ok {
		return fmt.Errorf("action %s: %w", actionID, sentinel.ErrNotFound)
	}
	if action.Status != models.StatusExecuting {
		return fmt.Errorf("action %s is %s, not executing: %w", actionID, action.Status, sentinel.ErrInvalidState)
	}
	action.Status = status
	t := executedAt
	action.ExecutedAt = &t
	action.ErrorMessage = errorMessage
	action.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListStalledExecuting(_ context.Context, cutoff time.Time) ([]*models.GovernanceAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.GovernanceAction
	for _, a := range s.actions {
		if a.Status == models.StatusExecuting && a.UpdatedAt.Before(cutoff) {
			out = append(out, cloneAction(a))
		}
	}
	return out, nil
}

func cloneAction(a *models.GovernanceAction) *models.GovernanceAction {
	c := *a
	if a.ExecutedAt != nil {
		t := *a.ExecutedAt
		c.ExecutedAt = &t
	}
	return &c
}

func cloneApproval(a *models.Approval) *models.Approval {
	c := *a
	if a.RespondedAt != nil {
		t := *a.RespondedAt
		c.RespondedAt = &t
	}
	return &c
}
