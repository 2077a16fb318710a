// Package workflow owns the governance action and approval entities: the
// consensus state machine over approvals and the persistence contract both
// the orchestrator and the execution dispatcher depend on.
package workflow

import (
	"context"
	"time"

	"custodian/internal/workflow/models"
	id "custodian/pkg/domain"
)

// Store is the persistence contract for actions and their approval sets.
//
// Error contract (sentinel errors, translated by services):
//   - ErrNotFound: the referenced action/approval does not exist
//   - ErrAlreadyDecided: RecordDecision on a non-pending approval
//   - ErrInvalidState: a conditional transition found the row in a different
//     status than required (lost the race or illegal edge)
//
// Conditional methods are the engine's serialization points: they must be
// atomic compare-and-set operations so at most one caller wins any
// transition out of a given status.
type Store interface {
	// CreateAction inserts the action and its pending approval set.
	CreateAction(ctx context.Context, action *models.GovernanceAction, approvals []*models.Approval) error

	// GetAction loads one action.
	GetAction(ctx context.Context, actionID id.ActionID) (*models.GovernanceAction, error)

	// GetActionForUpdate loads one action while taking the per-action write
	// lock for the remainder of the ambient transaction. Consensus is a
	// read-the-set-then-write-the-parent sequence; locking the parent row
	// first is what serializes two racing final ballots. Backends whose
	// StoreTx already serializes per action may alias GetAction.
	GetActionForUpdate(ctx context.Context, actionID id.ActionID) (*models.GovernanceAction, error)

	// GetActionWithApprovals loads the action and its full approval set as
	// one coherent read for consensus evaluation.
	GetActionWithApprovals(ctx context.Context, actionID id.ActionID) (*models.GovernanceAction, []*models.Approval, error)

	// GetApproval loads one approval.
	GetApproval(ctx context.Context, approvalID id.ApprovalID) (*models.Approval, error)

	// RecordDecision writes the ballot iff the approval is still pending.
	RecordDecision(ctx context.Context, approvalID id.ApprovalID, decision models.Decision, comment string, respondedAt time.Time) error

	// TransitionStatus moves the action from to iff it currently is in from.
	TransitionStatus(ctx context.Context, actionID id.ActionID, from, to models.ActionStatus) error

	// RecordOutcome finalizes an executing action to executed or failed.
	RecordOutcome(ctx context.Context, actionID id.ActionID, status models.ActionStatus, executedAt time.Time, errorMessage string) error

	// ListStalledExecuting returns actions stuck in the executing claim
	// since before cutoff, for crash recovery.
	ListStalledExecuting(ctx context.Context, cutoff time.Time) ([]*models.GovernanceAction, error)
}

// StoreTx provides the per-action transactional boundary for multi-step
// mutations (decision + consensus + ledger). Implementations wrap a database
// transaction or, in memory, a per-action lock. The scope is one action id:
// unrelated actions must proceed independently.
type StoreTx interface {
	RunInTx(ctx context.Context, actionID id.ActionID, fn func(ctx context.Context, store Store) error) error
}
