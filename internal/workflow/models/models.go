package models

import (
	"time"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

// ActionType identifies the remediation a governance action proposes.
// Invariant: the value must be one of the four supported remediations.
type ActionType string

const (
	ActionTypeDelete            ActionType = "delete"
	ActionTypeChangeVisibility  ActionType = "change_visibility"
	ActionTypeRemovePermission  ActionType = "remove_permission"
	ActionTypeTransferOwnership ActionType = "transfer_ownership"
)

// validActionTypes is the single source of truth for valid action types.
var validActionTypes = map[ActionType]bool{
	ActionTypeDelete:            true,
	ActionTypeChangeVisibility:  true,
	ActionTypeRemovePermission:  true,
	ActionTypeTransferOwnership: true,
}

// ParseActionType constructs an ActionType from external input.
//
// Errors: returns CodeValidation when the value is empty or unsupported.
func ParseActionType(s string) (ActionType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "action type cannot be empty")
	}
	t := ActionType(s)
	if !validActionTypes[t] {
		return "", dErrors.New(dErrors.CodeValidation, "unsupported action type: "+s)
	}
	return t, nil
}

func (t ActionType) IsValid() bool  { return validActionTypes[t] }
func (t ActionType) String() string { return string(t) }

// ActionStatus is the consensus/execution state of a governance action.
//
// Transitions: pending -> {approved, rejected};
// approved -> executing -> {executed, failed}.
// rejected, executed, and failed are terminal. "executing" is the
// single-writer claim held while the platform call is in flight.
type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusApproved  ActionStatus = "approved"
	StatusRejected  ActionStatus = "rejected"
	StatusExecuting ActionStatus = "executing"
	StatusExecuted  ActionStatus = "executed"
	StatusFailed    ActionStatus = "failed"
)

// statusEdges is the single source of truth for legal status transitions.
var statusEdges = map[ActionStatus][]ActionStatus{
	StatusPending:   {StatusApproved, StatusRejected},
	StatusApproved:  {StatusExecuting},
	StatusExecuting: {StatusExecuted, StatusFailed},
}

// CanTransitionTo reports whether the status machine permits moving from s
// to next.
func (s ActionStatus) CanTransitionTo(next ActionStatus) bool {
	for _, edge := range statusEdges[s] {
		if edge == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no edges leave this status.
func (s ActionStatus) IsTerminal() bool {
	return len(statusEdges[s]) == 0
}

func (s ActionStatus) String() string { return string(s) }

// Decision is one approver's ballot. It is an explicit tri-state enum, not a
// nullable boolean: "not yet answered" must never be conflated with a valid
// rejection.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ParseDecision accepts only the two castable ballots; pending is the initial
// state and cannot be submitted.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionApproved, DecisionRejected:
		return Decision(s), nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "decision must be approved or rejected")
	}
}

func (d Decision) String() string { return string(d) }

// GovernanceAction is a proposed remediation against one discovered asset.
// Created once, mutated only by the workflow service (consensus) and the
// execution dispatcher (outcome), never deleted.
type GovernanceAction struct {
	ID               id.ActionID
	OwnerUserID      id.UserID
	AssetID          id.AssetID
	AssetExternalID  string
	Type             ActionType
	Status           ActionStatus
	RequestedByEmail string
	Reason           string
	Params           ActionParams
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ExecutedAt       *time.Time
	ErrorMessage     string
}

// Approval is one approver's single ballot on one action. It is created
// pending alongside the action and mutated exactly once.
type Approval struct {
	ID            id.ApprovalID
	ActionID      id.ActionID
	ApproverEmail string
	Decision      Decision
	Comment       string
	RespondedAt   *time.Time
}

// HasResponded reports whether the ballot has already been cast.
func (a *Approval) HasResponded() bool {
	return a.Decision != DecisionPending
}

// Consensus is the action-level resolution of an approval set.
type Consensus string

const (
	ConsensusPending  Consensus = "pending"
	ConsensusApproved Consensus = "approved"
	ConsensusRejected Consensus = "rejected"
)

// EvaluateConsensus resolves an approval set to an action-level outcome:
// any rejection rejects, a non-empty unanimously approved set approves,
// anything else stays pending. Pure function so the rule is testable without
// a store.
func EvaluateConsensus(approvals []*Approval) Consensus {
	if len(approvals) == 0 {
		return ConsensusPending
	}
	allApproved := true
	for _, a := range approvals {
		switch a.Decision {
		case DecisionRejected:
			return ConsensusRejected
		case DecisionPending:
			allApproved = false
		}
	}
	if allApproved {
		return ConsensusApproved
	}
	return ConsensusPending
}
