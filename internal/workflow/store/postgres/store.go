package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"custodian/internal/workflow/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
	txcontext "custodian/pkg/platform/tx"
)

// Store persists governance actions and approvals in PostgreSQL. This store
// is pure I/O: consensus rules live in the service; what belongs here is the
// compare-and-set shape of every transition (UPDATE ... WHERE status = ...)
// so at most one writer wins any edge out of a status.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// querier covers *sql.DB and *sql.Tx so every method joins an ambient
// transaction when one is carried in ctx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) CreateAction(ctx context.Context, action *models.GovernanceAction, approvals []*models.Approval) error {
	params, err := models.EncodeParams(action.Params)
	if err != nil {
		return err
	}

	q := s.q(ctx)
	insertAction := `
		INSERT INTO governance_actions (
			id, owner_user_id, asset_id, asset_external_id, action_type, status,
			requested_by_email, reason, params, error_message, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '', $10, $10)
	`
	if _, err := q.ExecContext(ctx, insertAction,
		uuid.UUID(action.ID),
		uuid.UUID(action.OwnerUserID),
		uuid.UUID(action.AssetID),
		action.AssetExternalID,
		string(action.Type),
		string(action.Status),
		action.RequestedByEmail,
		action.Reason,
		params,
		action.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert governance action: %w", err)
	}

	insertApproval := `
		INSERT INTO approvals (id, action_id, approver_email, decision, comment)
		VALUES ($1, $2, $3, $4, '')
	`
	for _, a := range approvals {
		if _, err := q.ExecContext(ctx, insertApproval,
			uuid.UUID(a.ID),
			uuid.UUID(a.ActionID),
			a.ApproverEmail,
			string(a.Decision),
		); err != nil {
			return fmt.Errorf("insert approval: %w", err)
		}
	}
	return nil
}

const actionColumns = `
	SELECT id, owner_user_id, asset_id, asset_external_id, action_type, status,
	       requested_by_email, reason, params, error_message, created_at, updated_at, executed_at
	FROM governance_actions
`

func (s *Store) GetAction(ctx context.Context, actionID id.ActionID) (*models.GovernanceAction, error) {
	row := s.q(ctx).QueryRowContext(ctx, actionColumns+` WHERE id = $1`, uuid.UUID(actionID))
	action, err := scanAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("action %s: %w", actionID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get governance action: %w", err)
	}
	return action, nil
}

// GetActionForUpdate locks the action row for the rest of the ambient
// transaction. Two decide transactions on the same action serialize here, so
// each consensus evaluation sees the other's committed ballot. Outside a
// transaction the lock is released immediately and this degrades to a plain
// read.
func (s *Store) GetActionForUpdate(ctx context.Context, actionID id.ActionID) (*models.GovernanceAction, error) {
	row := s.q(ctx).QueryRowContext(ctx, actionColumns+` WHERE id = $1 FOR UPDATE`, uuid.UUID(actionID))
	action, err := scanAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("action %s: %w", actionID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get governance action for update: %w", err)
	}
	return action, nil
}

func (s *Store) GetActionWithApprovals(ctx context.Context, actionID id.ActionID) (*models.GovernanceAction, []*models.Approval, error) {
	action, err := s.GetAction(ctx, actionID)
	if err != nil {
		return nil, nil, err
	}

	query := `
		SELECT id, action_id, approver_email, decision, comment, responded_at
		FROM approvals
		WHERE action_id = $1
		ORDER BY approver_email ASC
	`
	rows, err := s.q(ctx).QueryContext(ctx, query, uuid.UUID(actionID))
	if err != nil {
		return nil, nil, fmt.Errorf("query approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*models.Approval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, nil, err
		}
		approvals = append(approvals, approval)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate approvals: %w", err)
	}
	return action, approvals, nil
}

func (s *Store) GetApproval(ctx context.Context, approvalID id.ApprovalID) (*models.Approval, error) {
	query := `
		SELECT id, action_id, approver_email, decision, comment, responded_at
		FROM approvals
		WHERE id = $1
	`
	row := s.q(ctx).QueryRowContext(ctx, query, uuid.UUID(approvalID))
	approval, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("approval %s: %w", approvalID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return approval, nil
}

// RecordDecision is a compare-and-set on decision='pending' so a ballot can
// be cast at most once even under concurrent submissions.
func (s *Store) RecordDecision(ctx context.Context, approvalID id.ApprovalID, decision models.Decision, comment string, respondedAt time.Time) error {
	query := `
		UPDATE approvals
		SET decision = $2, comment = $3, responded_at = $4
		WHERE id = $1 AND decision = 'pending'
	`
	result, err := s.q(ctx).ExecContext(ctx, query, uuid.UUID(approvalID), string(decision), comment, respondedAt)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record decision rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish missing from already decided.
		if _, err := s.GetApproval(ctx, approvalID); err != nil {
			return err
		}
		return fmt.Errorf("approval %s: %w", approvalID, sentinel.ErrAlreadyDecided)
	}
	return nil
}

// TransitionStatus is a compare-and-set on the current status. Zero rows
// affected means the row is missing or another writer already moved it.
func (s *Store) TransitionStatus(ctx context.Context, actionID id.ActionID, from, to models.ActionStatus) error {
	query := `
		UPDATE governance_actions
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`
	result, err := s.q(ctx).ExecContext(ctx, query, uuid.UUID(actionID), string(from), string(to), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("transition status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition status rows affected: %w", err)
	}
	if rows == 0 {
		action, err := s.GetAction(ctx, actionID)
		if err != nil {
			return err
		}
		return fmt.Errorf("action %s is %s, not %s: %w", actionID, action.Status, from, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *Store) RecordOutcome(ctx context.Context, actionID id.ActionID, status models.ActionStatus, executedAt time.Time, errorMessage string) error {
	query := `
		UPDATE governance_actions
		SET status = $2, executed_at = $3, error_message = $4, updated_at = $3
		WHERE id = $1 AND status = 'executing'
	`
	result, err := s.q(ctx).ExecContext(ctx, query, uuid.UUID(actionID), string(status), executedAt, errorMessage)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record outcome rows affected: %w", err)
	}
	if rows == 0 {
		action, err := s.GetAction(ctx, actionID)
		if err != nil {
			return err
		}
		return fmt.Errorf("action %s is %s, not executing: %w", actionID, action.Status, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *Store) ListStalledExecuting(ctx context.Context, cutoff time.Time) ([]*models.GovernanceAction, error) {
	rows, err := s.q(ctx).QueryContext(ctx, actionColumns+` WHERE status = 'executing' AND updated_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stalled executing actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.GovernanceAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stalled actions: %w", err)
	}
	return actions, nil
}

type row interface {
	Scan(dest ...any) error
}

func scanAction(r row) (*models.GovernanceAction, error) {
	var (
		action     models.GovernanceAction
		actionID   uuid.UUID
		ownerID    uuid.UUID
		assetID    uuid.UUID
		actionType string
		status     string
		params     []byte
		executedAt sql.NullTime
	)
	if err := r.Scan(
		&actionID,
		&ownerID,
		&assetID,
		&action.AssetExternalID,
		&actionType,
		&status,
		&action.RequestedByEmail,
		&action.Reason,
		&params,
		&action.ErrorMessage,
		&action.CreatedAt,
		&action.UpdatedAt,
		&executedAt,
	); err != nil {
		return nil, err
	}
	action.ID = id.ActionID(actionID)
	action.OwnerUserID = id.UserID(ownerID)
	action.AssetID = id.AssetID(assetID)
	action.Type = models.ActionType(actionType)
	action.Status = models.ActionStatus(status)
	if executedAt.Valid {
		action.ExecutedAt = &executedAt.Time
	}
	decoded, err := models.DecodeParams(action.Type, params)
	if err != nil {
		return nil, err
	}
	action.Params = decoded
	return &action, nil
}

func scanApproval(r row) (*models.Approval, error) {
	var (
		approval    models.Approval
		approvalID  uuid.UUID
		actionID    uuid.UUID
		decision    string
		respondedAt sql.NullTime
	)
	if err := r.Scan(
		&approvalID,
		&actionID,
		&approval.ApproverEmail,
		&decision,
		&approval.Comment,
		&respondedAt,
	); err != nil {
		return nil, err
	}
	approval.ID = id.ApprovalID(approvalID)
	approval.ActionID = id.ActionID(actionID)
	approval.Decision = models.Decision(decision)
	if respondedAt.Valid {
		approval.RespondedAt = &respondedAt.Time
	}
	return &approval, nil
}
