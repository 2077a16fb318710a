//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"custodian/internal/workflow/models"
	"custodian/internal/workflow/store/postgres"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
	txcontext "custodian/pkg/platform/tx"
	"custodian/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx context.Context

	pg    *containers.PostgresContainer
	store *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration suite in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = postgres.New(s.pg.DB)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	_ = s.pg.DB.Close()
	_ = s.pg.Container.Terminate(s.ctx)
}

func (s *PostgresStoreSuite) SetupTest() {
	require.NoError(s.T(), s.pg.Truncate(s.ctx))
}

func (s *PostgresStoreSuite) seedAction(status models.ActionStatus, params models.ActionParams, actionType models.ActionType, approverEmails ...string) (*models.GovernanceAction, []*models.Approval) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	action := &models.GovernanceAction{
		ID:               id.NewActionID(),
		OwnerUserID:      id.NewUserID(),
		AssetID:          id.NewAssetID(),
		AssetExternalID:  "ext-1",
		Type:             actionType,
		Status:           status,
		RequestedByEmail: "owner@x.com",
		Reason:           "cleanup",
		Params:           params,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	var approvals []*models.Approval
	for _, email := range approverEmails {
		approvals = append(approvals, &models.Approval{
			ID:            id.NewApprovalID(),
			ActionID:      action.ID,
			ApproverEmail: email,
			Decision:      models.DecisionPending,
		})
	}
	require.NoError(s.T(), s.store.CreateAction(s.ctx, action, approvals))
	return action, approvals
}

func (s *PostgresStoreSuite) TestCreateAndGetRoundTrip() {
	action, approvals := s.seedAction(models.StatusPending,
		models.ChangeVisibilityParams{TargetVisibility: id.VisibilityPrivate},
		models.ActionTypeChangeVisibility,
		"alice@x.com", "bob@x.com")

	got, gotApprovals, err := s.store.GetActionWithApprovals(s.ctx, action.ID)
	s.Require().NoError(err)

	s.Equal(action.ID, got.ID)
	s.Equal(action.OwnerUserID, got.OwnerUserID)
	s.Equal(action.AssetID, got.AssetID)
	s.Equal(models.ActionTypeChangeVisibility, got.Type)
	s.Equal(models.StatusPending, got.Status)
	s.Equal("cleanup", got.Reason)
	s.Nil(got.ExecutedAt)
	s.Empty(got.ErrorMessage)

	// Params round-trip through jsonb into the typed variant.
	params, ok := got.Params.(models.ChangeVisibilityParams)
	s.Require().True(ok, "params decoded as %T", got.Params)
	s.Equal(id.VisibilityPrivate, params.TargetVisibility)

	s.Len(gotApprovals, 2)
	s.Len(approvals, 2)
}

func (s *PostgresStoreSuite) TestGetAction_NotFound() {
	_, err := s.store.GetAction(s.ctx, id.NewActionID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRecordDecision_WriteOnce() {
	_, approvals := s.seedAction(models.StatusPending, models.DeleteParams{}, models.ActionTypeDelete, "alice@x.com")
	approvalID := approvals[0].ID

	s.Require().NoError(s.store.RecordDecision(s.ctx, approvalID, models.DecisionApproved, "ok", time.Now().UTC()))

	err := s.store.RecordDecision(s.ctx, approvalID, models.DecisionRejected, "no", time.Now().UTC())
	s.ErrorIs(err, sentinel.ErrAlreadyDecided)

	got, err := s.store.GetApproval(s.ctx, approvalID)
	s.Require().NoError(err)
	s.Equal(models.DecisionApproved, got.Decision)
	s.Equal("ok", got.Comment)
	s.NotNil(got.RespondedAt)
}

func (s *PostgresStoreSuite) TestTransitionStatus_CompareAndSet() {
	action, _ := s.seedAction(models.StatusPending, models.DeleteParams{}, models.ActionTypeDelete)

	s.Require().NoError(s.store.TransitionStatus(s.ctx, action.ID, models.StatusPending, models.StatusApproved))

	err := s.store.TransitionStatus(s.ctx, action.ID, models.StatusPending, models.StatusRejected)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	err = s.store.TransitionStatus(s.ctx, id.NewActionID(), models.StatusPending, models.StatusApproved)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// Concurrent claims on one approved action: the conditional UPDATE lets
// exactly one through.
func (s *PostgresStoreSuite) TestTransitionStatus_ConcurrentClaims() {
	action, _ := s.seedAction(models.StatusApproved, models.DeleteParams{}, models.ActionTypeDelete)

	const claimers = 8
	var wg sync.WaitGroup
	results := make(chan error, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.store.TransitionStatus(s.ctx, action.ID, models.StatusApproved, models.StatusExecuting)
		}()
	}
	wg.Wait()
	close(results)

	won, lost := 0, 0
	for err := range results {
		if err == nil {
			won++
			continue
		}
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
		lost++
	}
	s.Equal(1, won)
	s.Equal(claimers-1, lost)
}

func (s *PostgresStoreSuite) TestRecordOutcome() {
	action, _ := s.seedAction(models.StatusExecuting, models.DeleteParams{}, models.ActionTypeDelete)

	executedAt := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.RecordOutcome(s.ctx, action.ID, models.StatusFailed, executedAt, "platform refused"))

	got, err := s.store.GetAction(s.ctx, action.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, got.Status)
	s.Equal("platform refused", got.ErrorMessage)
	s.Require().NotNil(got.ExecutedAt)
	s.WithinDuration(executedAt, *got.ExecutedAt, time.Millisecond)

	// Terminal states reject further outcome writes.
	err = s.store.RecordOutcome(s.ctx, action.ID, models.StatusExecuted, time.Now().UTC(), "")
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *PostgresStoreSuite) TestListStalledExecuting() {
	stalled, _ := s.seedAction(models.StatusExecuting, models.DeleteParams{}, models.ActionTypeDelete)
	s.seedAction(models.StatusPending, models.DeleteParams{}, models.ActionTypeDelete)

	out, err := s.store.ListStalledExecuting(s.ctx, time.Now().UTC().Add(time.Minute))
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal(stalled.ID, out[0].ID)

	out, err = s.store.ListStalledExecuting(s.ctx, time.Now().UTC().Add(-time.Minute))
	s.Require().NoError(err)
	s.Empty(out)
}

// Writes made inside an ambient transaction are invisible until commit and
// gone after rollback.
func (s *PostgresStoreSuite) TestAmbientTransaction() {
	_, approvals := s.seedAction(models.StatusPending, models.DeleteParams{}, models.ActionTypeDelete, "alice@x.com")

	tx, err := s.pg.DB.BeginTx(s.ctx, nil)
	s.Require().NoError(err)
	txCtx := txcontext.WithTx(s.ctx, tx)

	s.Require().NoError(s.store.RecordDecision(txCtx, approvals[0].ID, models.DecisionApproved, "", time.Now().UTC()))

	outside, err := s.store.GetApproval(s.ctx, approvals[0].ID)
	s.Require().NoError(err)
	assert.Equal(s.T(), models.DecisionPending, outside.Decision, "uncommitted write must not be visible")

	s.Require().NoError(tx.Rollback())

	after, err := s.store.GetApproval(s.ctx, approvals[0].ID)
	s.Require().NoError(err)
	s.Equal(models.DecisionPending, after.Decision)
}
