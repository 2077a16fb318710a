package execution_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"custodian/internal/audit"
	auditmemory "custodian/internal/audit/store/memory"
	"custodian/internal/execution"
	"custodian/internal/execution/mocks"
	"custodian/internal/workflow/models"
	"custodian/internal/workflow/service"
	workflowmemory "custodian/internal/workflow/store/memory"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

type dispatcherFixture struct {
	store      *workflowmemory.Store
	auditStore *auditmemory.Store
	platform   *mocks.MockCapability
	dispatcher *execution.Dispatcher
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	store := workflowmemory.New()
	auditStore := auditmemory.New()
	platform := mocks.NewMockCapability(ctrl)

	d, err := execution.New(store, service.NewMemoryTx(store), audit.NewService(auditStore), platform,
		execution.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	return &dispatcherFixture{
		store:      store,
		auditStore: auditStore,
		platform:   platform,
		dispatcher: d,
	}
}

func (f *dispatcherFixture) seedAction(t *testing.T, status models.ActionStatus, params models.ActionParams, actionType models.ActionType) *models.GovernanceAction {
	t.Helper()

	now := time.Now().UTC()
	action := &models.GovernanceAction{
		ID:               id.NewActionID(),
		OwnerUserID:      id.NewUserID(),
		AssetID:          id.NewAssetID(),
		AssetExternalID:  "ext-42",
		Type:             actionType,
		Status:           status,
		RequestedByEmail: "owner@x.com",
		Reason:           "shared too widely",
		Params:           params,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, f.store.CreateAction(context.Background(), action, nil))
	return action
}

func TestExecute_SuccessRecordsOutcomeAndLedger(t *testing.T) {
	f := newDispatcherFixture(t)
	action := f.seedAction(t, models.StatusApproved, models.DeleteParams{}, models.ActionTypeDelete)

	creds := execution.Credentials{AccessToken: "tok-1"}
	f.platform.EXPECT().Delete(gomock.Any(), creds, "ext-42").Return(nil).Times(1)

	outcome, err := f.dispatcher.Execute(context.Background(), action.ID, creds, "owner@x.com")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, outcome.Status)
	assert.Empty(t, outcome.ErrorMessage)

	got, err := f.store.GetAction(context.Background(), action.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, got.Status)
	require.NotNil(t, got.ExecutedAt)

	entries, err := f.auditStore.ListByTarget(context.Background(), audit.AssetResource(action.AssetID))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventAssetDeleted, entries[0].EventType)
	assert.Equal(t, "owner@x.com", entries[0].ActorEmail)
}

func TestExecute_PlatformFailureResolvesToFailed(t *testing.T) {
	f := newDispatcherFixture(t)
	action := f.seedAction(t, models.StatusApproved,
		models.TransferOwnershipParams{NewOwnerEmail: "successor@x.com"},
		models.ActionTypeTransferOwnership)

	creds := execution.Credentials{AccessToken: "tok-1"}
	f.platform.EXPECT().
		TransferOwnership(gomock.Any(), creds, "ext-42", "successor@x.com").
		Return(execution.NewPlatformError("consent required from new owner", nil)).
		Times(1)

	outcome, err := f.dispatcher.Execute(context.Background(), action.ID, creds, "owner@x.com")
	require.NoError(t, err, "a platform failure is an outcome, not an engine error")
	assert.Equal(t, models.StatusFailed, outcome.Status)
	assert.Equal(t, "consent required from new owner", outcome.ErrorMessage)

	got, err := f.store.GetAction(context.Background(), action.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "consent required from new owner", got.ErrorMessage)

	entries, err := f.auditStore.ListByTarget(context.Background(), audit.AssetResource(action.AssetID))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventAssetOwnershipTransferred+".failed", entries[0].EventType)
	assert.Equal(t, "consent required from new owner", entries[0].Metadata["error"])
}

func TestExecute_NotApprovedMakesNoPlatformCall(t *testing.T) {
	statuses := []models.ActionStatus{
		models.StatusPending,
		models.StatusRejected,
		models.StatusExecuting,
		models.StatusExecuted,
		models.StatusFailed,
	}

	for _, status := range statuses {
		t.Run(status.String(), func(t *testing.T) {
			f := newDispatcherFixture(t)
			action := f.seedAction(t, status, models.DeleteParams{}, models.ActionTypeDelete)
			// No EXPECT set: any platform call fails the test.

			_, err := f.dispatcher.Execute(context.Background(), action.ID, execution.Credentials{AccessToken: "t"}, "owner@x.com")
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState), "got %v", err)
			assert.Zero(t, f.auditStore.Len(), "a refused execution leaves no ledger entry")
		})
	}
}

func TestExecute_UnknownActionNotFound(t *testing.T) {
	f := newDispatcherFixture(t)

	_, err := f.dispatcher.Execute(context.Background(), id.NewActionID(), execution.Credentials{AccessToken: "t"}, "owner@x.com")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "got %v", err)
}

func TestExecute_TerminalStateRejectsRetry(t *testing.T) {
	f := newDispatcherFixture(t)
	action := f.seedAction(t, models.StatusApproved, models.DeleteParams{}, models.ActionTypeDelete)

	creds := execution.Credentials{AccessToken: "tok-1"}
	f.platform.EXPECT().Delete(gomock.Any(), creds, "ext-42").Return(nil).Times(1)

	_, err := f.dispatcher.Execute(context.Background(), action.ID, creds, "owner@x.com")
	require.NoError(t, err)

	_, err = f.dispatcher.Execute(context.Background(), action.ID, creds, "owner@x.com")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState), "got %v", err)
}

// Concurrent Execute calls on one approved action: the claim guarantees the
// platform sees exactly one call no matter how the goroutines interleave.
func TestExecute_ConcurrentCallersSinglePlatformCall(t *testing.T) {
	f := newDispatcherFixture(t)
	action := f.seedAction(t, models.StatusApproved,
		models.ChangeVisibilityParams{TargetVisibility: id.VisibilityPrivate},
		models.ActionTypeChangeVisibility)

	var calls atomic.Int32
	f.platform.EXPECT().
		ChangeVisibility(gomock.Any(), gomock.Any(), "ext-42", id.VisibilityPrivate).
		DoAndReturn(func(context.Context, execution.Credentials, string, id.Visibility) error {
			calls.Add(1)
			time.Sleep(10 * time.Millisecond) // widen the race window
			return nil
		}).
		Times(1)

	const callers = 6
	var wg sync.WaitGroup
	var succeeded atomic.Int32
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.dispatcher.Execute(context.Background(), action.ID, execution.Credentials{AccessToken: "t"}, "owner@x.com")
			if err == nil {
				succeeded.Add(1)
				return
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(1), calls.Load())
	for err := range errs {
		if !dErrors.HasCode(err, dErrors.CodeInvalidState) {
			t.Fatalf("loser saw unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, f.auditStore.Len())
}

func TestExecute_NonPlatformDispatchErrorStillFails(t *testing.T) {
	f := newDispatcherFixture(t)
	action := f.seedAction(t, models.StatusApproved,
		models.RemovePermissionParams{PermissionID: "perm-9"},
		models.ActionTypeRemovePermission)

	f.platform.EXPECT().
		RemovePermission(gomock.Any(), gomock.Any(), "ext-42", "perm-9").
		Return(errors.New("connection reset")).
		Times(1)

	outcome, err := f.dispatcher.Execute(context.Background(), action.ID, execution.Credentials{AccessToken: "t"}, "owner@x.com")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, outcome.Status)
	assert.Contains(t, outcome.ErrorMessage, "connection reset")
}
