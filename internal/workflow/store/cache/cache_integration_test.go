//go:build integration

package cache_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodian/internal/workflow"
	"custodian/internal/workflow/models"
	"custodian/internal/workflow/store/cache"
	id "custodian/pkg/domain"
	"custodian/pkg/testutil/containers"
)

func newStatusCache(t *testing.T, opts ...cache.Option) (*cache.StatusCache, *containers.RedisContainer) {
	t.Helper()
	rc := containers.NewRedisContainer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return cache.New(rc.Client, logger, opts...), rc
}

func snapshot() *workflow.StatusSnapshot {
	return &workflow.StatusSnapshot{
		ActionID:         id.NewActionID(),
		AssetID:          id.NewAssetID(),
		Type:             models.ActionTypeDelete,
		Status:           models.StatusPending,
		RequestedByEmail: "owner@x.com",
		Reason:           "cleanup",
		CreatedAt:        time.Now().UTC().Truncate(time.Millisecond),
		Approvals: []workflow.ApprovalStatus{
			{
				ApprovalID:    id.NewApprovalID(),
				ApproverEmail: "alice@x.com",
				Decision:      models.DecisionPending,
			},
		},
	}
}

func TestStatusCache_SetGetRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	c, rc := newStatusCache(t)
	defer rc.Client.Close()
	ctx := context.Background()

	want := snapshot()
	c.Set(ctx, want)

	got, ok := c.Get(ctx, want.ActionID)
	require.True(t, ok)
	assert.Equal(t, want.ActionID, got.ActionID)
	assert.Equal(t, want.Status, got.Status)
	require.Len(t, got.Approvals, 1)
	assert.Equal(t, "alice@x.com", got.Approvals[0].ApproverEmail)
}

func TestStatusCache_MissOnAbsentKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	c, rc := newStatusCache(t)
	defer rc.Client.Close()

	_, ok := c.Get(context.Background(), id.NewActionID())
	assert.False(t, ok)
}

func TestStatusCache_InvalidateRemoves(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	c, rc := newStatusCache(t)
	defer rc.Client.Close()
	ctx := context.Background()

	want := snapshot()
	c.Set(ctx, want)
	c.Invalidate(ctx, want.ActionID)

	_, ok := c.Get(ctx, want.ActionID)
	assert.False(t, ok)
}

func TestStatusCache_EntriesExpire(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	c, rc := newStatusCache(t, cache.WithTTL(200*time.Millisecond))
	defer rc.Client.Close()
	ctx := context.Background()

	want := snapshot()
	c.Set(ctx, want)

	_, ok := c.Get(ctx, want.ActionID)
	require.True(t, ok)

	time.Sleep(300 * time.Millisecond)

	_, ok = c.Get(ctx, want.ActionID)
	assert.False(t, ok)
}

func TestStatusCache_CorruptEntryIsAMiss(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	c, rc := newStatusCache(t)
	defer rc.Client.Close()
	ctx := context.Background()

	actionID := id.NewActionID()
	require.NoError(t, rc.Client.Set(ctx, "custodian:action_status:"+actionID.String(), "{not json", time.Minute).Err())

	_, ok := c.Get(ctx, actionID)
	assert.False(t, ok)
}
