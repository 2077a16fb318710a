package service

import (
	"context"
	"sync"
	"time"

	"custodian/internal/workflow"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

// shardedActionTx provides the per-action serialization point for the
// in-memory store. Operations are distributed across N shards by a hash of
// the action id, so two decisions on the same action serialize while
// unrelated actions proceed without contention. The postgres deployment gets
// the same guarantee from a database transaction (cmd/server).
const numActionShards = 128

// defaultTxTimeout bounds how long a decision/consensus unit may run.
const defaultTxTimeout = 5 * time.Second

type shardedActionTx struct {
	shards  [numActionShards]sync.Mutex
	store   workflow.Store
	timeout time.Duration
}

// NewMemoryTx wraps an in-memory store in a sharded per-action lock.
func NewMemoryTx(store workflow.Store) workflow.StoreTx {
	return &shardedActionTx{store: store}
}

func (t *shardedActionTx) RunInTx(ctx context.Context, actionID id.ActionID, fn func(ctx context.Context, store workflow.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := int(hashActionID(actionID) % numActionShards)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	// Check again after acquiring the lock.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx, t.store)
}

// hashActionID uses FNV-1a over the UUID string for even shard distribution.
func hashActionID(actionID id.ActionID) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	s := actionID.String()
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
