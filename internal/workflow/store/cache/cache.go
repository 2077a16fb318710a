// Package cache provides a Redis-backed read-through cache for the status
// polling surface. UIs poll GetStatus aggressively while approvals are
// outstanding; a short TTL plus invalidation on every transition keeps the
// database out of that hot path without serving stale terminal states.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"custodian/internal/workflow"
	id "custodian/pkg/domain"
)

const defaultTTL = 3 * time.Second

// StatusCache implements workflow.StatusCache on Redis. All failures degrade
// to a cache miss: the read path never depends on Redis being up.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*StatusCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *StatusCache) {
		c.ttl = ttl
	}
}

func New(client *redis.Client, logger *slog.Logger, opts ...Option) *StatusCache {
	c := &StatusCache{client: client, ttl: defaultTTL, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func key(actionID id.ActionID) string {
	return "custodian:action_status:" + actionID.String()
}

func (c *StatusCache) Get(ctx context.Context, actionID id.ActionID) (*workflow.StatusSnapshot, bool) {
	raw, err := c.client.Get(ctx, key(actionID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.DebugContext(ctx, "status cache read failed", "error", err)
		}
		return nil, false
	}
	var snapshot workflow.StatusSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		c.logger.DebugContext(ctx, "status cache entry corrupt", "error", err)
		return nil, false
	}
	return &snapshot, true
}

func (c *StatusCache) Set(ctx context.Context, snapshot *workflow.StatusSnapshot) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key(snapshot.ActionID), raw, c.ttl).Err(); err != nil {
		c.logger.DebugContext(ctx, "status cache write failed", "error", err)
	}
}

func (c *StatusCache) Invalidate(ctx context.Context, actionID id.ActionID) {
	if err := c.client.Del(ctx, key(actionID)).Err(); err != nil {
		c.logger.DebugContext(ctx, "status cache invalidate failed", "error", err)
	}
}
