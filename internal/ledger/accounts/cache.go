package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// BalanceCache memoizes subtree balance rollups in Redis. Keys embed a
// per-tenant generation counter, so invalidation is a single INCR instead of
// a key scan: any posting bumps the generation and orphans every cached
// rollup for that tenant.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBalanceCache constructs the cache. A nil client disables caching.
func NewBalanceCache(client *redis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl}
}

func (c *BalanceCache) generation(ctx context.Context, tenantID uuid.UUID) (string, error) {
	gen, err := c.client.Get(ctx, "coa:gen:"+tenantID.String()).Result()
	if err == redis.Nil {
		return "0", nil
	}
	return gen, err
}

func (c *BalanceCache) key(gen string, tenantID uuid.UUID, accountID int64) string {
	return fmt.Sprintf("coa:subtree:%s:%s:%d", tenantID, gen, accountID)
}

// Get returns a memoized subtree balance, if present.
func (c *BalanceCache) Get(ctx context.Context, tenantID uuid.UUID, accountID int64) (decimal.Decimal, bool, error) {
	if c == nil || c.client == nil {
		return decimal.Zero, false, nil
	}
	gen, err := c.generation(ctx, tenantID)
	if err != nil {
		return decimal.Zero, false, err
	}
	raw, err := c.client.Get(ctx, c.key(gen, tenantID, accountID)).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, err
	}
	return value, true, nil
}

// Set stores a subtree balance under the current generation.
func (c *BalanceCache) Set(ctx context.Context, tenantID uuid.UUID, accountID int64, value decimal.Decimal) error {
	if c == nil || c.client == nil {
		return nil
	}
	gen, err := c.generation(ctx, tenantID)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(gen, tenantID, accountID), value.String(), c.ttl).Err()
}

// Invalidate drops every memoized rollup for the tenant. Called by the
// posting engine after any balance mutation.
func (c *BalanceCache) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, "coa:gen:"+tenantID.String()).Err()
}
