package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"rulegov/internal/constants"
	"rulegov/internal/logger"
	"rulegov/pkg/metrics"
)

// CapabilityCache supplements token claims with capabilities granted out of
// band (e.g. temporary checker grants). It is an explicit instance, not
// process state, so tests can construct isolated caches. All failures
// degrade to the token's own claims.
type CapabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCapabilityCache(client *redis.Client, log logger.Logger) *CapabilityCache {
	return &CapabilityCache{client: client, ttl: constants.CapabilityCacheTTL, logger: log}
}

func (c *CapabilityCache) Get(ctx context.Context, principal string) []string {
	if c == nil || c.client == nil {
		return nil
	}

	raw, err := c.client.Get(ctx, constants.CapabilityCachePrefix+principal).Result()
	if err == redis.Nil {
		metrics.CapabilityCacheRequestsTotal.WithLabelValues("miss").Inc()
		return nil
	}
	if err != nil {
		metrics.CapabilityCacheRequestsTotal.WithLabelValues("error").Inc()
		c.logger.WarnwCtx(ctx, "Capability cache read failed, using token claims only", "error", err)
		return nil
	}

	var caps []string
	if err := json.Unmarshal([]byte(raw), &caps); err != nil {
		metrics.CapabilityCacheRequestsTotal.WithLabelValues("error").Inc()
		return nil
	}
	metrics.CapabilityCacheRequestsTotal.WithLabelValues("hit").Inc()
	return caps
}

func (c *CapabilityCache) Put(ctx context.Context, principal string, capabilities []string) {
	if c == nil || c.client == nil {
		return
	}

	raw, err := json.Marshal(capabilities)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, constants.CapabilityCachePrefix+principal, raw, c.ttl).Err(); err != nil {
		c.logger.WarnwCtx(ctx, "Capability cache write failed", "error", err)
	}
}

func (c *CapabilityCache) Invalidate(ctx context.Context, principal string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, constants.CapabilityCachePrefix+principal).Err(); err != nil {
		c.logger.WarnwCtx(ctx, "Capability cache invalidation failed", "error", err)
	}
}
