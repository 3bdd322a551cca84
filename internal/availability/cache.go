package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vidaplena/clinic-portal/internal/api"
)

// BootstrapCache keeps the bulk booking bootstrap in Redis so repeated
// wizard sessions for the same actor do not refetch it.
type BootstrapCache struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewBootstrapCache(redisClient *redis.Client, ttl time.Duration) *BootstrapCache {
	return &BootstrapCache{
		redis:  redisClient,
		ttl:    ttl,
		tracer: otel.Tracer("clinicportal.internal.availability.bootstrap_cache"),
	}
}

func (c *BootstrapCache) key(actor string) string {
	return "portal:bootstrap:" + actor
}

// Get returns the cached bootstrap for an actor, or nil on a miss.
func (c *BootstrapCache) Get(ctx context.Context, actor string) (*api.Bootstrap, error) {
	ctx, span := c.tracer.Start(ctx, "availability.bootstrap_cache.get")
	defer span.End()

	data, err := c.redis.Get(ctx, c.key(actor)).Bytes()
	if err == redis.Nil {
		span.SetAttributes(attribute.Bool("clinicportal.cache_hit", false))
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("availability: read cached bootstrap: %w", err)
	}
	var b api.Bootstrap
	if err := json.Unmarshal(data, &b); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("availability: decode cached bootstrap: %w", err)
	}
	span.SetAttributes(attribute.Bool("clinicportal.cache_hit", true))
	return &b, nil
}

// Put stores the bootstrap for an actor with the configured TTL.
func (c *BootstrapCache) Put(ctx context.Context, actor string, b *api.Bootstrap) error {
	ctx, span := c.tracer.Start(ctx, "availability.bootstrap_cache.put")
	defer span.End()

	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("availability: encode bootstrap: %w", err)
	}
	if err := c.redis.Set(ctx, c.key(actor), data, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("availability: cache bootstrap: %w", err)
	}
	return nil
}

// Invalidate drops the cached bootstrap for an actor, e.g. after a
// booking was created from it.
func (c *BootstrapCache) Invalidate(ctx context.Context, actor string) error {
	ctx, span := c.tracer.Start(ctx, "availability.bootstrap_cache.invalidate")
	defer span.End()

	return c.redis.Del(ctx, c.key(actor)).Err()
}
