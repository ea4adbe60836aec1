// Package oracle decorates a course-existence source with a shared
// Redis cache. The resolver itself never caches existence answers; this
// wrapper is where deployments put that caching, in front of whatever
// backing source they use.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/courseguard/courseguard/internal/authz"
	"github.com/courseguard/courseguard/internal/coursekey"
)

const keyPrefix = "courseguard:course_exists:"

// Cached wraps an inner oracle with Redis-backed memoization. Cache
// failures degrade to the inner oracle; they never fail the check.
type Cached struct {
	inner  authz.CourseExistenceOracle
	client *redis.Client
	ttl    time.Duration
}

// NewCached builds the decorator. A non-positive ttl defaults to five
// minutes.
func NewCached(inner authz.CourseExistenceOracle, client *redis.Client, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{inner: inner, client: client, ttl: ttl}
}

// Exists answers from the cache when it can, falling back to the inner
// oracle and writing the answer back on a miss.
func (c *Cached) Exists(ctx context.Context, course coursekey.CourseKey) (bool, error) {
	key := keyPrefix + course.String()

	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return raw == "1", nil
	case err != redis.Nil:
		slog.WarnContext(ctx, "course existence cache read failed",
			slog.String("course_id", course.String()),
			slog.String("error", err.Error()),
		)
	}

	exists, err := c.inner.Exists(ctx, course)
	if err != nil {
		return false, fmt.Errorf("course existence lookup: %w", err)
	}

	value := "0"
	if exists {
		value = "1"
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "course existence cache write failed",
			slog.String("course_id", course.String()),
			slog.String("error", err.Error()),
		)
	}

	return exists, nil
}

// Invalidate drops the cached answer for one course, e.g. after a
// course is created or retired.
func (c *Cached) Invalidate(ctx context.Context, course coursekey.CourseKey) error {
	return c.client.Del(ctx, keyPrefix+course.String()).Err()
}
