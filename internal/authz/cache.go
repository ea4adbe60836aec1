package authz

import (
	"context"

	"github.com/courseguard/courseguard/internal/coursekey"
)

// RequestCache memoizes resolver output for the life of one inbound
// request. Each request flow allocates its own instance; sharing one
// across flows is forbidden, so there is no locking here.
type RequestCache struct {
	entries map[cacheKey]Set
}

type cacheKey struct {
	actorID string
	course  string
}

// NewRequestCache creates an empty per-request cache.
func NewRequestCache() *RequestCache {
	return &RequestCache{entries: make(map[cacheKey]Set)}
}

func (c *RequestCache) get(actor Actor, course coursekey.CourseKey) (Set, bool) {
	s, ok := c.entries[cacheKey{actorID: actor.ID, course: course.String()}]
	return s, ok
}

func (c *RequestCache) put(actor Actor, course coursekey.CourseKey, perms Set) {
	c.entries[cacheKey{actorID: actor.ID, course: course.String()}] = perms
}

type requestCacheCtxKey struct{}

// WithRequestCache returns a context carrying a fresh request cache.
// HTTP middleware installs one per request; the cache dies with the
// request context.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestCacheCtxKey{}, NewRequestCache())
}

// requestCacheFrom extracts the request cache, if one was installed.
func requestCacheFrom(ctx context.Context) (*RequestCache, bool) {
	c, ok := ctx.Value(requestCacheCtxKey{}).(*RequestCache)
	return c, ok
}
