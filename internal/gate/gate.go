// Copyright 2026 The Courseguard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gate provides feature-gate backings for the permission rules.
// The production deployment uses the Redis gate so the rollout can be
// flipped without a restart; Static and Env cover tests and single-node
// setups.
package gate

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Static is a fixed gate value.
type Static bool

// Enabled returns the fixed value.
func (s Static) Enabled(context.Context) bool { return bool(s) }

// Env reads a boolean environment variable on every evaluation. An
// unset or unparseable value is disabled.
type Env struct {
	Var string
}

// Enabled reports the current value of the environment variable.
func (e Env) Enabled(context.Context) bool {
	v, err := strconv.ParseBool(os.Getenv(e.Var))
	return err == nil && v
}

// Redis reads the gate from a Redis key so it can be toggled at runtime
// without redeploying. Reads are memoized for a short TTL to keep the
// per-check cost near zero; a flip is observed within one TTL.
//
// Fails closed: a missing key or a Redis error counts as disabled.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration

	mu      sync.Mutex
	value   bool
	expires time.Time
}

// NewRedis creates a Redis-backed gate. A non-positive ttl defaults to
// five seconds.
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

// Enabled reports the current gate value.
func (g *Redis) Enabled(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if now.Before(g.expires) {
		return g.value
	}

	raw, err := g.client.Get(ctx, g.key).Result()
	switch {
	case err == redis.Nil:
		g.value = false
	case err != nil:
		slog.WarnContext(ctx, "feature gate read failed, denying",
			slog.String("key", g.key),
			slog.String("error", err.Error()),
		)
		g.value = false
	default:
		v, perr := strconv.ParseBool(raw)
		g.value = perr == nil && v
	}
	g.expires = now.Add(g.ttl)
	return g.value
}
