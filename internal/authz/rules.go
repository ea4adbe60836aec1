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

package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/courseguard/courseguard/internal/audit"
	"github.com/courseguard/courseguard/internal/coursekey"
)

// FeatureGate controls whether permission checks consult the resolver
// at all. When disabled, every rule evaluation denies without touching
// the store, which allows wiring the system up dark.
type FeatureGate interface {
	Enabled(ctx context.Context) bool
}

// CourseKeyed is implemented by course records that expose their own
// course key, letting them be passed directly as rule targets.
type CourseKeyed interface {
	CourseKey() coursekey.CourseKey
}

// NormalizeTarget reduces the heterogeneous target shapes the host hands
// to rules down to a course key. Accepted, in order: a course key, a
// block locator, anything exposing CourseKey(), and a raw string parsed
// as a course key. Anything else is ErrUnsupportedTarget, a programmer
// error.
func NormalizeTarget(target any) (coursekey.CourseKey, error) {
	switch v := target.(type) {
	case coursekey.CourseKey:
		return v, nil
	case coursekey.UsageKey:
		return v.CourseKey(), nil
	case CourseKeyed:
		return v.CourseKey(), nil
	case string:
		key, err := coursekey.Parse(v)
		if err != nil {
			return coursekey.CourseKey{}, fmt.Errorf("%w: %q", ErrUnsupportedTarget, v)
		}
		return key, nil
	default:
		return coursekey.CourseKey{}, fmt.Errorf("%w: %T", ErrUnsupportedTarget, target)
	}
}

// Rule answers the host framework's permission hook for one permission
// token. It holds no state beyond its collaborators; every evaluation
// is independent modulo the request cache.
type Rule struct {
	permission string
	service    *Service
	gate       FeatureGate
	audit      audit.Logger
}

// NewRule builds a HasPermission rule. The audit logger may be nil.
func NewRule(permission string, service *Service, gate FeatureGate, auditLogger audit.Logger) *Rule {
	return &Rule{
		permission: permission,
		service:    service,
		gate:       gate,
		audit:      auditLogger,
	}
}

// Permission returns the token this rule checks.
func (r *Rule) Permission() string { return r.permission }

// Allow evaluates the rule for an actor against a target.
//
// Denials are silent: a disabled gate, an anonymous actor and an
// unknown course all return (false, nil). ErrUnsupportedTarget and
// storage failures propagate.
func (r *Rule) Allow(ctx context.Context, actor Actor, target any) (bool, error) {
	if !r.gate.Enabled(ctx) {
		return false, nil
	}
	if actor.IsAnonymous() {
		return false, nil
	}

	course, err := NormalizeTarget(target)
	if err != nil {
		r.record(ctx, audit.TypeUnsupportedTarget, actor, coursekey.CourseKey{}, err)
		return false, err
	}

	perms, err := r.service.Resolve(ctx, actor, course)
	if err != nil {
		if errors.Is(err, ErrCourseNotFound) {
			r.record(ctx, audit.TypeUnknownCourseDenied, actor, course, err)
			return false, nil
		}
		return false, err
	}
	return perms.Has(r.permission), nil
}

// record emits a best-effort audit event; failures never fail the
// check.
func (r *Rule) record(ctx context.Context, eventType string, actor Actor, course coursekey.CourseKey, cause error) {
	if r.audit == nil {
		return
	}
	r.audit.Log(ctx, audit.Event{
		Type:       eventType,
		ActorID:    actor.ID,
		CourseID:   course.String(),
		Permission: r.permission,
		Metadata:   map[string]any{"cause": cause.Error()},
	})
}
