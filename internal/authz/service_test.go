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

package authz_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseguard/courseguard/internal/authz"
	"github.com/courseguard/courseguard/internal/coursekey"
)

// MemAssignmentRepository implements authz.AssignmentRepository in
// memory with the store's matching semantics.
type MemAssignmentRepository struct {
	assignments map[string]*authz.Assignment
	failWith    error
}

func NewMemAssignmentRepository() *MemAssignmentRepository {
	return &MemAssignmentRepository{assignments: make(map[string]*authz.Assignment)}
}

func (m *MemAssignmentRepository) Grant(_ context.Context, a *authz.Assignment) error {
	if m.failWith != nil {
		return m.failWith
	}
	for _, existing := range m.assignments {
		if existing.ActorID != a.ActorID || existing.Role != a.Role ||
			existing.Scope.Kind() != a.Scope.Kind() {
			continue
		}
		// Per-shape uniqueness, mirroring the store's partial indexes.
		switch a.Scope.Kind() {
		case authz.ScopeCourse:
			if existing.Scope.Course.String() == a.Scope.Course.String() {
				return authz.ErrDuplicateAssignment
			}
		case authz.ScopeOrg:
			if strings.EqualFold(existing.Scope.Org, a.Scope.Org) {
				return authz.ErrDuplicateAssignment
			}
		case authz.ScopeInstance:
			return authz.ErrDuplicateAssignment
		}
	}
	m.assignments[a.ID] = a
	return nil
}

func (m *MemAssignmentRepository) Revoke(_ context.Context, id string) error {
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.assignments[id]; !ok {
		return authz.ErrAssignmentNotFound
	}
	delete(m.assignments, id)
	return nil
}

func (m *MemAssignmentRepository) GetByID(_ context.Context, id string) (*authz.Assignment, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	a, ok := m.assignments[id]
	if !ok {
		return nil, authz.ErrAssignmentNotFound
	}
	return a, nil
}

func (m *MemAssignmentRepository) ListForActor(_ context.Context, actorID string) ([]*authz.Assignment, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []*authz.Assignment
	for _, a := range m.assignments {
		if a.ActorID == actorID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemAssignmentRepository) RoleNamesFor(_ context.Context, actorID string, course coursekey.CourseKey) ([]string, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	seen := map[string]bool{}
	var names []string
	for _, a := range m.assignments {
		if a.ActorID != actorID {
			continue
		}
		match := false
		switch a.Scope.Kind() {
		case authz.ScopeCourse:
			match = a.Scope.Course.String() == course.String()
		case authz.ScopeOrg:
			match = strings.EqualFold(a.Scope.Org, course.Org())
		case authz.ScopeInstance:
			match = true
		}
		if match && !seen[a.Role] {
			seen[a.Role] = true
			names = append(names, a.Role)
		}
	}
	return names, nil
}

// MemRoleRepository implements authz.RoleRepository in memory.
type MemRoleRepository struct {
	roles map[string]*authz.Role
}

func NewMemRoleRepository(roles ...*authz.Role) *MemRoleRepository {
	m := &MemRoleRepository{roles: make(map[string]*authz.Role)}
	for _, r := range roles {
		m.roles[r.Name] = r
	}
	return m
}

func (m *MemRoleRepository) Create(_ context.Context, role *authz.Role) error {
	if _, ok := m.roles[role.Name]; ok {
		return authz.ErrRoleAlreadyExists
	}
	m.roles[role.Name] = role
	return nil
}

func (m *MemRoleRepository) GetByName(_ context.Context, name string) (*authz.Role, error) {
	r, ok := m.roles[name]
	if !ok {
		return nil, authz.ErrRoleNotFound
	}
	return r, nil
}

func (m *MemRoleRepository) List(_ context.Context) ([]*authz.Role, error) {
	var out []*authz.Role
	for _, r := range m.roles {
		out = append(out, r)
	}
	return out, nil
}

// MemOracle implements authz.CourseExistenceOracle over a fixed course
// list.
type MemOracle struct {
	courses  map[string]bool
	failWith error
	calls    int
}

func NewMemOracle(courses ...string) *MemOracle {
	m := &MemOracle{courses: make(map[string]bool)}
	for _, c := range courses {
		m.courses[c] = true
	}
	return m
}

func (m *MemOracle) Exists(_ context.Context, course coursekey.CourseKey) (bool, error) {
	m.calls++
	if m.failWith != nil {
		return false, m.failWith
	}
	return m.courses[course.String()], nil
}

func adminRole() *authz.Role {
	return &authz.Role{
		ID:          uuid.NewString(),
		Name:        "admin",
		Permissions: []string{authz.PermManageContent, authz.PermViewGradebook},
	}
}

func graderRole() *authz.Role {
	return &authz.Role{
		ID:          uuid.NewString(),
		Name:        "grader",
		Permissions: []string{authz.PermViewGradebook},
	}
}

func newFixture(courses ...string) (*authz.Service, *MemAssignmentRepository, *MemOracle) {
	assignments := NewMemAssignmentRepository()
	oracle := NewMemOracle(courses...)
	svc := authz.NewService(assignments, NewMemRoleRepository(adminRole(), graderRole()), oracle, nil)
	return svc, assignments, oracle
}

func TestResolve_InstanceAdminEverywhere(t *testing.T) {
	svc, _, _ := newFixture("course-v1:X+C+R")
	ctx := context.Background()

	_, err := svc.Assign(ctx, "u1", "admin", authz.InstanceScope(), "ops")
	require.NoError(t, err)

	perms, err := svc.Resolve(ctx, authz.Actor{ID: "u1"}, coursekey.MustParse("course-v1:X+C+R"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{authz.PermManageContent, authz.PermViewGradebook}, perms.Tokens())
}

func TestResolve_OrgGrantCrossOrgIsolation(t *testing.T) {
	svc, _, _ := newFixture("course-v1:X+C+R", "course-v1:Y+C+R")
	ctx := context.Background()

	_, err := svc.Assign(ctx, "u2", "admin", authz.OrgScope("X"), "ops")
	require.NoError(t, err)

	perms, err := svc.Resolve(ctx, authz.Actor{ID: "u2"}, coursekey.MustParse("course-v1:X+C+R"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{authz.PermManageContent, authz.PermViewGradebook}, perms.Tokens())

	perms, err = svc.Resolve(ctx, authz.Actor{ID: "u2"}, coursekey.MustParse("course-v1:Y+C+R"))
	require.NoError(t, err)
	assert.Empty(t, perms.Tokens())
}

func TestResolve_CaseInsensitiveOrg(t *testing.T) {
	svc, _, _ := newFixture("course-v1:HarvardX+CS50+2024")
	ctx := context.Background()

	_, err := svc.Assign(ctx, "u3", "admin", authz.OrgScope("harvardx"), "ops")
	require.NoError(t, err)

	perms, err := svc.Resolve(ctx, authz.Actor{ID: "u3"}, coursekey.MustParse("course-v1:HarvardX+CS50+2024"))
	require.NoError(t, err)
	assert.True(t, perms.Has(authz.PermManageContent))
	assert.True(t, perms.Has(authz.PermViewGradebook))
}

func TestResolve_CourseScopePrecision(t *testing.T) {
	svc, _, _ := newFixture("course-v1:X+C+R", "course-v1:X+D+R")
	ctx := context.Background()

	_, err := svc.Assign(ctx, "u4", "grader", authz.CourseScope(coursekey.MustParse("course-v1:X+C+R")), "ops")
	require.NoError(t, err)

	perms, err := svc.Resolve(ctx, authz.Actor{ID: "u4"}, coursekey.MustParse("course-v1:X+C+R"))
	require.NoError(t, err)
	assert.Equal(t, []string{authz.PermViewGradebook}, perms.Tokens())

	perms, err = svc.Resolve(ctx, authz.Actor{ID: "u4"}, coursekey.MustParse("course-v1:X+D+R"))
	require.NoError(t, err)
	assert.Empty(t, perms.Tokens())
}

func TestResolve_OverlappingGrantsUnion(t *testing.T) {
	svc, _, _ := newFixture("course-v1:X+C+R")
	ctx := context.Background()
	course := coursekey.MustParse("course-v1:X+C+R")

	_, err := svc.Assign(ctx, "u5", "grader", authz.CourseScope(course), "ops")
	require.NoError(t, err)
	_, err = svc.Assign(ctx, "u5", "admin", authz.OrgScope("X"), "ops")
	require.NoError(t, err)

	perms, err := svc.Resolve(ctx, authz.Actor{ID: "u5"}, course)
	require.NoError(t, err)
	// view_gradebook is granted twice but counted once.
	assert.ElementsMatch(t, []string{authz.PermManageContent, authz.PermViewGradebook}, perms.Tokens())
}

func TestResolve_AnonymousIsEmpty(t *testing.T) {
	svc, _, oracle := newFixture("course-v1:X+C+R")

	perms, err := svc.Resolve(context.Background(), authz.Anonymous(), coursekey.MustParse("course-v1:X+C+R"))
	require.NoError(t, err)
	assert.Empty(t, perms.Tokens())
	assert.Zero(t, oracle.calls, "anonymous resolution must not touch the oracle")
}

func TestResolve_LibraryKeyIsEmpty(t *testing.T) {
	svc, _, oracle := newFixture()

	perms, err := svc.Resolve(context.Background(), authz.Actor{ID: "u1"}, coursekey.MustParse("library-v1:X+problems"))
	require.NoError(t, err)
	assert.Empty(t, perms.Tokens())
	assert.Zero(t, oracle.calls)
}

func TestResolve_UnknownCourse(t *testing.T) {
	svc, _, _ := newFixture()

	_, err := svc.Resolve(context.Background(), authz.Actor{ID: "u1"}, coursekey.MustParse("course-v1:X+C+R"))
	assert.ErrorIs(t, err, authz.ErrCourseNotFound)
}

func TestResolve_NoAssignmentsIsEmpty(t *testing.T) {
	svc, _, _ := newFixture("course-v1:X+C+R")

	perms, err := svc.Resolve(context.Background(), authz.Actor{ID: "nobody"}, coursekey.MustParse("course-v1:X+C+R"))
	require.NoError(t, err)
	assert.Empty(t, perms.Tokens())
}

func TestResolve_SkipsUnknownTokens(t *testing.T) {
	assignments := NewMemAssignmentRepository()
	roles := NewMemRoleRepository(&authz.Role{
		ID:          uuid.NewString(),
		Name:        "futurist",
		Permissions: []string{authz.PermManageContent, "permission_from_the_future"},
	})
	svc := authz.NewService(assignments, roles, NewMemOracle("course-v1:X+C+R"), nil)
	ctx := context.Background()

	_, err := svc.Assign(ctx, "u1", "futurist", authz.InstanceScope(), "ops")
	require.NoError(t, err)

	perms, err := svc.Resolve(ctx, authz.Actor{ID: "u1"}, coursekey.MustParse("course-v1:X+C+R"))
	require.NoError(t, err)
	assert.Equal(t, []string{authz.PermManageContent}, perms.Tokens())
}

func TestResolve_RequestCacheMemoizes(t *testing.T) {
	svc, assignments, oracle := newFixture("course-v1:X+C+R")
	ctx := authz.WithRequestCache(context.Background())
	course := coursekey.MustParse("course-v1:X+C+R")

	_, err := svc.Assign(ctx, "u1", "admin", authz.InstanceScope(), "ops")
	require.NoError(t, err)

	first, err := svc.Resolve(ctx, authz.Actor{ID: "u1"}, course)
	require.NoError(t, err)
	require.True(t, first.Has(authz.PermManageContent))
	require.Equal(t, 1, oracle.calls)

	// A mid-request mutation is not observed by this request.
	assignments.assignments = map[string]*authz.Assignment{}

	second, err := svc.Resolve(ctx, authz.Actor{ID: "u1"}, course)
	require.NoError(t, err)
	assert.Equal(t, first.Tokens(), second.Tokens())
	assert.Equal(t, 1, oracle.calls, "cache hit must not touch the oracle")

	// The next request sees the post-mutation view.
	third, err := svc.Resolve(authz.WithRequestCache(context.Background()), authz.Actor{ID: "u1"}, course)
	require.NoError(t, err)
	assert.Empty(t, third.Tokens())
}

func TestResolve_StorageFailurePropagates(t *testing.T) {
	svc, assignments, _ := newFixture("course-v1:X+C+R")
	boom := errors.New("connection reset")
	assignments.failWith = boom

	_, err := svc.Resolve(context.Background(), authz.Actor{ID: "u1"}, coursekey.MustParse("course-v1:X+C+R"))
	assert.ErrorIs(t, err, boom)
}

func TestAssign_DuplicateRejectedStateUnchanged(t *testing.T) {
	svc, assignments, _ := newFixture("course-v1:X+C+R")
	ctx := context.Background()

	_, err := svc.Assign(ctx, "u1", "admin", authz.OrgScope("X"), "ops")
	require.NoError(t, err)

	_, err = svc.Assign(ctx, "u1", "admin", authz.OrgScope("X"), "ops")
	assert.ErrorIs(t, err, authz.ErrDuplicateAssignment)
	assert.Len(t, assignments.assignments, 1)
}

func TestAssign_UnknownRole(t *testing.T) {
	svc, _, _ := newFixture("course-v1:X+C+R")

	_, err := svc.Assign(context.Background(), "u1", "no_such_role", authz.InstanceScope(), "ops")
	assert.ErrorIs(t, err, authz.ErrRoleNotFound)
}

func TestAssign_InvalidScopes(t *testing.T) {
	svc, _, _ := newFixture("course-v1:X+C+R")
	ctx := context.Background()

	// Org inconsistent with the course's organization segment.
	_, err := svc.Assign(ctx, "u1", "admin", authz.Scope{
		Org:    "Y",
		Course: coursekey.MustParse("course-v1:X+C+R"),
	}, "ops")
	assert.ErrorIs(t, err, authz.ErrInvalidScope)

	// Library keys are not course scopes.
	_, err = svc.Assign(ctx, "u1", "admin", authz.CourseScope(coursekey.MustParse("library-v1:X+problems")), "ops")
	assert.ErrorIs(t, err, authz.ErrInvalidScope)

	// The anonymous sentinel cannot hold assignments.
	_, err = svc.Assign(ctx, "", "admin", authz.InstanceScope(), "ops")
	assert.ErrorIs(t, err, authz.ErrInvalidScope)
}

func TestAssign_CourseScopeWithMatchingOrgCasing(t *testing.T) {
	svc, _, _ := newFixture("course-v1:HarvardX+CS50+2024")

	_, err := svc.Assign(context.Background(), "u1", "admin", authz.Scope{
		Org:    "harvardx",
		Course: coursekey.MustParse("course-v1:HarvardX+CS50+2024"),
	}, "ops")
	assert.NoError(t, err)
}

func TestRevoke_NeverIncreasesPermissions(t *testing.T) {
	svc, _, _ := newFixture("course-v1:X+C+R")
	ctx := context.Background()
	course := coursekey.MustParse("course-v1:X+C+R")

	a, err := svc.Assign(ctx, "u1", "admin", authz.InstanceScope(), "ops")
	require.NoError(t, err)

	before, err := svc.Resolve(ctx, authz.Actor{ID: "u1"}, course)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, a.ID))

	after, err := svc.Resolve(ctx, authz.Actor{ID: "u1"}, course)
	require.NoError(t, err)
	for _, token := range after.Tokens() {
		assert.True(t, before.Has(token))
	}
	assert.Empty(t, after.Tokens())
}

func TestRevoke_Idempotent(t *testing.T) {
	svc, _, _ := newFixture("course-v1:X+C+R")
	ctx := context.Background()

	a, err := svc.Assign(ctx, "u1", "admin", authz.InstanceScope(), "ops")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, a.ID))
	assert.NoError(t, svc.Revoke(ctx, a.ID))
	assert.NoError(t, svc.Revoke(ctx, uuid.NewString()))
}

func TestResolve_ManyAssignmentsAcrossScopes(t *testing.T) {
	svc, _, _ := newFixture("course-v1:X+C+R")
	ctx := context.Background()
	course := coursekey.MustParse("course-v1:X+C+R")

	_, err := svc.Assign(ctx, "u1", "grader", authz.CourseScope(course), "ops")
	require.NoError(t, err)
	_, err = svc.Assign(ctx, "u1", "grader", authz.OrgScope("X"), "ops")
	require.NoError(t, err)
	_, err = svc.Assign(ctx, "u1", "admin", authz.InstanceScope(), "ops")
	require.NoError(t, err)

	perms, err := svc.Resolve(ctx, authz.Actor{ID: "u1"}, course)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{authz.PermManageContent, authz.PermViewGradebook}, perms.Tokens())
}
