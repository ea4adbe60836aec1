package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/courseguard/courseguard/internal/coursekey"
)

// Service resolves effective permissions and fronts assignment
// administration.
type Service struct {
	assignments AssignmentRepository
	roles       RoleRepository
	courses     CourseExistenceOracle
	observer    Observer
}

// NewService creates a new authorization service. The observer may be
// nil.
func NewService(
	assignments AssignmentRepository,
	roles RoleRepository,
	courses CourseExistenceOracle,
	observer Observer,
) *Service {
	return &Service{
		assignments: assignments,
		roles:       roles,
		courses:     courses,
		observer:    observer,
	}
}

// Resolve computes the effective permission set for an actor on one
// course: the union of the permission sets of every role the actor
// holds at instance scope, at the course's organization, or on the
// course itself.
//
// Anonymous actors and non-course keys resolve to the empty set. An
// unknown course is ErrCourseNotFound; only the rule layer converts
// that to a denial.
func (s *Service) Resolve(ctx context.Context, actor Actor, course coursekey.CourseKey) (Set, error) {
	if actor.IsAnonymous() {
		return NewSet(), nil
	}
	if !course.IsCourse() {
		return NewSet(), nil
	}

	cache, cached := requestCacheFrom(ctx)
	if cached {
		if perms, ok := cache.get(actor, course); ok {
			return perms, nil
		}
	}

	exists, err := s.courses.Exists(ctx, course)
	if err != nil {
		return nil, fmt.Errorf("failed to check course existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCourseNotFound, course)
	}

	roleNames, err := s.assignments.RoleNamesFor(ctx, actor.ID, course)
	if err != nil {
		return nil, fmt.Errorf("failed to list matching assignments: %w", err)
	}

	perms := NewSet()
	for _, name := range roleNames {
		role, err := s.roles.GetByName(ctx, name)
		if err != nil {
			// A role deleted between assignment lookup and here grants
			// nothing.
			if errors.Is(err, ErrRoleNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load role %q: %w", name, err)
		}
		for _, token := range role.Permissions {
			// Tokens from a newer deploy are skipped, not surfaced.
			if KnownPermission(token) {
				perms[token] = struct{}{}
			}
		}
	}

	if cached {
		cache.put(actor, course, perms)
	}
	return perms, nil
}

// Assign grants a role to an actor at a scope. The admin surface calling
// this is responsible for validating the administrator's own authority.
func (s *Service) Assign(ctx context.Context, actorID, roleName string, scope Scope, grantedBy string) (*Assignment, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: anonymous actors cannot hold assignments", ErrInvalidScope)
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.roles.GetByName(ctx, roleName); err != nil {
		return nil, err
	}

	assignment := &Assignment{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Role:      roleName,
		Scope:     scope,
		GrantedAt: time.Now().UTC(),
		GrantedBy: grantedBy,
	}
	if err := s.assignments.Grant(ctx, assignment); err != nil {
		return nil, err
	}

	if s.observer != nil {
		s.observer.RoleAssigned(ctx, assignment)
	}
	return assignment, nil
}

// Revoke removes one assignment. Revoking an unknown ID is not an
// error.
func (s *Service) Revoke(ctx context.Context, id string) error {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAssignmentNotFound) {
			return nil
		}
		return err
	}

	if err := s.assignments.Revoke(ctx, id); err != nil {
		if errors.Is(err, ErrAssignmentNotFound) {
			return nil
		}
		return err
	}

	if s.observer != nil {
		s.observer.RoleRevoked(ctx, assignment)
	}
	return nil
}

// ListAssignments returns every assignment an actor holds.
func (s *Service) ListAssignments(ctx context.Context, actorID string) ([]*Assignment, error) {
	assignments, err := s.assignments.ListForActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return assignments, nil
}

// Roles returns every role known to the store.
func (s *Service) Roles(ctx context.Context) ([]*Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

// RoleByName returns one role with its permission tokens.
func (s *Service) RoleByName(ctx context.Context, name string) (*Role, error) {
	return s.roles.GetByName(ctx, name)
}

// CreateRole registers a custom role. Every permission token must come
// from the catalog.
func (s *Service) CreateRole(ctx context.Context, role *Role) error {
	for _, token := range role.Permissions {
		if !KnownPermission(token) {
			return fmt.Errorf("unknown permission token %q", token)
		}
	}
	if err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, ErrRoleAlreadyExists) {
			return err
		}
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}
