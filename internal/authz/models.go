package authz

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/courseguard/courseguard/internal/coursekey"
)

// Domain errors
var (
	ErrCourseNotFound      = errors.New("course not found")
	ErrRoleNotFound        = errors.New("role not found")
	ErrRoleAlreadyExists   = errors.New("role already exists")
	ErrAssignmentNotFound  = errors.New("assignment not found")
	ErrDuplicateAssignment = errors.New("assignment already exists")
	ErrInvalidScope        = errors.New("invalid assignment scope")
	ErrUnsupportedTarget   = errors.New("unsupported permission target")
)

// Actor is the subject of a permission check. The zero value is the
// anonymous sentinel, which never matches any assignment.
type Actor struct {
	ID string
}

// Anonymous returns the anonymous actor sentinel.
func Anonymous() Actor { return Actor{} }

// IsAnonymous reports whether the actor is the anonymous sentinel.
func (a Actor) IsAnonymous() bool { return a.ID == "" }

// ScopeKind names one of the three breadths an assignment can apply at.
type ScopeKind string

const (
	ScopeInstance ScopeKind = "instance"
	ScopeOrg      ScopeKind = "organization"
	ScopeCourse   ScopeKind = "course"
)

// Scope is the breadth of one assignment. Exactly three shapes are
// legal: course set (org optional but consistent), org set without a
// course, or neither.
type Scope struct {
	Org    string
	Course coursekey.CourseKey
}

// InstanceScope applies to every course on the instance.
func InstanceScope() Scope { return Scope{} }

// OrgScope applies to every course owned by the organization.
func OrgScope(org string) Scope { return Scope{Org: org} }

// CourseScope applies to exactly one course run.
func CourseScope(course coursekey.CourseKey) Scope { return Scope{Course: course} }

// Kind returns the shape of the scope.
func (s Scope) Kind() ScopeKind {
	switch {
	case !s.Course.IsZero():
		return ScopeCourse
	case s.Org != "":
		return ScopeOrg
	default:
		return ScopeInstance
	}
}

// Validate checks the scope against the three legal shapes. A course
// scope may carry an explicit org, but it must match the course's own
// organization segment (case-insensitively). Library keys are not
// valid course scopes.
func (s Scope) Validate() error {
	if s.Course.IsZero() {
		return nil
	}
	if !s.Course.IsCourse() {
		return ErrInvalidScope
	}
	if s.Org != "" && !strings.EqualFold(s.Org, s.Course.Org()) {
		return ErrInvalidScope
	}
	return nil
}

// Role is a named bundle of permission tokens, optionally tagged with
// the services it is meaningful in.
type Role struct {
	ID          string
	Name        string
	Description string
	Permissions []string
	Services    []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasPermission checks if the role grants a specific permission token.
func (r *Role) HasPermission(token string) bool {
	for _, p := range r.Permissions {
		if p == token {
			return true
		}
	}
	return false
}

// Assignment is a persisted binding of (actor, role, scope).
type Assignment struct {
	ID        string
	ActorID   string
	Role      string
	Scope     Scope
	GrantedAt time.Time
	GrantedBy string
}

// Set is an unordered collection of permission tokens.
type Set map[string]struct{}

// NewSet builds a set from tokens.
func NewSet(tokens ...string) Set {
	s := make(Set, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// Has reports membership of a token.
func (s Set) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// Tokens returns the members in lexical order.
func (s Set) Tokens() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// AssignmentRepository defines the interface for assignment persistence.
type AssignmentRepository interface {
	// Grant persists a new assignment. Returns ErrDuplicateAssignment
	// for an identical (actor, role, scope) tuple and ErrInvalidScope
	// when the storage-level shape constraint rejects the row.
	Grant(ctx context.Context, assignment *Assignment) error

	// Revoke removes one assignment by ID. Returns ErrAssignmentNotFound
	// when no such record exists; callers treat that as success.
	Revoke(ctx context.Context, id string) error

	// GetByID retrieves one assignment.
	GetByID(ctx context.Context, id string) (*Assignment, error)

	// ListForActor retrieves every assignment held by an actor.
	ListForActor(ctx context.Context, actorID string) ([]*Assignment, error)

	// RoleNamesFor returns the names of all roles the actor holds whose
	// scope matches the course: exact course match, organization match
	// (case-insensitive), or instance-wide.
	RoleNamesFor(ctx context.Context, actorID string, course coursekey.CourseKey) ([]string, error)
}

// RoleRepository defines the interface for role persistence.
type RoleRepository interface {
	// Create creates a new role. Returns ErrRoleAlreadyExists on a
	// name collision.
	Create(ctx context.Context, role *Role) error

	// GetByName retrieves a role with its permission tokens.
	GetByName(ctx context.Context, name string) (*Role, error)

	// List retrieves all roles.
	List(ctx context.Context) ([]*Role, error)
}

// CourseExistenceOracle answers whether a course run exists. The
// resolver consults it before touching assignments and does not cache
// its answers itself.
type CourseExistenceOracle interface {
	Exists(ctx context.Context, course coursekey.CourseKey) (bool, error)
}

// Observer is notified after assignment mutations commit. Notifications
// are best-effort; implementations must not block.
type Observer interface {
	RoleAssigned(ctx context.Context, assignment *Assignment)
	RoleRevoked(ctx context.Context, assignment *Assignment)
}
