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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/courseguard/courseguard/internal/authz"
	"github.com/courseguard/courseguard/internal/coursekey"
)

// PostgreSQL error codes surfaced as domain errors.
const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// AssignmentRepository implements authz.AssignmentRepository
type AssignmentRepository struct {
	db *DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Grant persists a new assignment. The caller has already validated the
// scope shape; the partial unique indexes and the check constraint are
// the last line of defense.
func (r *AssignmentRepository) Grant(ctx context.Context, a *authz.Assignment) error {
	var org, courseID sql.NullString
	switch a.Scope.Kind() {
	case authz.ScopeCourse:
		courseID = sql.NullString{String: a.Scope.Course.String(), Valid: true}
		// Course rows always record their org, preserving the key's
		// exact casing unless the administrator supplied one.
		o := a.Scope.Org
		if o == "" {
			o = a.Scope.Course.Org()
		}
		org = sql.NullString{String: o, Valid: true}
	case authz.ScopeOrg:
		org = sql.NullString{String: a.Scope.Org, Valid: true}
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO course_authz_assignments (
			id, actor_id, role_id, org, course_id, granted_at, granted_by
		) VALUES ($1, $2, (SELECT id FROM course_authz_roles WHERE name = $3), $4, $5, $6, $7)
	`,
		a.ID, a.ActorID, a.Role, org, courseID, a.GrantedAt, a.GrantedBy,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return authz.ErrDuplicateAssignment
			case pgCheckViolation:
				return authz.ErrInvalidScope
			}
		}
		return fmt.Errorf("failed to grant role: %w", err)
	}

	return nil
}

// Revoke removes one assignment by ID.
func (r *AssignmentRepository) Revoke(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM course_authz_assignments WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to revoke assignment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return authz.ErrAssignmentNotFound
	}

	return nil
}

// GetByID retrieves one assignment.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*authz.Assignment, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT a.id, a.actor_id, r.name, a.org, a.course_id, a.granted_at, a.granted_by
		FROM course_authz_assignments a
		JOIN course_authz_roles r ON r.id = a.role_id
		WHERE a.id = $1
	`, id)

	assignment, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	return assignment, nil
}

// ListForActor retrieves every assignment held by an actor.
func (r *AssignmentRepository) ListForActor(ctx context.Context, actorID string) ([]*authz.Assignment, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT a.id, a.actor_id, r.name, a.org, a.course_id, a.granted_at, a.granted_by
		FROM course_authz_assignments a
		JOIN course_authz_roles r ON r.id = a.role_id
		WHERE a.actor_id = $1
		ORDER BY a.granted_at
	`, actorID)

	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*authz.Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, assignment)
	}

	return assignments, rows.Err()
}

// RoleNamesFor returns the names of all roles the actor holds whose
// scope matches the course: exact course match, case-insensitive org
// match on org-scope rows, or instance-wide.
func (r *AssignmentRepository) RoleNamesFor(ctx context.Context, actorID string, course coursekey.CourseKey) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT DISTINCT r.name
		FROM course_authz_assignments a
		JOIN course_authz_roles r ON r.id = a.role_id
		WHERE a.actor_id = $1
		  AND (
			a.course_id = $2
			OR (a.course_id IS NULL AND LOWER(a.org) = LOWER($3))
			OR (a.course_id IS NULL AND a.org IS NULL)
		  )
	`, actorID, course.String(), course.Org())

	if err != nil {
		return nil, fmt.Errorf("failed to list matching roles: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role name: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

func scanAssignment(row pgx.Row) (*authz.Assignment, error) {
	var a authz.Assignment
	var org, courseID sql.NullString

	if err := row.Scan(
		&a.ID, &a.ActorID, &a.Role, &org, &courseID, &a.GrantedAt, &a.GrantedBy,
	); err != nil {
		return nil, err
	}

	if courseID.Valid {
		course, err := coursekey.Parse(courseID.String)
		if err != nil {
			return nil, fmt.Errorf("stored course key %q: %w", courseID.String, err)
		}
		a.Scope.Course = course
	}
	if org.Valid {
		a.Scope.Org = org.String
	}

	return &a, nil
}
