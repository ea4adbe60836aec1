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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/courseguard/courseguard/internal/authz"
)

// RoleRepository implements authz.RoleRepository
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

const roleSelect = `
	SELECT r.id, r.name, r.description, r.created_at, r.updated_at,
	       (SELECT COALESCE(array_agg(p.name ORDER BY p.name), '{}')
	        FROM course_authz_role_permissions rp
	        JOIN course_authz_permissions p ON p.id = rp.permission_id
	        WHERE rp.role_id = r.id),
	       (SELECT COALESCE(array_agg(s.service ORDER BY s.service), '{}')
	        FROM course_authz_role_services s
	        WHERE s.role_id = r.id)
	FROM course_authz_roles r
`

// Create creates a role together with its permission links and service
// tags. Permission tokens must already exist in the permission table.
func (r *RoleRepository) Create(ctx context.Context, role *authz.Role) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err = tx.Exec(ctx, `
		INSERT INTO course_authz_roles (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, role.ID, role.Name, role.Description, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return authz.ErrRoleAlreadyExists
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	for _, token := range role.Permissions {
		result, err := tx.Exec(ctx, `
			INSERT INTO course_authz_role_permissions (role_id, permission_id)
			SELECT $1, id FROM course_authz_permissions WHERE name = $2
		`, role.ID, token)
		if err != nil {
			return fmt.Errorf("failed to link permission %q: %w", token, err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("unknown permission token %q", token)
		}
	}

	for _, service := range role.Services {
		if _, err := tx.Exec(ctx, `
			INSERT INTO course_authz_role_services (role_id, service)
			VALUES ($1, $2)
		`, role.ID, service); err != nil {
			return fmt.Errorf("failed to tag service %q: %w", service, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit role: %w", err)
	}
	return nil
}

// GetByName retrieves a role with its permission tokens.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*authz.Role, error) {
	var role authz.Role

	err := r.db.pool.QueryRow(ctx, roleSelect+" WHERE r.name = $1", name).Scan(
		&role.ID, &role.Name, &role.Description,
		&role.CreatedAt, &role.UpdatedAt,
		&role.Permissions, &role.Services,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}

// List retrieves all roles.
func (r *RoleRepository) List(ctx context.Context) ([]*authz.Role, error) {
	rows, err := r.db.pool.Query(ctx, roleSelect+" ORDER BY r.name")
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*authz.Role
	for rows.Next() {
		var role authz.Role
		if err := rows.Scan(
			&role.ID, &role.Name, &role.Description,
			&role.CreatedAt, &role.UpdatedAt,
			&role.Permissions, &role.Services,
		); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, &role)
	}

	return roles, rows.Err()
}
