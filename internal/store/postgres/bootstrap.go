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
	"log/slog"

	"github.com/google/uuid"

	"github.com/courseguard/courseguard/internal/authz"
)

// Bootstrap reconciles the store to the in-code catalog: it inserts
// permission rows missing from the permission table, seeds the built-in
// roles, and adds missing permission links to existing built-in roles.
//
// Rows the catalog no longer mentions are left in place; a newer deploy
// may still reference them, and readers skip unknown tokens anyway.
// Bootstrap is idempotent and safe to run on every deploy.
func Bootstrap(ctx context.Context, db *DB) error {
	for _, entry := range authz.Catalog() {
		result, err := db.pool.Exec(ctx, `
			INSERT INTO course_authz_permissions (id, name, readable_name, description)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO UPDATE
			SET readable_name = EXCLUDED.readable_name,
			    description = EXCLUDED.description
		`, uuid.NewString(), entry.Name, entry.ReadableName, entry.Description)
		if err != nil {
			return fmt.Errorf("failed to reconcile permission %q: %w", entry.Name, err)
		}
		if result.RowsAffected() > 0 {
			slog.DebugContext(ctx, "reconciled permission", slog.String("permission", entry.Name))
		}
	}

	roles := NewRoleRepository(db)
	for _, role := range authz.BuiltinRoles() {
		err := roles.Create(ctx, role)
		switch {
		case err == nil:
			slog.InfoContext(ctx, "seeded built-in role", slog.String("role", role.Name))
		case errors.Is(err, authz.ErrRoleAlreadyExists):
			if err := reconcileRolePermissions(ctx, db, role); err != nil {
				return err
			}
		default:
			return fmt.Errorf("failed to seed role %q: %w", role.Name, err)
		}
	}

	return nil
}

// reconcileRolePermissions adds permission links a built-in role gained
// since the last deploy. Links for removed tokens are kept; dropping a
// grant is a deliberate migration, not a bootstrap side effect.
func reconcileRolePermissions(ctx context.Context, db *DB, role *authz.Role) error {
	for _, token := range role.Permissions {
		_, err := db.pool.Exec(ctx, `
			INSERT INTO course_authz_role_permissions (role_id, permission_id)
			SELECT r.id, p.id
			FROM course_authz_roles r, course_authz_permissions p
			WHERE r.name = $1 AND p.name = $2
			ON CONFLICT DO NOTHING
		`, role.Name, token)
		if err != nil {
			return fmt.Errorf("failed to reconcile %q on role %q: %w", token, role.Name, err)
		}
	}
	return nil
}
