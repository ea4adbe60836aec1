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

import "sort"

// -----------------------------------------------------------------------------
// Role Name Constants
// Canonical names for the built-in roles seeded by bootstrap. Role names
// are immutable once assignments reference them.
// -----------------------------------------------------------------------------

const (
	// RoleInstructor has full control of a course run.
	RoleInstructor = "instructor"

	// RoleStaff can author content and run the course day to day, but
	// cannot touch advanced settings or other staff.
	RoleStaff = "staff"

	// RoleDataResearcher can download learner data and reports.
	RoleDataResearcher = "data_researcher"

	// RoleModerator manages the course discussion forums.
	RoleModerator = "moderator"
)

// Service tags restricting where a role is surfaced.
const (
	ServiceCMS = "cms"
	ServiceLMS = "lms"
)

// InstructorPermissions defines permissions for the instructor role.
var InstructorPermissions = []string{
	PermManageContent,
	PermManageCourseSettings,
	PermManageAdvancedSettings,
	PermManageCertificates,
	PermManageGrades,
	PermViewGradebook,
	PermAccessInstructorDashboard,
	PermAccessDataDownloads,
	PermManageStudents,
	PermManageModerators,
	PermViewAllContent,
	PermGeneralMasquerading,
}

// StaffPermissions defines permissions for the staff role.
var StaffPermissions = []string{
	PermManageContent,
	PermManageCourseSettings,
	PermManageGrades,
	PermViewGradebook,
	PermAccessInstructorDashboard,
	PermManageStudents,
	PermViewAllContent,
	PermGeneralMasquerading,
}

// DataResearcherPermissions defines permissions for the data_researcher role.
var DataResearcherPermissions = []string{
	PermAccessInstructorDashboard,
	PermAccessDataDownloads,
}

// ModeratorPermissions defines permissions for the moderator role.
var ModeratorPermissions = []string{
	PermManageModerators,
	PermViewAllContent,
}

// BuiltinRoles returns the roles bootstrap seeds into the store. IDs
// are assigned by the store on insert.
func BuiltinRoles() []*Role {
	return []*Role{
		{
			Name:        RoleInstructor,
			Description: "Full control of a course run.",
			Permissions: InstructorPermissions,
			Services:    []string{ServiceCMS, ServiceLMS},
		},
		{
			Name:        RoleStaff,
			Description: "Day-to-day course operation and authoring.",
			Permissions: StaffPermissions,
			Services:    []string{ServiceCMS, ServiceLMS},
		},
		{
			Name:        RoleDataResearcher,
			Description: "Learner data and report downloads.",
			Permissions: DataResearcherPermissions,
			Services:    []string{ServiceLMS},
		},
		{
			Name:        RoleModerator,
			Description: "Discussion forum moderation.",
			Permissions: ModeratorPermissions,
			Services:    []string{ServiceLMS},
		},
	}
}

// Registry is an immutable snapshot of the role → permission mapping,
// safe to share across requests without locking. Build one from
// RoleRepository.List output or from BuiltinRoles.
type Registry struct {
	byName map[string]*Role
}

// NewRegistry builds a registry from a role list. Later duplicates of a
// name win, matching unique-name store semantics.
func NewRegistry(roles []*Role) *Registry {
	byName := make(map[string]*Role, len(roles))
	for _, r := range roles {
		byName[r.Name] = r
	}
	return &Registry{byName: byName}
}

// PermissionsOf returns the permission set bound to a role name. Unknown
// roles yield the empty set.
func (g *Registry) PermissionsOf(role string) Set {
	r, ok := g.byName[role]
	if !ok {
		return NewSet()
	}
	return NewSet(r.Permissions...)
}

// RolesWith returns the names of all roles granting a permission token,
// in lexical order.
func (g *Registry) RolesWith(token string) []string {
	var names []string
	for name, r := range g.byName {
		if r.HasPermission(token) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
