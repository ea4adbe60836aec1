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

// -----------------------------------------------------------------------------
// Permission Catalog
// The closed set of permission tokens this deployment understands.
// Tokens are immutable; renaming one requires a coordinated migration of
// the store's permission table. The store's bootstrap reconciles its
// rows to this catalog. Tokens the catalog does not recognize may still
// come back from the store after a rolling deploy; readers skip them.
// -----------------------------------------------------------------------------

// Permission token constants.
const (
	PermManageContent             = "manage_content"
	PermManageCourseSettings      = "manage_course_settings"
	PermManageAdvancedSettings    = "manage_advanced_settings"
	PermManageCertificates        = "manage_certificates"
	PermManageGrades              = "manage_grades"
	PermViewGradebook             = "view_gradebook"
	PermAccessInstructorDashboard = "access_instructor_dashboard"
	PermAccessDataDownloads       = "access_data_downloads"
	PermManageStudents            = "manage_students"
	PermManageModerators          = "manage_moderators"
	PermViewAllContent            = "view_all_content"
	PermGeneralMasquerading       = "general_masquerading"
)

// CatalogEntry carries a permission token and its display metadata.
type CatalogEntry struct {
	Name         string
	ReadableName string
	Description  string
}

// catalog is the authoritative entry list. Order is stable and entries
// are never mutated after init.
var catalog = []CatalogEntry{
	{PermManageContent, "Manage Content", "Author, edit and delete course content."},
	{PermManageCourseSettings, "Manage Course Settings", "Edit schedule, details and other course settings."},
	{PermManageAdvancedSettings, "Manage Advanced Settings", "Edit the course's advanced settings."},
	{PermManageCertificates, "Manage Certificates", "Configure and issue course certificates."},
	{PermManageGrades, "Manage Grades", "Override learner grades and grading policy."},
	{PermViewGradebook, "View Gradebook", "Read access to the course gradebook."},
	{PermAccessInstructorDashboard, "Access Instructor Dashboard", "Open the instructor dashboard for the course."},
	{PermAccessDataDownloads, "Access Data Downloads", "Download learner data and reports."},
	{PermManageStudents, "Manage Students", "Enroll, unenroll and manage learners."},
	{PermManageModerators, "Manage Moderators", "Appoint and remove discussion moderators."},
	{PermViewAllContent, "View All Content", "View unpublished and hidden course content."},
	{PermGeneralMasquerading, "General Masquerading", "View the course as an arbitrary learner."},
}

var catalogByName = func() map[string]CatalogEntry {
	m := make(map[string]CatalogEntry, len(catalog))
	for _, e := range catalog {
		m[e.Name] = e
	}
	return m
}()

// Catalog returns the full permission catalog in declaration order. The
// returned slice is a copy; entries themselves are referentially stable.
func Catalog() []CatalogEntry {
	out := make([]CatalogEntry, len(catalog))
	copy(out, catalog)
	return out
}

// CatalogEntryByName looks up one entry for display or admin use.
func CatalogEntryByName(token string) (CatalogEntry, bool) {
	e, ok := catalogByName[token]
	return e, ok
}

// KnownPermission reports whether the token is part of this build's
// catalog.
func KnownPermission(token string) bool {
	_, ok := catalogByName[token]
	return ok
}
