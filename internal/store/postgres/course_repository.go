package postgres

import (
	"context"
	"fmt"

	"github.com/courseguard/courseguard/internal/coursekey"
)

// CourseRepository implements authz.CourseExistenceOracle over the
// course records table. Deployments that already expose a course
// catalog elsewhere can substitute their own oracle; this one exists so
// the service is self-contained.
type CourseRepository struct {
	db *DB
}

// NewCourseRepository creates a new course repository
func NewCourseRepository(db *DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Exists reports whether a course run is on record.
func (r *CourseRepository) Exists(ctx context.Context, course coursekey.CourseKey) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM course_authz_courses WHERE id = $1)
	`, course.String()).Scan(&exists)

	if err != nil {
		return false, fmt.Errorf("failed to check course existence: %w", err)
	}

	return exists, nil
}

// Upsert records a course run. Used by catalog sync and integration
// tests.
func (r *CourseRepository) Upsert(ctx context.Context, course coursekey.CourseKey, displayName string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO course_authz_courses (id, org, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name
	`, course.String(), course.Org(), displayName)

	if err != nil {
		return fmt.Errorf("failed to upsert course: %w", err)
	}

	return nil
}
