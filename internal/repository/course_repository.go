package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// CourseRepository reads catalog descriptors. Catalog authoring happens elsewhere.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course together with its declared prerequisites.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, code, name, credits, amount, currency, instructor_id, capacity, enrolled, status, created_at, updated_at
        FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrCourseNotFound
		}
		return nil, fmt.Errorf("find course: %w", err)
	}

	const prereqQuery = `SELECT cp.prerequisite_id, c.code, c.name FROM course_prerequisites cp
        JOIN courses c ON c.id = cp.prerequisite_id WHERE cp.course_id = $1 ORDER BY c.code`
	var prerequisites []models.CoursePrerequisite
	if err := r.db.SelectContext(ctx, &prerequisites, prereqQuery, id); err != nil {
		return nil, fmt.Errorf("list course prerequisites: %w", err)
	}
	course.Prerequisites = prerequisites
	return &course, nil
}
