package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// CourseSeatRepository keeps seat counts on the courses table. Reserve takes a row lock so
// concurrent reservations for the same course serialize while other courses proceed.
type CourseSeatRepository struct {
	db *sqlx.DB
}

// NewCourseSeatRepository constructs the Postgres seat store.
func NewCourseSeatRepository(db *sqlx.DB) *CourseSeatRepository {
	return &CourseSeatRepository{db: db}
}

// Get returns the current seat counts for a course.
func (r *CourseSeatRepository) Get(ctx context.Context, courseID string) (*models.CourseSeat, error) {
	const query = `SELECT id, capacity, enrolled, status FROM courses WHERE id = $1`
	var seat models.CourseSeat
	if err := r.db.GetContext(ctx, &seat, query, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrCourseNotFound
		}
		return nil, fmt.Errorf("get course seat: %w", err)
	}
	return &seat, nil
}

// Reserve increments enrolled by quantity when the course is active and has room.
func (r *CourseSeatRepository) Reserve(ctx context.Context, courseID string, quantity int) (result *models.CourseSeat, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin seat reservation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const lockQuery = `SELECT id, capacity, enrolled, status FROM courses WHERE id = $1 FOR UPDATE`
	var seat models.CourseSeat
	if err = tx.GetContext(ctx, &seat, lockQuery, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = models.ErrCourseNotFound
			return nil, err
		}
		err = fmt.Errorf("lock course seat: %w", err)
		return nil, err
	}

	if seat.Status != models.CourseStatusActive {
		err = models.ErrCourseInactive
		return nil, err
	}
	if seat.Enrolled+quantity > seat.Capacity {
		err = models.ErrInsufficientCapacity
		return nil, err
	}

	seat.Enrolled += quantity
	const updateQuery = `UPDATE courses SET enrolled = $2, updated_at = NOW() WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, courseID, seat.Enrolled); err != nil {
		err = fmt.Errorf("reserve course seat: %w", err)
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("commit seat reservation: %w", err)
		return nil, err
	}
	return &seat, nil
}

// Release decrements enrolled by quantity, clamped at zero.
func (r *CourseSeatRepository) Release(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error) {
	const query = `UPDATE courses SET enrolled = GREATEST(enrolled - $2, 0), updated_at = NOW()
        WHERE id = $1 RETURNING id, capacity, enrolled, status`
	var seat models.CourseSeat
	if err := r.db.GetContext(ctx, &seat, query, courseID, quantity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrCourseNotFound
		}
		return nil, fmt.Errorf("release course seat: %w", err)
	}
	return &seat, nil
}

// List returns seat counts for every course. Used to hydrate the Redis seat store.
func (r *CourseSeatRepository) List(ctx context.Context) ([]models.CourseSeat, error) {
	const query = `SELECT id, capacity, enrolled, status FROM courses ORDER BY id`
	var seats []models.CourseSeat
	if err := r.db.SelectContext(ctx, &seats, query); err != nil {
		return nil, fmt.Errorf("list course seats: %w", err)
	}
	return seats, nil
}
