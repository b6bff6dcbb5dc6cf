package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

const uniqueViolation = "23505"

const enrollmentColumns = `id, student_id, course_id, student_name, student_email, course_code, course_name,
        credits, amount, currency, status, payment_status, payment_id, enrollment_date, confirmation_date,
        payment_date, completion_date, grade, attendance, cancellation_date, cancellation_reason, cancelled_by,
        created_at, updated_at`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create persists a new enrollment record. A second active enrollment for the same student
// and course is rejected by the partial unique index and reported as ErrDuplicateEnrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrollmentDate.IsZero() {
		enrollment.EnrollmentDate = now
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = enrollment.CreatedAt
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}
	if enrollment.PaymentStatus == "" {
		enrollment.PaymentStatus = models.PaymentStatusPending
	}

	const query = `INSERT INTO enrollments (id, student_id, course_id, student_name, student_email, course_code, course_name,
        credits, amount, currency, status, payment_status, enrollment_date, created_at, updated_at)
        VALUES (:id, :student_id, :course_id, :student_name, :student_email, :course_code, :course_name,
        :credits, :amount, :currency, :status, :payment_status, :enrollment_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create enrollment: %w", models.ErrDuplicateEnrollment)
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// UpdateStatus writes the lifecycle fields of an enrollment, guarded on the status it was
// read with. ErrStaleEnrollmentStatus is returned when another writer moved it first.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, enrollment *models.Enrollment, previous models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $3, payment_status = $4, payment_id = $5, confirmation_date = $6,
        payment_date = $7, completion_date = $8, grade = $9, attendance = $10, cancellation_date = $11,
        cancellation_reason = $12, cancelled_by = $13, updated_at = $14
        WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query,
		enrollment.ID, previous, enrollment.Status, enrollment.PaymentStatus, enrollment.PaymentID,
		enrollment.ConfirmationDate, enrollment.PaymentDate, enrollment.CompletionDate, enrollment.Grade,
		enrollment.Attendance, enrollment.CancellationDate, enrollment.CancellationReason, enrollment.CancelledBy,
		enrollment.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update enrollment status: %w", models.ErrDuplicateEnrollment)
		}
		return fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if affected == 0 {
		return models.ErrStaleEnrollmentStatus
	}
	return nil
}

// CountByStudent counts a student's enrollments in any of the given statuses.
func (r *EnrollmentRepository) CountByStudent(ctx context.Context, studentID string, statuses []models.EnrollmentStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE student_id = $1 AND status = ANY($2)`
	var total int
	if err := r.db.GetContext(ctx, &total, query, studentID, statusArray(statuses)); err != nil {
		return 0, fmt.Errorf("count student enrollments: %w", err)
	}
	return total, nil
}

// ExistsActive reports whether the student holds an active enrollment in the course.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = ANY($3) LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID, statusArray(models.ActiveEnrollmentStatuses)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// CompletedCourseIDs returns the subset of courseIDs the student has completed.
func (r *EnrollmentRepository) CompletedCourseIDs(ctx context.Context, studentID string, courseIDs []string) ([]string, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT DISTINCT course_id FROM enrollments WHERE student_id = $1 AND status = $2 AND course_id = ANY($3)`
	var completed []string
	if err := r.db.SelectContext(ctx, &completed, query, studentID, models.EnrollmentStatusCompleted, pq.Array(courseIDs)); err != nil {
		return nil, fmt.Errorf("list completed courses: %w", err)
	}
	return completed, nil
}

// CountByCourse counts enrollments of a course in any of the given statuses.
func (r *EnrollmentRepository) CountByCourse(ctx context.Context, courseID string, statuses []models.EnrollmentStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = ANY($2)`
	var total int
	if err := r.db.GetContext(ctx, &total, query, courseID, statusArray(statuses)); err != nil {
		return 0, fmt.Errorf("count course enrollments: %w", err)
	}
	return total, nil
}

// HoldingCounts returns, per course, the number of enrollments in the given statuses.
// Courses without any are absent from the map.
func (r *EnrollmentRepository) HoldingCounts(ctx context.Context, statuses []models.EnrollmentStatus) (map[string]int, error) {
	const query = `SELECT course_id, COUNT(*) AS total FROM enrollments WHERE status = ANY($1) GROUP BY course_id`
	var rows []struct {
		CourseID string `db:"course_id"`
		Total    int    `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, statusArray(statuses)); err != nil {
		return nil, fmt.Errorf("count holding enrollments: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.CourseID] = row.Total
	}
	return counts, nil
}

// ListByCourse returns a course's enrollments in the given statuses ordered by student name.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string, statuses []models.EnrollmentStatus) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE course_id = $1 AND status = ANY($2) ORDER BY student_name ASC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, courseID, statusArray(statuses)); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	return enrollments, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id IN (SELECT id FROM courses WHERE instructor_id = $%d)", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrollment_date": "enrollment_date",
		"student_name":    "student_name",
		"course_code":     "course_code",
		"status":          "status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "enrollment_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM enrollments%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		enrollmentColumns, clause, orderBy, order, size, offset)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM enrollments" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

func statusArray(statuses []models.EnrollmentStatus) interface{} {
	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}
	return pq.Array(values)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
