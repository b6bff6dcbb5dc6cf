package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func TestEnrollmentRepositoryCreateAssignsIdentity(t *testing.T) {
	db, mock, cleanup := newPostgresMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(anyArgs(15)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{StudentID: "stu-1", CourseID: "course-1", CourseCode: "CS101"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
	assert.False(t, enrollment.EnrollmentDate.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newPostgresMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(anyArgs(15)...).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "enrollments_active_student_course_key"})

	err := repo.Create(context.Background(), &models.Enrollment{StudentID: "stu-1", CourseID: "course-1"})
	assert.True(t, errors.Is(err, models.ErrDuplicateEnrollment))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreatePassesThroughOtherErrors(t *testing.T) {
	db, mock, cleanup := newPostgresMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(anyArgs(15)...).
		WillReturnError(&pq.Error{Code: "23503"})

	err := repo.Create(context.Background(), &models.Enrollment{StudentID: "stu-1", CourseID: "course-1"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrDuplicateEnrollment))
}

func TestEnrollmentRepositoryUpdateStatusDetectsStaleWrite(t *testing.T) {
	db, mock, cleanup := newPostgresMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	enrollment := &models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusConfirmed, PaymentStatus: models.PaymentStatusPending, ConfirmationDate: &now, UpdatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $3")).
		WithArgs("enr-1", models.EnrollmentStatusPending, models.EnrollmentStatusConfirmed, models.PaymentStatusPending,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), enrollment, models.EnrollmentStatusPending)
	assert.ErrorIs(t, err, models.ErrStaleEnrollmentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountByStudent(t *testing.T) {
	db, mock, cleanup := newPostgresMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE student_id = $1 AND status = ANY($2)")).
		WithArgs("stu-1", pq.Array([]string{"PENDING", "CONFIRMED", "PAID"})).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))

	total, err := repo.CountByStudent(context.Background(), "stu-1", models.LimitedEnrollmentStatuses)
	require.NoError(t, err)
	assert.Equal(t, 8, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryHoldingCounts(t *testing.T) {
	db, mock, cleanup := newPostgresMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT course_id, COUNT(*) AS total FROM enrollments WHERE status = ANY($1) GROUP BY course_id")).
		WithArgs(pq.Array([]string{"PENDING", "CONFIRMED", "PAID", "COMPLETED"})).
		WillReturnRows(sqlmock.NewRows([]string{"course_id", "total"}).AddRow("c1", 2).AddRow("c2", 7))

	counts, err := repo.HoldingCounts(context.Background(), models.ActiveEnrollmentStatuses)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"c1": 2, "c2": 7}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newPostgresMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	query := regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = ANY($3) LIMIT 1")
	mock.ExpectQuery(query).WithArgs("stu-1", "course-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))
	mock.ExpectQuery(query).WithArgs("stu-1", "course-2", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}))

	exists, err := repo.ExistsActive(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsActive(context.Background(), "stu-1", "course-2")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCompletedCourseIDsSkipsEmptyInput(t *testing.T) {
	db, mock, cleanup := newPostgresMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	ids, err := repo.CompletedCourseIDs(context.Background(), "stu-1", nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT course_id FROM enrollments")).
		WithArgs("stu-1", models.EnrollmentStatusCompleted, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"course_id"}).AddRow("cs101"))

	ids, err = repo.CompletedCourseIDs(context.Background(), "stu-1", []string{"cs101", "ma101"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cs101"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListScopesInstructor(t *testing.T) {
	db, mock, cleanup := newPostgresMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	where := " WHERE course_id IN (SELECT id FROM courses WHERE instructor_id = $1) AND status = $2"
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + enrollmentColumns + " FROM enrollments" + where + " ORDER BY enrollment_date DESC LIMIT 20 OFFSET 0")).
		WithArgs("t1", "PAID").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id"}).AddRow("e1", "c1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments" + where)).
		WithArgs("t1", "PAID").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.EnrollmentFilter{InstructorID: "t1", Status: models.EnrollmentStatusPaid})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c1", items[0].CourseID)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
