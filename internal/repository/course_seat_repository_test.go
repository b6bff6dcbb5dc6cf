package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

func newPostgresMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

var (
	lockSeatQuery   = regexp.QuoteMeta(`SELECT id, capacity, enrolled, status FROM courses WHERE id = $1 FOR UPDATE`)
	updateSeatQuery = regexp.QuoteMeta(`UPDATE courses SET enrolled = $2, updated_at = NOW() WHERE id = $1`)
	seatColumns     = []string{"id", "capacity", "enrolled", "status"}
)

func TestCourseSeatRepositoryReserveLocksAndIncrements(t *testing.T) {
	db, mock, cleanup := newPostgresMock(t)
	defer cleanup()
	repo := NewCourseSeatRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSeatQuery).WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows(seatColumns).AddRow("course-1", 30, 29, "ACTIVE"))
	mock.ExpectExec(updateSeatQuery).WithArgs("course-1", 30).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	seat, err := repo.Reserve(context.Background(), "course-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 30, seat.Enrolled)
	assert.Equal(t, 0, seat.AvailableSlots())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseSeatRepositoryReserveRejectsWithoutWriting(t *testing.T) {
	cases := []struct {
		name    string
		rows    *sqlmock.Rows
		rowErr  error
		wantErr error
	}{
		{name: "full", rows: sqlmock.NewRows(seatColumns).AddRow("course-1", 1, 1, "ACTIVE"), wantErr: models.ErrInsufficientCapacity},
		{name: "inactive", rows: sqlmock.NewRows(seatColumns).AddRow("course-1", 10, 0, "INACTIVE"), wantErr: models.ErrCourseInactive},
		{name: "missing", rowErr: sql.ErrNoRows, wantErr: models.ErrCourseNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, cleanup := newPostgresMock(t)
			defer cleanup()
			repo := NewCourseSeatRepository(db)

			mock.ExpectBegin()
			q := mock.ExpectQuery(lockSeatQuery).WithArgs("course-1")
			if tc.rowErr != nil {
				q.WillReturnError(tc.rowErr)
			} else {
				q.WillReturnRows(tc.rows)
			}
			mock.ExpectRollback()

			_, err := repo.Reserve(context.Background(), "course-1", 1)
			assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCourseSeatRepositoryReleaseClampsInSQL(t *testing.T) {
	db, mock, cleanup := newPostgresMock(t)
	defer cleanup()
	repo := NewCourseSeatRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE courses SET enrolled = GREATEST(enrolled - $2, 0)`)).
		WithArgs("course-1", 2).
		WillReturnRows(sqlmock.NewRows(seatColumns).AddRow("course-1", 5, 0, "ACTIVE"))

	seat, err := repo.Release(context.Background(), "course-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 0, seat.Enrolled)
	assert.Equal(t, 5, seat.AvailableSlots())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseSeatRepositoryReleaseUnknownCourse(t *testing.T) {
	db, mock, cleanup := newPostgresMock(t)
	defer cleanup()
	repo := NewCourseSeatRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE courses SET enrolled`)).
		WithArgs("ghost", 1).
		WillReturnRows(sqlmock.NewRows(seatColumns))

	_, err := repo.Release(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, models.ErrCourseNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
