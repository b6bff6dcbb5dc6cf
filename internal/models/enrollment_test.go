package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingEnrollment() *Enrollment {
	student := &Student{ID: "student-1", FullName: "Ada Lovelace", Email: "ada@example.com", Active: true}
	course := &Course{ID: "course-1", Code: "CS101", Name: "Intro", Credits: 3, Amount: 150000, Currency: "IDR"}
	return NewEnrollment(student, course, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
}

func TestNewEnrollmentSnapshotsCourseAndStudent(t *testing.T) {
	e := newPendingEnrollment()
	assert.Equal(t, EnrollmentStatusPending, e.Status)
	assert.Equal(t, PaymentStatusPending, e.PaymentStatus)
	assert.Equal(t, "Ada Lovelace", e.StudentName)
	assert.Equal(t, "CS101", e.CourseCode)
	assert.Equal(t, int64(150000), e.Amount)
	assert.True(t, e.IsActive())
	assert.True(t, e.RequiresPayment())
}

func TestEnrollmentHappyPathLifecycle(t *testing.T) {
	e := newPendingEnrollment()
	now := time.Now().UTC()

	require.NoError(t, e.Confirm(now))
	require.NotNil(t, e.ConfirmationDate)
	assert.True(t, e.RequiresPayment())

	require.NoError(t, e.MarkAsPaid("pay-1", now))
	assert.Equal(t, EnrollmentStatusPaid, e.Status)
	assert.Equal(t, PaymentStatusPaid, e.PaymentStatus)
	assert.False(t, e.RequiresPayment())

	require.NoError(t, e.Complete("A", 92.5, now))
	assert.Equal(t, EnrollmentStatusCompleted, e.Status)
	assert.Equal(t, 92.5, *e.Attendance)
	assert.True(t, e.IsActive())
	assert.False(t, e.CanBeCancelled())
}

func TestEnrollmentIllegalTransitions(t *testing.T) {
	now := time.Now().UTC()

	e := newPendingEnrollment()
	err := e.Complete("A", 100, now)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	require.NoError(t, e.Confirm(now))
	assert.True(t, errors.Is(e.Confirm(now), ErrInvalidTransition))
	assert.True(t, errors.Is(e.MarkFailed(now), ErrInvalidTransition))

	require.NoError(t, e.Cancel("schedule clash", "student-1", now))
	assert.True(t, errors.Is(e.Cancel("again", "student-1", now), ErrInvalidTransition))
	assert.True(t, errors.Is(e.MarkAsPaid("pay-2", now), ErrInvalidTransition))
}

func TestCancelPaidEnrollmentFlagsRefund(t *testing.T) {
	now := time.Now().UTC()
	e := newPendingEnrollment()
	require.NoError(t, e.MarkAsPaid("pay-1", now))

	require.NoError(t, e.Cancel("", "admin-1", now))
	assert.Equal(t, EnrollmentStatusCancelled, e.Status)
	assert.Equal(t, PaymentStatusRefunded, e.PaymentStatus)
	assert.Nil(t, e.CancellationReason)
	require.NotNil(t, e.CancelledBy)
	assert.Equal(t, "admin-1", *e.CancelledBy)
	assert.False(t, e.IsActive())
}

func TestMarkFailedOnlyFromPending(t *testing.T) {
	e := newPendingEnrollment()
	require.NoError(t, e.MarkFailed(time.Now()))
	assert.Equal(t, EnrollmentStatusFailed, e.Status)
	assert.False(t, e.CanBeCancelled())
	assert.False(t, e.IsActive())
}

func TestCourseSeatAvailableSlotsNeverNegative(t *testing.T) {
	assert.Equal(t, 2, CourseSeat{Capacity: 5, Enrolled: 3}.AvailableSlots())
	assert.Equal(t, 0, CourseSeat{Capacity: 1, Enrolled: 4}.AvailableSlots())
}
