package models

import (
	"fmt"
	"time"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusConfirmed EnrollmentStatus = "CONFIRMED"
	EnrollmentStatusPaid      EnrollmentStatus = "PAID"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
	EnrollmentStatusFailed    EnrollmentStatus = "FAILED"
)

// PaymentStatus tracks the payment side of an enrollment.
type PaymentStatus string

// Possible payment statuses.
const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

var (
	// ActiveEnrollmentStatuses hold a seat and are unique per student and course.
	ActiveEnrollmentStatuses = []EnrollmentStatus{
		EnrollmentStatusPending, EnrollmentStatusConfirmed, EnrollmentStatusPaid, EnrollmentStatusCompleted,
	}
	// LimitedEnrollmentStatuses count toward the per-student enrollment limit.
	LimitedEnrollmentStatuses = []EnrollmentStatus{
		EnrollmentStatusPending, EnrollmentStatusConfirmed, EnrollmentStatusPaid,
	}
)

// Enrollment is the durable record of a student's seat in a course. Student and course
// attributes are snapshotted at creation time.
type Enrollment struct {
	ID                 string           `db:"id" json:"id"`
	StudentID          string           `db:"student_id" json:"student_id"`
	CourseID           string           `db:"course_id" json:"course_id"`
	StudentName        string           `db:"student_name" json:"student_name"`
	StudentEmail       string           `db:"student_email" json:"student_email"`
	CourseCode         string           `db:"course_code" json:"course_code"`
	CourseName         string           `db:"course_name" json:"course_name"`
	Credits            int              `db:"credits" json:"credits"`
	Amount             int64            `db:"amount" json:"amount"`
	Currency           string           `db:"currency" json:"currency"`
	Status             EnrollmentStatus `db:"status" json:"status"`
	PaymentStatus      PaymentStatus    `db:"payment_status" json:"payment_status"`
	PaymentID          *string          `db:"payment_id" json:"payment_id,omitempty"`
	EnrollmentDate     time.Time        `db:"enrollment_date" json:"enrollment_date"`
	ConfirmationDate   *time.Time       `db:"confirmation_date" json:"confirmation_date,omitempty"`
	PaymentDate        *time.Time       `db:"payment_date" json:"payment_date,omitempty"`
	CompletionDate     *time.Time       `db:"completion_date" json:"completion_date,omitempty"`
	Grade              *string          `db:"grade" json:"grade,omitempty"`
	Attendance         *float64         `db:"attendance" json:"attendance,omitempty"`
	CancellationDate   *time.Time       `db:"cancellation_date" json:"cancellation_date,omitempty"`
	CancellationReason *string          `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledBy        *string          `db:"cancelled_by" json:"-"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// NewEnrollment builds a pending enrollment carrying the student and course snapshot.
func NewEnrollment(student *Student, course *Course, now time.Time) *Enrollment {
	return &Enrollment{
		StudentID:      student.ID,
		CourseID:       course.ID,
		StudentName:    student.FullName,
		StudentEmail:   student.Email,
		CourseCode:     course.Code,
		CourseName:     course.Name,
		Credits:        course.Credits,
		Amount:         course.Amount,
		Currency:       course.Currency,
		Status:         EnrollmentStatusPending,
		PaymentStatus:  PaymentStatusPending,
		EnrollmentDate: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsActive reports whether the enrollment occupies the student/course uniqueness slot.
func (e *Enrollment) IsActive() bool {
	return statusIn(e.Status, ActiveEnrollmentStatuses)
}

// CanBeCancelled reports whether Cancel is a legal transition.
func (e *Enrollment) CanBeCancelled() bool {
	return e.Status == EnrollmentStatusPending || e.Status == EnrollmentStatusConfirmed || e.Status == EnrollmentStatusPaid
}

// RequiresPayment reports whether the enrollment is still awaiting payment.
func (e *Enrollment) RequiresPayment() bool {
	return e.PaymentStatus == PaymentStatusPending &&
		(e.Status == EnrollmentStatusPending || e.Status == EnrollmentStatusConfirmed)
}

// Confirm moves a pending enrollment to confirmed.
func (e *Enrollment) Confirm(now time.Time) error {
	if e.Status != EnrollmentStatusPending {
		return e.transitionError(EnrollmentStatusConfirmed)
	}
	e.Status = EnrollmentStatusConfirmed
	e.ConfirmationDate = &now
	e.UpdatedAt = now
	return nil
}

// MarkAsPaid records a successful payment.
func (e *Enrollment) MarkAsPaid(paymentID string, now time.Time) error {
	if !e.RequiresPayment() {
		return e.transitionError(EnrollmentStatusPaid)
	}
	e.Status = EnrollmentStatusPaid
	e.PaymentStatus = PaymentStatusPaid
	e.PaymentID = &paymentID
	e.PaymentDate = &now
	e.UpdatedAt = now
	return nil
}

// Complete closes a paid enrollment with its final grade and attendance percentage.
func (e *Enrollment) Complete(grade string, attendance float64, now time.Time) error {
	if e.Status != EnrollmentStatusPaid {
		return e.transitionError(EnrollmentStatusCompleted)
	}
	e.Status = EnrollmentStatusCompleted
	e.Grade = &grade
	e.Attendance = &attendance
	e.CompletionDate = &now
	e.UpdatedAt = now
	return nil
}

// Cancel terminates the enrollment. A paid enrollment is flagged for refund.
func (e *Enrollment) Cancel(reason, actorID string, now time.Time) error {
	if !e.CanBeCancelled() {
		return e.transitionError(EnrollmentStatusCancelled)
	}
	if e.PaymentStatus == PaymentStatusPaid {
		e.PaymentStatus = PaymentStatusRefunded
	}
	e.Status = EnrollmentStatusCancelled
	e.CancellationDate = &now
	if reason != "" {
		e.CancellationReason = &reason
	}
	if actorID != "" {
		e.CancelledBy = &actorID
	}
	e.UpdatedAt = now
	return nil
}

// MarkFailed records a pending enrollment whose creation never completed.
func (e *Enrollment) MarkFailed(now time.Time) error {
	if e.Status != EnrollmentStatusPending {
		return e.transitionError(EnrollmentStatusFailed)
	}
	e.Status = EnrollmentStatusFailed
	e.UpdatedAt = now
	return nil
}

func (e *Enrollment) transitionError(to EnrollmentStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, to)
}

func statusIn(status EnrollmentStatus, set []EnrollmentStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID    string
	CourseID     string
	InstructorID string
	Status       EnrollmentStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
