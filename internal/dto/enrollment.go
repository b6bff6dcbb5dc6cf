package dto

import "github.com/noah-isme/course-enrollment-api/internal/models"

// CreateEnrollmentRequest is the payload for requesting a seat in a course. StudentID is
// honoured for staff only; students always enroll themselves.
type CreateEnrollmentRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	StudentID string `json:"student_id,omitempty"`
}

// CancelEnrollmentRequest carries an optional cancellation reason.
type CancelEnrollmentRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// MarkPaidRequest records a settled payment reference.
type MarkPaidRequest struct {
	PaymentID string `json:"payment_id" validate:"required,max=128"`
}

// CompleteEnrollmentRequest closes an enrollment with its final outcome.
type CompleteEnrollmentRequest struct {
	Grade      string  `json:"grade" validate:"required,max=8"`
	Attendance float64 `json:"attendance" validate:"gte=0,lte=100"`
}

// ValidateEnrollmentRequest asks for a full admission report without enrolling. StudentID
// follows the same rules as CreateEnrollmentRequest.
type ValidateEnrollmentRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	StudentID string `json:"student_id,omitempty"`
}

// CourseSummary is the course part of an enrollment response.
type CourseSummary struct {
	ID             string `json:"id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	AvailableSlots int    `json:"available_slots"`
}

// EnrollmentResult is returned after a successful enrollment.
type EnrollmentResult struct {
	Enrollment *models.Enrollment `json:"enrollment"`
	Course     CourseSummary      `json:"course"`
}

// EnrollmentListQuery maps list query parameters.
type EnrollmentListQuery struct {
	StudentID string `form:"student_id"`
	CourseID  string `form:"course_id"`
	Status    string `form:"status"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order"`
}
