package service

import (
	"context"
	"errors"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

// DefaultMaxActiveEnrollments caps concurrent PENDING, CONFIRMED and PAID enrollments.
const DefaultMaxActiveEnrollments = 8

// Canonical check names. They are reported as validation_strategy on rejected requests.
const (
	CheckAvailability        = "availability"
	CheckPrerequisites       = "prerequisites"
	CheckEnrollmentLimit     = "enrollment_limit"
	CheckDuplicateEnrollment = "duplicate_enrollment"
)

type seatReader interface {
	Get(ctx context.Context, courseID string) (*models.CourseSeat, error)
}

type admissionEnrollmentReader interface {
	CountByStudent(ctx context.Context, studentID string, statuses []models.EnrollmentStatus) (int, error)
	ExistsActive(ctx context.Context, studentID, courseID string) (bool, error)
	CompletedCourseIDs(ctx context.Context, studentID string, courseIDs []string) ([]string, error)
}

// AvailabilityCheck passes when the course exists, is active and has a free seat.
type AvailabilityCheck struct {
	seats seatReader
}

// NewAvailabilityCheck constructs the check.
func NewAvailabilityCheck(seats seatReader) *AvailabilityCheck {
	return &AvailabilityCheck{seats: seats}
}

func (c *AvailabilityCheck) Name() string  { return CheckAvailability }
func (c *AvailabilityCheck) Priority() int { return 1 }

func (c *AvailabilityCheck) Applicable(admission *models.AdmissionContext) bool {
	return admission != nil && admission.CourseID != ""
}

func (c *AvailabilityCheck) Evaluate(ctx context.Context, admission *models.AdmissionContext) models.AdmissionResult {
	seat, err := c.seats.Get(ctx, admission.CourseID)
	if err != nil {
		if errors.Is(err, appErrors.ErrCourseNotFound) || errors.Is(err, models.ErrCourseNotFound) {
			return models.AdmissionResult{
				CheckName:  CheckAvailability,
				Reason:     "course not found",
				ReasonCode: models.ReasonCourseNotFound,
				Details:    map[string]interface{}{"course_id": admission.CourseID},
			}
		}
		return evaluationError(CheckAvailability, err)
	}

	details := map[string]interface{}{
		"capacity":        seat.Capacity,
		"enrolled":        seat.Enrolled,
		"available_slots": seat.AvailableSlots(),
	}
	if seat.Status != models.CourseStatusActive {
		return models.AdmissionResult{
			CheckName:  CheckAvailability,
			Reason:     "course is not accepting enrollments",
			ReasonCode: models.ReasonCourseInactive,
			Details:    details,
		}
	}
	if seat.AvailableSlots() <= 0 {
		return models.AdmissionResult{
			CheckName:  CheckAvailability,
			Reason:     "course is full",
			ReasonCode: models.ReasonCourseFull,
			Details:    details,
		}
	}
	return models.AdmissionResult{Passed: true, CheckName: CheckAvailability, Details: details}
}

// PrerequisitesCheck passes when the student completed every declared prerequisite.
type PrerequisitesCheck struct {
	enrollments admissionEnrollmentReader
}

// NewPrerequisitesCheck constructs the check.
func NewPrerequisitesCheck(enrollments admissionEnrollmentReader) *PrerequisitesCheck {
	return &PrerequisitesCheck{enrollments: enrollments}
}

func (c *PrerequisitesCheck) Name() string  { return CheckPrerequisites }
func (c *PrerequisitesCheck) Priority() int { return 2 }

// Applicable skips courses without prerequisites.
func (c *PrerequisitesCheck) Applicable(admission *models.AdmissionContext) bool {
	return admission != nil && admission.Course != nil && len(admission.Course.Prerequisites) > 0
}

func (c *PrerequisitesCheck) Evaluate(ctx context.Context, admission *models.AdmissionContext) models.AdmissionResult {
	required := admission.Course.Prerequisites
	ids := make([]string, len(required))
	for i, prereq := range required {
		ids[i] = prereq.CourseID
	}

	completed, err := c.enrollments.CompletedCourseIDs(ctx, admission.StudentID, ids)
	if err != nil {
		return evaluationError(CheckPrerequisites, err)
	}
	done := make(map[string]struct{}, len(completed))
	for _, id := range completed {
		done[id] = struct{}{}
	}

	var missing []models.CoursePrerequisite
	for _, prereq := range required {
		if _, ok := done[prereq.CourseID]; !ok {
			missing = append(missing, prereq)
		}
	}
	if len(missing) > 0 {
		return models.AdmissionResult{
			CheckName:  CheckPrerequisites,
			Reason:     "missing prerequisite courses",
			ReasonCode: models.ReasonMissingPrerequisites,
			Details: map[string]interface{}{
				"missing_prerequisites": missing,
				"required":              len(required),
				"completed":             len(required) - len(missing),
			},
		}
	}
	return models.AdmissionResult{Passed: true, CheckName: CheckPrerequisites}
}

// EnrollmentLimitCheck caps the number of in-progress enrollments per student.
type EnrollmentLimitCheck struct {
	enrollments admissionEnrollmentReader
	max         int
}

// NewEnrollmentLimitCheck constructs the check. A non-positive max uses the default.
func NewEnrollmentLimitCheck(enrollments admissionEnrollmentReader, maxActive int) *EnrollmentLimitCheck {
	if maxActive <= 0 {
		maxActive = DefaultMaxActiveEnrollments
	}
	return &EnrollmentLimitCheck{enrollments: enrollments, max: maxActive}
}

func (c *EnrollmentLimitCheck) Name() string  { return CheckEnrollmentLimit }
func (c *EnrollmentLimitCheck) Priority() int { return 3 }

func (c *EnrollmentLimitCheck) Applicable(admission *models.AdmissionContext) bool {
	return admission != nil && admission.StudentID != ""
}

func (c *EnrollmentLimitCheck) Evaluate(ctx context.Context, admission *models.AdmissionContext) models.AdmissionResult {
	current, err := c.enrollments.CountByStudent(ctx, admission.StudentID, models.LimitedEnrollmentStatuses)
	if err != nil {
		return evaluationError(CheckEnrollmentLimit, err)
	}
	details := map[string]interface{}{
		"current_enrollments": current,
		"max_enrollments":     c.max,
	}
	if current >= c.max {
		return models.AdmissionResult{
			CheckName:  CheckEnrollmentLimit,
			Reason:     "maximum number of active enrollments reached",
			ReasonCode: models.ReasonEnrollmentLimit,
			Details:    details,
		}
	}
	return models.AdmissionResult{Passed: true, CheckName: CheckEnrollmentLimit, Details: details}
}

// DuplicateEnrollmentCheck rejects a second active enrollment in the same course. The store's
// unique index still guards the race between this check and the insert.
type DuplicateEnrollmentCheck struct {
	enrollments admissionEnrollmentReader
}

// NewDuplicateEnrollmentCheck constructs the check.
func NewDuplicateEnrollmentCheck(enrollments admissionEnrollmentReader) *DuplicateEnrollmentCheck {
	return &DuplicateEnrollmentCheck{enrollments: enrollments}
}

func (c *DuplicateEnrollmentCheck) Name() string  { return CheckDuplicateEnrollment }
func (c *DuplicateEnrollmentCheck) Priority() int { return 4 }

func (c *DuplicateEnrollmentCheck) Applicable(admission *models.AdmissionContext) bool {
	return admission != nil && admission.StudentID != "" && admission.CourseID != ""
}

func (c *DuplicateEnrollmentCheck) Evaluate(ctx context.Context, admission *models.AdmissionContext) models.AdmissionResult {
	exists, err := c.enrollments.ExistsActive(ctx, admission.StudentID, admission.CourseID)
	if err != nil {
		return evaluationError(CheckDuplicateEnrollment, err)
	}
	if exists {
		return models.AdmissionResult{
			CheckName:  CheckDuplicateEnrollment,
			Reason:     "student already has an active enrollment in this course",
			ReasonCode: models.ReasonDuplicateEnrollment,
			Details:    map[string]interface{}{"course_id": admission.CourseID},
		}
	}
	return models.AdmissionResult{Passed: true, CheckName: CheckDuplicateEnrollment}
}
