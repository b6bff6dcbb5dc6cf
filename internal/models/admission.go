package models

// AdmissionContext is assembled once per enrollment request and shared read-only by every
// admission check. Course is nil when the catalog has no such course.
type AdmissionContext struct {
	StudentID string
	CourseID  string
	Token     string
	Student   *Student
	Course    *Course
}

// Reason codes carried by failing admission results.
const (
	ReasonCourseNotFound       = "COURSE_NOT_FOUND"
	ReasonCourseInactive       = "COURSE_INACTIVE"
	ReasonCourseFull           = "COURSE_FULL"
	ReasonMissingPrerequisites = "MISSING_PREREQUISITES"
	ReasonEnrollmentLimit      = "ENROLLMENT_LIMIT_REACHED"
	ReasonDuplicateEnrollment  = "DUPLICATE_ENROLLMENT"
	ReasonEvaluationError      = "EVALUATION_ERROR"
	ReasonAllChecksPassed      = "ALL_CHECKS_PASSED"
)

// AdmissionResult is the outcome of one admission check, or of a fail-fast run.
type AdmissionResult struct {
	Passed          bool                   `json:"passed"`
	CheckName       string                 `json:"check_name"`
	Reason          string                 `json:"reason,omitempty"`
	ReasonCode      string                 `json:"reason_code,omitempty"`
	Details         map[string]interface{} `json:"details,omitempty"`
	EvaluationError bool                   `json:"evaluation_error,omitempty"`
	Cause           error                  `json:"-"`
}

// AdmissionReport aggregates a run of every applicable check.
type AdmissionReport struct {
	IsValid     bool              `json:"is_valid"`
	PassedCount int               `json:"passed_count"`
	FailedCount int               `json:"failed_count"`
	Checks      []string          `json:"checks"`
	Results     []AdmissionResult `json:"results"`
}
