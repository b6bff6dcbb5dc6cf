package models

import "time"

// CourseStatus reports whether a course accepts reservations.
type CourseStatus string

// Course statuses.
const (
	CourseStatusActive   CourseStatus = "ACTIVE"
	CourseStatusInactive CourseStatus = "INACTIVE"
)

// Course is the catalog descriptor of an offered course. Amount is in minor currency units.
type Course struct {
	ID            string               `db:"id" json:"id"`
	Code          string               `db:"code" json:"code"`
	Name          string               `db:"name" json:"name"`
	Credits       int                  `db:"credits" json:"credits"`
	Amount        int64                `db:"amount" json:"amount"`
	Currency      string               `db:"currency" json:"currency"`
	InstructorID  *string              `db:"instructor_id" json:"instructor_id,omitempty"`
	Capacity      int                  `db:"capacity" json:"capacity"`
	Enrolled      int                  `db:"enrolled" json:"enrolled"`
	Status        CourseStatus         `db:"status" json:"status"`
	Prerequisites []CoursePrerequisite `db:"-" json:"prerequisites,omitempty"`
	CreatedAt     time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time            `db:"updated_at" json:"updated_at"`
}

// CoursePrerequisite names a course that must be completed before enrolling.
type CoursePrerequisite struct {
	CourseID string `db:"prerequisite_id" json:"course_id"`
	Code     string `db:"code" json:"code"`
	Name     string `db:"name" json:"name"`
}

// CourseSeat is the seat-count view of a course owned by the seat inventory.
type CourseSeat struct {
	CourseID string       `db:"id" json:"course_id"`
	Capacity int          `db:"capacity" json:"capacity"`
	Enrolled int          `db:"enrolled" json:"enrolled"`
	Status   CourseStatus `db:"status" json:"status"`
}

// AvailableSlots returns capacity minus enrolled, never negative.
func (s CourseSeat) AvailableSlots() int {
	if s.Enrolled >= s.Capacity {
		return 0
	}
	return s.Capacity - s.Enrolled
}

// Seat returns the seat-count view of the course.
func (c *Course) Seat() CourseSeat {
	return CourseSeat{CourseID: c.ID, Capacity: c.Capacity, Enrolled: c.Enrolled, Status: c.Status}
}
