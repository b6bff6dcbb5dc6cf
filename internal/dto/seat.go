package dto

import "github.com/noah-isme/course-enrollment-api/internal/models"

// SeatOperationRequest is the administrative reserve/release payload. Quantity defaults to 1.
type SeatOperationRequest struct {
	Quantity int `json:"quantity" validate:"omitempty,min=1,max=1000"`
}

// SeatStatus is the public view of a course's seat counts.
type SeatStatus struct {
	CourseID       string              `json:"course_id"`
	AvailableSlots int                 `json:"available_slots"`
	Capacity       int                 `json:"capacity"`
	Enrolled       int                 `json:"enrolled"`
	Status         models.CourseStatus `json:"status"`
}

// NewSeatStatus projects a seat record.
func NewSeatStatus(seat *models.CourseSeat) SeatStatus {
	return SeatStatus{
		CourseID:       seat.CourseID,
		AvailableSlots: seat.AvailableSlots(),
		Capacity:       seat.Capacity,
		Enrolled:       seat.Enrolled,
		Status:         seat.Status,
	}
}

// ReconciliationResult reports the outcome of a seat drift check.
type ReconciliationResult struct {
	CourseID       string `json:"course_id"`
	Enrolled       int    `json:"enrolled"`
	HoldingRecords int    `json:"holding_records"`
	Drift          int    `json:"drift"`
	Released       int    `json:"released"`
	Status         string `json:"status"`
}

// Reconciliation outcome statuses.
const (
	ReconciliationInSync     = "IN_SYNC"
	ReconciliationCorrected  = "CORRECTED"
	ReconciliationUndercount = "UNDERCOUNT"
	ReconciliationQueued     = "QUEUED"
	ReconciliationBusy       = "BUSY"
)

// RosterQuery selects the roster export format.
type RosterQuery struct {
	Format string `form:"format"`
}
