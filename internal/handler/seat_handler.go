package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

type seatOperations interface {
	Get(ctx context.Context, courseID string) (*models.CourseSeat, error)
	Reserve(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error)
	Release(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error)
}

type seatReconciliation interface {
	Enabled() bool
	Reconcile(ctx context.Context, courseID string) (*dto.ReconciliationResult, error)
	Schedule(ctx context.Context, courseID, reason string) error
}

type rosterExporter interface {
	Export(ctx context.Context, actor service.Actor, courseID, format string) (*service.RosterFile, error)
}

// SeatHandler exposes seat inventory endpoints of a course.
type SeatHandler struct {
	seats      seatOperations
	reconciler seatReconciliation
	roster     rosterExporter
	validator  *validator.Validate
}

// NewSeatHandler constructs SeatHandler.
func NewSeatHandler(seats seatOperations, reconciler seatReconciliation, roster rosterExporter) *SeatHandler {
	return &SeatHandler{seats: seats, reconciler: reconciler, roster: roster, validator: validator.New()}
}

// Get godoc
// @Summary Get course seat counts
// @Tags Seats
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/seats [get]
func (h *SeatHandler) Get(c *gin.Context) {
	seat, err := h.seats.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewSeatStatus(seat), nil)
}

// Reserve godoc
// @Summary Reserve seats
// @Description Administrative seat hold outside the enrollment flow.
// @Tags Seats
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body dto.SeatOperationRequest false "Quantity, defaults to 1"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{id}/seats/reserve [post]
func (h *SeatHandler) Reserve(c *gin.Context) {
	h.adjust(c, h.seats.Reserve)
}

// Release godoc
// @Summary Release seats
// @Tags Seats
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body dto.SeatOperationRequest false "Quantity, defaults to 1"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/seats/release [post]
func (h *SeatHandler) Release(c *gin.Context) {
	h.adjust(c, h.seats.Release)
}

func (h *SeatHandler) adjust(c *gin.Context, op func(context.Context, string, int) (*models.CourseSeat, error)) {
	var req dto.SeatOperationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "quantity must be between 1 and 1000"))
		return
	}
	seat, err := op(c.Request.Context(), c.Param("id"), req.Quantity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewSeatStatus(seat), nil)
}

// Reconcile godoc
// @Summary Reconcile seat counts
// @Description Compares the enrolled counter with seat-holding enrollments and releases drift.
// @Tags Seats
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param async query bool false "Queue the reconciliation instead of waiting"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /courses/{id}/seats/reconcile [post]
func (h *SeatHandler) Reconcile(c *gin.Context) {
	if h.reconciler == nil || !h.reconciler.Enabled() {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "seat reconciliation is disabled"))
		return
	}
	courseID := c.Param("id")
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		if err := h.reconciler.Schedule(c.Request.Context(), courseID, "requested by administrator"); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "could not queue reconciliation"))
			return
		}
		response.JSON(c, http.StatusAccepted, dto.ReconciliationResult{CourseID: courseID, Status: dto.ReconciliationQueued}, nil)
		return
	}
	result, err := h.reconciler.Reconcile(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Roster godoc
// @Summary Download course roster
// @Tags Seats
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /courses/{id}/roster [get]
func (h *SeatHandler) Roster(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var query dto.RosterQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	file, err := h.roster.Export(c.Request.Context(), actor, c.Param("id"), query.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Content)
}
