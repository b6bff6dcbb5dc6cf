package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type enrollmentLifecycleStore interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	UpdateStatus(ctx context.Context, enrollment *models.Enrollment, previous models.EnrollmentStatus) error
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
}

// EnrollmentService exposes reads and the post-confirmation lifecycle of enrollments.
// Teachers are limited to enrollments in the courses they instruct.
type EnrollmentService struct {
	store     enrollmentLifecycleStore
	courses   courseFinder
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(store enrollmentLifecycleStore, courses courseFinder, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		store:     store,
		courses:   courses,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Get returns an enrollment visible to the actor.
func (s *EnrollmentService) Get(ctx context.Context, actor Actor, id string) (*models.Enrollment, error) {
	enrollment, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to load enrollment")
	}
	if actor.Role == models.RoleStudent && !actor.owns(enrollment) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	if actor.Role == models.RoleTeacher {
		teaches, err := s.teaches(ctx, actor, enrollment.CourseID)
		if err != nil {
			return nil, err
		}
		if !teaches {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
	}
	return enrollment, nil
}

// List returns enrollments matching the query. Students only ever see their own and
// teachers only those of their courses.
func (s *EnrollmentService) List(ctx context.Context, actor Actor, query dto.EnrollmentListQuery) ([]models.Enrollment, *models.Pagination, error) {
	filter := models.EnrollmentFilter{
		StudentID: query.StudentID,
		CourseID:  query.CourseID,
		Status:    models.EnrollmentStatus(strings.ToUpper(query.Status)),
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	}
	switch actor.Role {
	case models.RoleStudent:
		filter.StudentID = actor.ID
	case models.RoleTeacher:
		filter.InstructorID = actor.ID
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	enrollments, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "failed to list enrollments")
	}
	return enrollments, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// MarkPaid records a settled payment for an enrollment awaiting one.
func (s *EnrollmentService) MarkPaid(ctx context.Context, id string, req dto.MarkPaidRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	return s.transition(ctx, id, "paid", nil, func(e *models.Enrollment) error {
		return e.MarkAsPaid(req.PaymentID, s.now())
	})
}

// Complete closes a paid enrollment with its grade and attendance. A teacher may only
// complete enrollments in a course they instruct.
func (s *EnrollmentService) Complete(ctx context.Context, actor Actor, id string, req dto.CompleteEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid completion payload")
	}
	authorize := func(e *models.Enrollment) error {
		if actor.Role.IsStaff() {
			return nil
		}
		teaches, err := s.teaches(ctx, actor, e.CourseID)
		if err != nil {
			return err
		}
		if !teaches {
			return appErrors.Clone(appErrors.ErrForbidden, "only the course instructor or an administrator can complete")
		}
		return nil
	}
	return s.transition(ctx, id, "completed", authorize, func(e *models.Enrollment) error {
		return e.Complete(req.Grade, req.Attendance, s.now())
	})
}

func (s *EnrollmentService) teaches(ctx context.Context, actor Actor, courseID string) (bool, error) {
	if actor.Role != models.RoleTeacher {
		return false, nil
	}
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return false, err
	}
	return actor.teaches(course), nil
}

func (s *EnrollmentService) transition(ctx context.Context, id, action string, authorize, apply func(*models.Enrollment) error) (*models.Enrollment, error) {
	enrollment, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to load enrollment")
	}
	if authorize != nil {
		if err := authorize(enrollment); err != nil {
			return nil, err
		}
	}
	previous := enrollment.Status
	if err := apply(enrollment); err != nil {
		return nil, storeError(err, "failed to update enrollment")
	}
	if err := s.store.UpdateStatus(ctx, enrollment, previous); err != nil {
		return nil, storeError(err, "failed to update enrollment")
	}
	s.logger.Info("enrollment "+action,
		zap.String("enrollment_id", enrollment.ID),
		zap.String("previous_status", string(previous)),
		zap.String("status", string(enrollment.Status)),
	)
	return enrollment, nil
}
