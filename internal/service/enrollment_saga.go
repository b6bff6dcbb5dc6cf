package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/middleware/requestid"
)

const tracerName = "github.com/noah-isme/course-enrollment-api/internal/service"

// Saga outcome labels.
const (
	sagaOutcomeEnrolled          = "enrolled"
	sagaOutcomeInvalid           = "invalid"
	sagaOutcomeRejected          = "rejected"
	sagaOutcomeReservationFailed = "reservation_failed"
	sagaOutcomeCompensated       = "compensated"
)

type studentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type courseFinder interface {
	GetCourse(ctx context.Context, id string) (*models.Course, error)
}

type admissionRunner interface {
	RunFailFast(ctx context.Context, admission *models.AdmissionContext) models.AdmissionResult
	RunAll(ctx context.Context, admission *models.AdmissionContext) models.AdmissionReport
}

type seatInventory interface {
	Reserve(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error)
	Release(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error)
}

type enrollmentStore interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	UpdateStatus(ctx context.Context, enrollment *models.Enrollment, previous models.EnrollmentStatus) error
}

type reconciliationScheduler interface {
	Schedule(ctx context.Context, courseID, reason string) error
}

// Actor identifies the authenticated caller of an enrollment operation.
type Actor struct {
	ID   string
	Role models.UserRole
}

func (a Actor) owns(enrollment *models.Enrollment) bool {
	return a.Role == models.RoleStudent && a.ID == enrollment.StudentID
}

// teaches reports whether the actor is the course's instructor.
func (a Actor) teaches(course *models.Course) bool {
	return a.Role == models.RoleTeacher && course.InstructorID != nil && *course.InstructorID == a.ID
}

// EnrollCommand asks for one seat in a course on behalf of a student.
type EnrollCommand struct {
	StudentID string `validate:"required"`
	CourseID  string `validate:"required"`
	Token     string
}

// SagaConfig holds per-step deadlines.
type SagaConfig struct {
	StepTimeout      time.Duration
	AdmissionTimeout time.Duration
}

// EnrollmentSaga coordinates admission, seat reservation and enrollment creation. The seat
// inventory and the enrollment store are independent resources, so a failure between a
// successful reservation and a persisted record is undone by releasing the seat.
type EnrollmentSaga struct {
	students   studentFinder
	courses    courseFinder
	pipeline   admissionRunner
	seats      seatInventory
	store      enrollmentStore
	reconciler reconciliationScheduler
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
	tracer     trace.Tracer
	cfg        SagaConfig
	now        func() time.Time
}

// NewEnrollmentSaga wires the saga. reconciler may be nil.
func NewEnrollmentSaga(
	students studentFinder,
	courses courseFinder,
	pipeline admissionRunner,
	seats seatInventory,
	store enrollmentStore,
	reconciler reconciliationScheduler,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg SagaConfig,
) *EnrollmentSaga {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 5 * time.Second
	}
	if cfg.AdmissionTimeout <= 0 {
		cfg.AdmissionTimeout = 5 * time.Second
	}
	return &EnrollmentSaga{
		students:   students,
		courses:    courses,
		pipeline:   pipeline,
		seats:      seats,
		store:      store,
		reconciler: reconciler,
		validator:  validator.New(),
		metrics:    metrics,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Enroll runs admission, reserves a seat, records the enrollment and confirms it.
func (s *EnrollmentSaga) Enroll(ctx context.Context, cmd EnrollCommand) (*dto.EnrollmentResult, error) {
	started := time.Now()
	outcome := sagaOutcomeInvalid
	defer func() { s.metrics.ObserveSaga(outcome, time.Since(started)) }()

	if err := s.validator.Struct(cmd); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment request")
	}

	ctx, span := s.tracer.Start(ctx, "EnrollmentSaga.Enroll", trace.WithAttributes(
		attribute.String("student.id", cmd.StudentID),
		attribute.String("course.id", cmd.CourseID),
	))
	defer span.End()

	admission, verdict, err := s.admit(ctx, cmd)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if !verdict.Passed {
		outcome = sagaOutcomeRejected
		span.SetAttributes(attribute.String("admission.check", verdict.CheckName))
		return nil, admissionError(verdict)
	}
	if admission.Course == nil {
		outcome = sagaOutcomeRejected
		return nil, appErrors.Clone(appErrors.ErrCourseNotFound, "")
	}

	// From here on the caller going away must not leave a reserved seat behind.
	sagaCtx := context.WithoutCancel(ctx)
	logger := s.logger.With(
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.String("student_id", cmd.StudentID),
		zap.String("course_id", cmd.CourseID),
	)

	var seat *models.CourseSeat
	err = s.step(sagaCtx, "Reserve", func(stepCtx context.Context) error {
		var reserveErr error
		seat, reserveErr = s.seats.Reserve(stepCtx, cmd.CourseID, 1)
		return reserveErr
	})
	if err != nil {
		outcome = sagaOutcomeReservationFailed
		logger.Info("seat reservation failed", zap.Error(err))
		if errors.Is(err, appErrors.ErrServiceUnavailable) {
			// A timed out reserve may still have been applied.
			s.scheduleReconciliation(sagaCtx, logger, cmd.CourseID, "reservation outcome unknown")
		}
		recordSpanError(span, err)
		return nil, err
	}

	enrollment := models.NewEnrollment(admission.Student, admission.Course, s.now())
	err = s.step(sagaCtx, "Create", func(stepCtx context.Context) error {
		return s.store.Create(stepCtx, enrollment)
	})
	if err != nil {
		outcome = sagaOutcomeCompensated
		s.compensate(sagaCtx, logger, cmd.CourseID, err)
		recordSpanError(span, err)
		if errors.Is(err, models.ErrDuplicateEnrollment) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrEnrollmentFailed.Code, appErrors.ErrEnrollmentFailed.Status, appErrors.ErrEnrollmentFailed.Message)
	}

	s.confirm(sagaCtx, logger, enrollment)

	outcome = sagaOutcomeEnrolled
	logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("status", string(enrollment.Status)),
		zap.Int("available_slots", seat.AvailableSlots()),
	)
	return &dto.EnrollmentResult{
		Enrollment: enrollment,
		Course: dto.CourseSummary{
			ID:             admission.Course.ID,
			Code:           admission.Course.Code,
			Name:           admission.Course.Name,
			AvailableSlots: seat.AvailableSlots(),
		},
	}, nil
}

// Validate evaluates every admission check without touching state.
func (s *EnrollmentSaga) Validate(ctx context.Context, cmd EnrollCommand) (*models.AdmissionReport, error) {
	if err := s.validator.Struct(cmd); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid validation request")
	}
	ctx, span := s.tracer.Start(ctx, "EnrollmentSaga.Validate")
	defer span.End()

	admCtx, cancel := context.WithTimeout(ctx, s.cfg.AdmissionTimeout)
	defer cancel()
	admission, err := s.loadAdmission(admCtx, cmd)
	if err != nil {
		return nil, err
	}
	report := s.pipeline.RunAll(admCtx, admission)
	return &report, nil
}

// Cancel moves an enrollment to CANCELLED and gives its seat back. A failed release does
// not block the cancellation.
func (s *EnrollmentSaga) Cancel(ctx context.Context, actor Actor, enrollmentID string, req dto.CancelEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}
	ctx, span := s.tracer.Start(ctx, "EnrollmentSaga.Cancel", trace.WithAttributes(attribute.String("enrollment.id", enrollmentID)))
	defer span.End()

	enrollment, err := s.store.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, storeError(err, "failed to load enrollment")
	}
	if !actor.Role.IsStaff() && !actor.owns(enrollment) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the enrolled student or an administrator can cancel")
	}
	if !enrollment.CanBeCancelled() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("enrollment in status %s cannot be cancelled", enrollment.Status))
	}

	sagaCtx := context.WithoutCancel(ctx)
	logger := s.logger.With(
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.String("enrollment_id", enrollment.ID),
		zap.String("course_id", enrollment.CourseID),
		zap.String("actor_id", actor.ID),
	)

	previous := enrollment.Status
	cancelled := *enrollment
	if err := cancelled.Cancel(req.Reason, actor.ID, s.now()); err != nil {
		return nil, storeError(err, "failed to cancel enrollment")
	}
	err = s.step(sagaCtx, "PersistCancellation", func(stepCtx context.Context) error {
		return s.store.UpdateStatus(stepCtx, &cancelled, previous)
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, storeError(err, "failed to cancel enrollment")
	}

	err = s.step(sagaCtx, "Release", func(stepCtx context.Context) error {
		_, releaseErr := s.seats.Release(stepCtx, enrollment.CourseID, 1)
		return releaseErr
	})
	if err != nil {
		logger.Error("seat release after cancellation failed", zap.Error(err))
		s.scheduleReconciliation(sagaCtx, logger, enrollment.CourseID, "cancellation release failed")
	}

	logger.Info("enrollment cancelled", zap.String("previous_status", string(previous)))
	return &cancelled, nil
}

func (s *EnrollmentSaga) admit(ctx context.Context, cmd EnrollCommand) (*models.AdmissionContext, models.AdmissionResult, error) {
	admCtx, cancel := context.WithTimeout(ctx, s.cfg.AdmissionTimeout)
	defer cancel()
	admCtx, span := s.tracer.Start(admCtx, "EnrollmentSaga.Admission")
	defer span.End()

	admission, err := s.loadAdmission(admCtx, cmd)
	if err != nil {
		return nil, models.AdmissionResult{}, err
	}
	return admission, s.pipeline.RunFailFast(admCtx, admission), nil
}

func (s *EnrollmentSaga) loadAdmission(ctx context.Context, cmd EnrollCommand) (*models.AdmissionContext, error) {
	admission := &models.AdmissionContext{StudentID: cmd.StudentID, CourseID: cmd.CourseID, Token: cmd.Token}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		student, err := s.students.FindByID(gctx, cmd.StudentID)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrStudentNotFound):
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			case isUnavailable(err):
				return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "student directory unavailable")
			default:
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
			}
		}
		admission.Student = student
		return nil
	})
	g.Go(func() error {
		course, err := s.courses.GetCourse(gctx, cmd.CourseID)
		if err != nil {
			if errors.Is(err, appErrors.ErrCourseNotFound) {
				return nil
			}
			return err
		}
		admission.Course = course
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !admission.Student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student is not active")
	}
	return admission, nil
}

// step runs fn under its own deadline and span.
func (s *EnrollmentSaga) step(ctx context.Context, name string, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()
	stepCtx, span := s.tracer.Start(stepCtx, "EnrollmentSaga."+name)
	defer span.End()

	err := fn(stepCtx)
	if err != nil {
		recordSpanError(span, err)
	}
	return err
}

func (s *EnrollmentSaga) compensate(ctx context.Context, logger *zap.Logger, courseID string, cause error) {
	err := s.step(ctx, "Compensate", func(stepCtx context.Context) error {
		_, releaseErr := s.seats.Release(stepCtx, courseID, 1)
		return releaseErr
	})
	s.metrics.RecordCompensation(err == nil)
	if err != nil {
		logger.Error("compensating seat release failed", zap.Error(err), zap.NamedError("cause", cause))
		s.scheduleReconciliation(ctx, logger, courseID, "compensating release failed")
		return
	}
	logger.Warn("enrollment creation failed, seat released", zap.Error(cause))
}

// confirm is best effort: on failure the record stays PENDING with its seat held.
func (s *EnrollmentSaga) confirm(ctx context.Context, logger *zap.Logger, enrollment *models.Enrollment) {
	confirmed := *enrollment
	if err := confirmed.Confirm(s.now()); err != nil {
		logger.Error("enrollment confirmation rejected", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
		return
	}
	err := s.step(ctx, "Confirm", func(stepCtx context.Context) error {
		return s.store.UpdateStatus(stepCtx, &confirmed, models.EnrollmentStatusPending)
	})
	if err != nil {
		logger.Error("enrollment confirmation failed, record left pending",
			zap.String("enrollment_id", enrollment.ID),
			zap.Error(err),
		)
		return
	}
	*enrollment = confirmed
}

func (s *EnrollmentSaga) scheduleReconciliation(ctx context.Context, logger *zap.Logger, courseID, reason string) {
	if s.reconciler == nil {
		return
	}
	if err := s.reconciler.Schedule(ctx, courseID, reason); err != nil {
		logger.Error("failed to schedule seat reconciliation", zap.Error(err))
	}
}

// admissionError turns a failing admission result into the API error returned to clients.
func admissionError(result models.AdmissionResult) error {
	if result.EvaluationError {
		err := appErrors.WithDetails(appErrors.ErrServiceUnavailable, result.CheckName, map[string]interface{}{
			"check":       result.CheckName,
			"reason_code": result.ReasonCode,
		})
		err.Message = result.Reason
		err.Err = result.Cause
		return err
	}

	base := appErrors.ErrAdmissionFailed
	switch result.ReasonCode {
	case models.ReasonDuplicateEnrollment:
		base = appErrors.ErrDuplicateEnrollment
	case models.ReasonCourseNotFound:
		base = appErrors.ErrCourseNotFound
	case models.ReasonCourseFull:
		base = appErrors.ErrInsufficientCapacity
	case models.ReasonCourseInactive:
		base = appErrors.ErrCourseInactive
	}

	details := make(map[string]interface{}, len(result.Details)+1)
	for k, v := range result.Details {
		details[k] = v
	}
	details["reason_code"] = result.ReasonCode

	err := appErrors.WithDetails(base, result.CheckName, details)
	if result.Reason != "" {
		err.Message = result.Reason
	}
	return err
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
