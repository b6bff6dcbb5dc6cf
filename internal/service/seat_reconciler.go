package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/jobs"
	"github.com/noah-isme/course-enrollment-api/pkg/journal"
)

const reconcileJobType = "seat_reconcile"

var errCourseBusy = errors.New("course seat counts changed during reconciliation")

type holdingCounter interface {
	CountByCourse(ctx context.Context, courseID string, statuses []models.EnrollmentStatus) (int, error)
}

type seatAdjuster interface {
	Get(ctx context.Context, courseID string) (*models.CourseSeat, error)
	Release(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error)
}

type reconciliationJournal interface {
	Put(courseID, reason string, at time.Time) (bool, error)
	Get(courseID string) (journal.Entry, bool, error)
	DeleteIf(seen journal.Entry) (bool, error)
	List() ([]journal.Entry, error)
}

// ReconcilerConfig tunes the reconciliation worker.
type ReconcilerConfig struct {
	Workers     int
	Retries     int
	RetryDelay  time.Duration
	SettleDelay time.Duration
}

// SeatReconciler repairs an enrolled counter that is higher than the number of enrollments
// holding a seat, which happens when a compensating or cancellation release fails. It only
// ever corrects through Release; a counter lower than the holding records is reported.
type SeatReconciler struct {
	seats       seatAdjuster
	enrollments holdingCounter
	journal     reconciliationJournal
	queue       *jobs.Queue
	settle      time.Duration
	metrics     *MetricsService
	logger      *zap.Logger
	locks       sync.Map
}

// NewSeatReconciler constructs the reconciler and its worker queue.
func NewSeatReconciler(seats seatAdjuster, enrollments holdingCounter, j reconciliationJournal, metrics *MetricsService, logger *zap.Logger, cfg ReconcilerConfig) *SeatReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &SeatReconciler{
		seats:       seats,
		enrollments: enrollments,
		journal:     j,
		settle:      cfg.SettleDelay,
		metrics:     metrics,
		logger:      logger,
	}
	r.queue = jobs.NewQueue("seat-reconciliation", r.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		GiveUp:     r.giveUp,
	})
	return r
}

// Start launches the workers and replays reconciliations journaled by a previous run.
func (r *SeatReconciler) Start(ctx context.Context) error {
	r.queue.Start(ctx)
	entries, err := r.journal.List()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := r.queue.Enqueue(newReconcileJob(entry.CourseID, entry.Reason)); err != nil {
			r.logger.Warn("failed to replay reconciliation", zap.String("course_id", entry.CourseID), zap.Error(err))
		}
	}
	if len(entries) > 0 {
		r.logger.Info("replayed pending seat reconciliations", zap.Int("count", len(entries)))
	}
	return nil
}

// Stop stops the workers. Unfinished entries stay in the journal.
func (r *SeatReconciler) Stop() {
	r.queue.Stop()
}

// Enabled reports whether reconciliation is wired. A nil reconciler is disabled.
func (r *SeatReconciler) Enabled() bool {
	return r != nil
}

// Schedule journals a reconciliation for the course and queues it. It is a no-op on a
// disabled reconciler.
func (r *SeatReconciler) Schedule(ctx context.Context, courseID, reason string) error {
	if r == nil {
		return nil
	}
	if _, err := r.journal.Put(courseID, reason, time.Now()); err != nil {
		return err
	}
	if err := r.queue.TryEnqueue(newReconcileJob(courseID, reason)); err != nil {
		return err
	}
	r.logger.Info("seat reconciliation scheduled", zap.String("course_id", courseID), zap.String("reason", reason))
	return nil
}

// Reconcile compares the enrolled counter with the seat-holding enrollments. A positive
// drift is only corrected when neither number moved across the settle delay, so seats held
// by in-flight enrollments are never released.
func (r *SeatReconciler) Reconcile(ctx context.Context, courseID string) (*dto.ReconciliationResult, error) {
	if r == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "seat reconciliation is disabled")
	}
	mu := r.lockFor(courseID)
	mu.Lock()
	defer mu.Unlock()

	first, err := r.measure(ctx, courseID)
	if err != nil {
		return nil, err
	}
	result := first
	if first.Drift != 0 && r.settle > 0 {
		timer := time.NewTimer(r.settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		second, err := r.measure(ctx, courseID)
		if err != nil {
			return nil, err
		}
		if second.Enrolled != first.Enrolled || second.HoldingRecords != first.HoldingRecords {
			second.Status = dto.ReconciliationBusy
			r.metrics.RecordReconciliation(second.Status)
			return second, nil
		}
		result = second
	}

	logger := r.logger.With(
		zap.String("course_id", courseID),
		zap.Int("enrolled", result.Enrolled),
		zap.Int("holding_records", result.HoldingRecords),
	)
	switch {
	case result.Drift == 0:
		result.Status = dto.ReconciliationInSync
	case result.Drift < 0:
		result.Status = dto.ReconciliationUndercount
		logger.Error("enrolled counter below seat-holding enrollments, manual review required")
	default:
		seat, err := r.seats.Release(ctx, courseID, result.Drift)
		if err != nil {
			return nil, err
		}
		result.Released = result.Drift
		result.Enrolled = seat.Enrolled
		result.Status = dto.ReconciliationCorrected
		logger.Warn("released drifted seats", zap.Int("released", result.Released))
	}
	r.metrics.RecordReconciliation(result.Status)
	return result, nil
}

func (r *SeatReconciler) measure(ctx context.Context, courseID string) (*dto.ReconciliationResult, error) {
	seat, err := r.seats.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	holding, err := r.enrollments.CountByCourse(ctx, courseID, models.ActiveEnrollmentStatuses)
	if err != nil {
		return nil, storeError(err, "failed to count seat-holding enrollments")
	}
	return &dto.ReconciliationResult{
		CourseID:       courseID,
		Enrolled:       seat.Enrolled,
		HoldingRecords: holding,
		Drift:          seat.Enrolled - holding,
	}, nil
}

func (r *SeatReconciler) handle(ctx context.Context, job jobs.Job) error {
	pending, found, err := r.journal.Get(job.Key)
	if err != nil {
		return err
	}
	result, err := r.Reconcile(ctx, job.Key)
	if err != nil {
		return err
	}
	if result.Status == dto.ReconciliationBusy {
		return errCourseBusy
	}
	if !found {
		return nil
	}
	removed, err := r.journal.DeleteIf(pending)
	if err != nil {
		return err
	}
	if !removed {
		// A Schedule landed mid-run and queued its own job; its entry must survive.
		r.logger.Debug("reconciliation requested again while running", zap.String("course_id", job.Key))
	}
	return nil
}

func (r *SeatReconciler) giveUp(job jobs.Job, err error) {
	r.logger.Error("seat reconciliation abandoned until next restart",
		zap.String("course_id", job.Key),
		zap.String("reason", job.Reason),
		zap.Error(err),
	)
}

func (r *SeatReconciler) lockFor(courseID string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(courseID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func newReconcileJob(courseID, reason string) jobs.Job {
	return jobs.Job{ID: uuid.NewString(), Type: reconcileJobType, Key: courseID, Reason: reason}
}
