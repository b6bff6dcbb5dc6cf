package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type seatStore interface {
	Get(ctx context.Context, courseID string) (*models.CourseSeat, error)
	Reserve(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error)
	Release(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error)
}

// SeatService is the only writer of a course's enrolled counter. Atomicity per course is
// delegated to the store.
type SeatService struct {
	store   seatStore
	metrics *MetricsService
	logger  *zap.Logger
}

// NewSeatService constructs a SeatService.
func NewSeatService(store seatStore, metrics *MetricsService, logger *zap.Logger) *SeatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeatService{store: store, metrics: metrics, logger: logger}
}

// Get returns the current seat counts of a course.
func (s *SeatService) Get(ctx context.Context, courseID string) (*models.CourseSeat, error) {
	start := time.Now()
	seat, err := s.store.Get(ctx, courseID)
	s.metrics.ObserveSeatOperation("get", err, time.Since(start))
	if err != nil {
		return nil, seatError(err, "failed to load seat counts")
	}
	return seat, nil
}

// Reserve takes quantity seats. A zero quantity means one seat.
func (s *SeatService) Reserve(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error) {
	quantity, err := normalizeQuantity(quantity)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	seat, err := s.store.Reserve(ctx, courseID, quantity)
	s.metrics.ObserveSeatOperation("reserve", err, time.Since(start))
	if err != nil {
		return nil, seatError(err, "failed to reserve seat")
	}
	s.logger.Debug("seat reserved",
		zap.String("course_id", courseID),
		zap.Int("quantity", quantity),
		zap.Int("enrolled", seat.Enrolled),
		zap.Int("capacity", seat.Capacity),
	)
	return seat, nil
}

// Release returns quantity seats, never dropping enrolled below zero. A zero quantity
// means one seat.
func (s *SeatService) Release(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error) {
	quantity, err := normalizeQuantity(quantity)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	seat, err := s.store.Release(ctx, courseID, quantity)
	s.metrics.ObserveSeatOperation("release", err, time.Since(start))
	if err != nil {
		return nil, seatError(err, "failed to release seat")
	}
	s.logger.Debug("seat released",
		zap.String("course_id", courseID),
		zap.Int("quantity", quantity),
		zap.Int("enrolled", seat.Enrolled),
	)
	return seat, nil
}

func normalizeQuantity(quantity int) (int, error) {
	if quantity == 0 {
		return 1, nil
	}
	if quantity < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "quantity must be at least 1")
	}
	return quantity, nil
}
