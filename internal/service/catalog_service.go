package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

const courseCachePrefix = "catalog:course:"

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CatalogService serves course descriptors, optionally through the Redis cache. Seat counts
// on a cached descriptor may be stale and are never used for admission decisions.
type CatalogService struct {
	repo   courseRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(repo courseRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// GetCourse returns a course with its prerequisites.
func (s *CatalogService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := readThrough(ctx, s.cache, courseCachePrefix+id, s.ttl, func(ctx context.Context) (*models.Course, error) {
		return s.repo.FindByID(ctx, id)
	})
	if err == nil {
		return course, nil
	}
	switch {
	case errors.Is(err, models.ErrCourseNotFound):
		return nil, appErrors.Clone(appErrors.ErrCourseNotFound, "")
	case isUnavailable(err):
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "course catalog unavailable")
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
}

// Flush drops every cached course descriptor. Called on boot so descriptors written by an
// older release are not served.
func (s *CatalogService) Flush(ctx context.Context) error {
	return s.cache.Invalidate(ctx, courseCachePrefix+"*")
}
