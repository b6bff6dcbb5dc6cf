package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type countingCourseRepo struct {
	courses map[string]*models.Course
	err     error
	calls   int
}

func (r *countingCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	course, ok := r.courses[id]
	if !ok {
		return nil, models.ErrCourseNotFound
	}
	cp := *course
	return &cp, nil
}

func newCachedCatalog(t *testing.T, repo *countingCourseRepo, enabled bool) (*CatalogService, *MetricsService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	metrics := NewMetricsService()
	cache := NewCacheService(repository.NewCacheRepository(client, nil), metrics, time.Minute, nil, enabled)
	return NewCatalogService(repo, cache, time.Minute, nil), metrics, mr
}

func TestCatalogServiceCachesDescriptors(t *testing.T) {
	repo := &countingCourseRepo{courses: map[string]*models.Course{
		"c1": {ID: "c1", Code: "CS201", Name: "Data Structures", Prerequisites: []models.CoursePrerequisite{{CourseID: "c0", Code: "CS101"}}},
	}}
	svc, metrics, mr := newCachedCatalog(t, repo, true)

	first, err := svc.GetCourse(context.Background(), "c1")
	require.NoError(t, err)
	second, err := svc.GetCourse(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Prerequisites, second.Prerequisites)
	assert.True(t, mr.Exists("catalog:course:c1"))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("hit")), 0)

	require.NoError(t, svc.Flush(context.Background()))
	assert.False(t, mr.Exists("catalog:course:c1"))
	_, err = svc.GetCourse(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestCatalogServiceWithoutCache(t *testing.T) {
	repo := &countingCourseRepo{courses: map[string]*models.Course{"c1": {ID: "c1"}}}
	svc := NewCatalogService(repo, nil, time.Minute, nil)

	_, err := svc.GetCourse(context.Background(), "c1")
	require.NoError(t, err)
	_, err = svc.GetCourse(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
	assert.NoError(t, svc.Flush(context.Background()))
}

func TestCatalogServiceFallsThroughWhenCacheDown(t *testing.T) {
	repo := &countingCourseRepo{courses: map[string]*models.Course{"c1": {ID: "c1"}}}
	svc, _, mr := newCachedCatalog(t, repo, true)
	mr.Close()

	course, err := svc.GetCourse(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", course.ID)
}

func TestCatalogServiceErrors(t *testing.T) {
	repo := &countingCourseRepo{courses: map[string]*models.Course{}}
	svc := NewCatalogService(repo, nil, time.Minute, nil)

	_, err := svc.GetCourse(context.Background(), "missing")
	requireAppError(t, err, appErrors.ErrCourseNotFound)

	repo.err = context.DeadlineExceeded
	_, err = svc.GetCourse(context.Background(), "c1")
	requireAppError(t, err, appErrors.ErrServiceUnavailable)

	repo.err = errors.New("syntax error")
	_, err = svc.GetCourse(context.Background(), "c1")
	requireAppError(t, err, appErrors.ErrInternal)
}

type gatedCourseRepo struct {
	gate  chan struct{}
	calls atomic.Int32
}

func (r *gatedCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	r.calls.Add(1)
	<-r.gate
	return &models.Course{ID: id, Code: "CS301"}, nil
}

func TestCatalogServiceCollapsesConcurrentMisses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := &gatedCourseRepo{gate: make(chan struct{})}
	cache := NewCacheService(repository.NewCacheRepository(client, nil), NewMetricsService(), time.Minute, nil, true)
	svc := NewCatalogService(repo, cache, time.Minute, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan *models.Course, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			course, err := svc.GetCourse(context.Background(), "c3")
			if err == nil {
				results <- course
			}
		}()
	}
	require.Eventually(t, func() bool { return repo.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(repo.gate)
	wg.Wait()
	close(results)

	seen := map[*models.Course]bool{}
	for course := range results {
		assert.Equal(t, "CS301", course.Code)
		seen[course] = true
	}
	assert.LessOrEqual(t, repo.calls.Load(), int32(callers))
	assert.Len(t, seen, callers)
}

type ctxAwareCourseRepo struct {
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func (r *ctxAwareCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	r.once.Do(func() { close(r.started) })
	<-r.gate
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &models.Course{ID: id, Code: "CS410"}, nil
}

func TestCatalogServiceSharedLoadSurvivesCallerCancellation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := &ctxAwareCourseRepo{gate: make(chan struct{}), started: make(chan struct{})}
	cache := NewCacheService(repository.NewCacheRepository(client, nil), NewMetricsService(), time.Minute, nil, true)
	svc := NewCatalogService(repo, cache, time.Minute, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetCourse(firstCtx, "c4")
		firstErr <- err
	}()
	<-repo.started

	type outcome struct {
		course *models.Course
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		course, err := svc.GetCourse(context.Background(), "c4")
		second <- outcome{course, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(repo.gate)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "CS410", got.course.Code)
	assert.True(t, mr.Exists("catalog:course:c4"))
}
