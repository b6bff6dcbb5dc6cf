package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type fakeStudents struct {
	items map[string]*models.Student
	err   error
}

func (f *fakeStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	student, ok := f.items[id]
	if !ok {
		return nil, models.ErrStudentNotFound
	}
	cp := *student
	return &cp, nil
}

type fakeCourses struct {
	items map[string]*models.Course
	err   error
}

func (f *fakeCourses) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	if f.err != nil {
		return nil, f.err
	}
	course, ok := f.items[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrCourseNotFound, "")
	}
	cp := *course
	return &cp, nil
}

type fakeSeatStore struct {
	mu         sync.Mutex
	seats      map[string]*models.CourseSeat
	reserveErr error
	releaseErr error
	reserves   int
	releases   int
}

func newFakeSeatStore(courses ...*models.Course) *fakeSeatStore {
	store := &fakeSeatStore{seats: make(map[string]*models.CourseSeat)}
	for _, course := range courses {
		seat := course.Seat()
		store.seats[course.ID] = &seat
	}
	return store
}

func (f *fakeSeatStore) Get(ctx context.Context, courseID string) (*models.CourseSeat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seat, ok := f.seats[courseID]
	if !ok {
		return nil, models.ErrCourseNotFound
	}
	cp := *seat
	return &cp, nil
}

func (f *fakeSeatStore) Reserve(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	seat, ok := f.seats[courseID]
	switch {
	case !ok:
		return nil, models.ErrCourseNotFound
	case seat.Status != models.CourseStatusActive:
		return nil, models.ErrCourseInactive
	case seat.Enrolled+quantity > seat.Capacity:
		return nil, models.ErrInsufficientCapacity
	}
	seat.Enrolled += quantity
	f.reserves++
	cp := *seat
	return &cp, nil
}

func (f *fakeSeatStore) Release(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseErr != nil {
		return nil, f.releaseErr
	}
	seat, ok := f.seats[courseID]
	if !ok {
		return nil, models.ErrCourseNotFound
	}
	seat.Enrolled -= quantity
	if seat.Enrolled < 0 {
		seat.Enrolled = 0
	}
	f.releases++
	cp := *seat
	return &cp, nil
}

func (f *fakeSeatStore) enrolled(courseID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seats[courseID].Enrolled
}

func (f *fakeSeatStore) setEnrolled(courseID string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seats[courseID].Enrolled = n
}

func (f *fakeSeatStore) setStatus(courseID string, status models.CourseStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seats[courseID].Status = status
}

// fakeEnrollmentStore keeps enrollments in memory and enforces one active enrollment per
// student and course the way the partial unique index does.
type fakeEnrollmentStore struct {
	mu          sync.Mutex
	items       map[string]*models.Enrollment
	instructors map[string]string
	seq        int
	createErr  error
	countErr   error
	hideActive bool
	updateErr  func(e *models.Enrollment) error
}

func newFakeEnrollmentStore() *fakeEnrollmentStore {
	return &fakeEnrollmentStore{items: make(map[string]*models.Enrollment)}
}

func hasStatus(statuses []models.EnrollmentStatus, status models.EnrollmentStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (f *fakeEnrollmentStore) Create(ctx context.Context, enrollment *models.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.items {
		if existing.StudentID == enrollment.StudentID && existing.CourseID == enrollment.CourseID && existing.IsActive() {
			return fmt.Errorf("insert enrollment: %w", models.ErrDuplicateEnrollment)
		}
	}
	f.seq++
	enrollment.ID = fmt.Sprintf("enr-%d", f.seq)
	cp := *enrollment
	f.items[enrollment.ID] = &cp
	return nil
}

func (f *fakeEnrollmentStore) seed(enrollment models.Enrollment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[enrollment.ID] = &enrollment
}

func (f *fakeEnrollmentStore) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	enrollment, ok := f.items[id]
	if !ok {
		return nil, models.ErrEnrollmentNotFound
	}
	cp := *enrollment
	return &cp, nil
}

func (f *fakeEnrollmentStore) UpdateStatus(ctx context.Context, enrollment *models.Enrollment, previous models.EnrollmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		if err := f.updateErr(enrollment); err != nil {
			return err
		}
	}
	current, ok := f.items[enrollment.ID]
	if !ok {
		return models.ErrEnrollmentNotFound
	}
	if current.Status != previous {
		return models.ErrStaleEnrollmentStatus
	}
	cp := *enrollment
	f.items[enrollment.ID] = &cp
	return nil
}

func (f *fakeEnrollmentStore) CountByStudent(ctx context.Context, studentID string, statuses []models.EnrollmentStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	count := 0
	for _, e := range f.items {
		if e.StudentID == studentID && hasStatus(statuses, e.Status) {
			count++
		}
	}
	return count, nil
}

func (f *fakeEnrollmentStore) ExistsActive(ctx context.Context, studentID, courseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hideActive {
		return false, nil
	}
	for _, e := range f.items {
		if e.StudentID == studentID && e.CourseID == courseID && e.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEnrollmentStore) CompletedCourseIDs(ctx context.Context, studentID string, courseIDs []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, e := range f.items {
		if e.StudentID != studentID || e.Status != models.EnrollmentStatusCompleted {
			continue
		}
		for _, id := range courseIDs {
			if id == e.CourseID {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (f *fakeEnrollmentStore) CountByCourse(ctx context.Context, courseID string, statuses []models.EnrollmentStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	count := 0
	for _, e := range f.items {
		if e.CourseID == courseID && hasStatus(statuses, e.Status) {
			count++
		}
	}
	return count, nil
}

func (f *fakeEnrollmentStore) ListByCourse(ctx context.Context, courseID string, statuses []models.EnrollmentStatus) ([]models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []models.Enrollment
	for _, e := range f.items {
		if e.CourseID == courseID && hasStatus(statuses, e.Status) {
			items = append(items, *e)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].StudentName < items[j].StudentName })
	return items, nil
}

func (f *fakeEnrollmentStore) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []models.Enrollment
	for _, e := range f.items {
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && e.CourseID != filter.CourseID {
			continue
		}
		if filter.InstructorID != "" && f.instructors[e.CourseID] != filter.InstructorID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		items = append(items, *e)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, len(items), nil
}

func (f *fakeEnrollmentStore) get(id string) models.Enrollment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.items[id]
}

type scheduledReconciliation struct {
	courseID string
	reason   string
}

type recordingScheduler struct {
	mu    sync.Mutex
	calls []scheduledReconciliation
}

func (r *recordingScheduler) Schedule(ctx context.Context, courseID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, scheduledReconciliation{courseID: courseID, reason: reason})
	return nil
}

func (r *recordingScheduler) scheduled() []scheduledReconciliation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scheduledReconciliation(nil), r.calls...)
}

var errStoreDown = errors.New("connection refused")
