package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

// isUnavailable reports whether err means a collaborator could not be reached in time.
func isUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, redis.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// seatError maps seat store failures onto API errors.
func seatError(err error, message string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrCourseNotFound):
		return appErrors.Clone(appErrors.ErrCourseNotFound, "")
	case errors.Is(err, models.ErrCourseInactive):
		return appErrors.Clone(appErrors.ErrCourseInactive, "")
	case errors.Is(err, models.ErrInsufficientCapacity):
		return appErrors.Clone(appErrors.ErrInsufficientCapacity, "")
	case isUnavailable(err):
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "seat inventory unavailable")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}

// storeError maps enrollment store failures onto API errors.
func storeError(err error, message string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrEnrollmentNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	case errors.Is(err, models.ErrStaleEnrollmentStatus):
		return appErrors.Clone(appErrors.ErrConflict, "enrollment was modified concurrently")
	case errors.Is(err, models.ErrDuplicateEnrollment):
		return appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
	case errors.Is(err, models.ErrInvalidTransition):
		return appErrors.Clone(appErrors.ErrInvalidTransition, err.Error())
	case isUnavailable(err):
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "enrollment store unavailable")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}
