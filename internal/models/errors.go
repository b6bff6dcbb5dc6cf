package models

import "errors"

// Sentinel errors shared by stores and services.
var (
	ErrCourseNotFound        = errors.New("course not found")
	ErrCourseInactive        = errors.New("course inactive")
	ErrInsufficientCapacity  = errors.New("insufficient capacity")
	ErrDuplicateEnrollment   = errors.New("duplicate active enrollment")
	ErrEnrollmentNotFound    = errors.New("enrollment not found")
	ErrStudentNotFound       = errors.New("student not found")
	ErrInvalidTransition     = errors.New("invalid enrollment status transition")
	ErrStaleEnrollmentStatus = errors.New("enrollment status changed concurrently")
)
