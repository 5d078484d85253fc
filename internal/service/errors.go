package service

import (
	"errors"
	"fmt"
)

// Sentinel errors translated by handlers into HTTP statuses. Validation and
// authorization failures are detected before any mutation.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrClassroomNotFound  = errors.New("classroom not found")
	ErrMaterialNotFound   = errors.New("material not found")
	ErrAssignableNotFound = errors.New("entity not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrDiscussionNotFound = errors.New("discussion not found")
	ErrMeetingNotFound    = errors.New("meeting not found")
	ErrFileNotFound       = errors.New("file not found")

	ErrForbidden   = errors.New("insufficient permissions")
	ErrNotAssigned = errors.New("not assigned to this entity")

	ErrDeadlinePassed = errors.New("past due date")
	ErrAlreadyGraded  = errors.New("already graded, cannot modify")

	ErrAlreadyJoined      = errors.New("already joined this class")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")

	ErrSolutionRequired = errors.New("auto grading requires a solution file")

	// ErrValidation marks request-content failures found outside struct
	// validation, such as file type and roster membership checks.
	ErrValidation = errors.New("invalid input")
)

// validationError wraps a human-readable message in ErrValidation so
// handlers return it as a 400 rather than an internal error.
func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}
