// Package apperr defines the error taxonomy shared by the attendance core.
// Callers classify errors with errors.As or the Is* helpers; every type is
// returned as a pointer.
package apperr

import (
	"errors"
	"fmt"

	"github.com/zulandar/rollcall/internal/models"
)

// ValidationError reports malformed user input. Conversation flows keep
// their state at the failing step so the user can retry.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown course, session, person or class.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// DuplicateError reports that attendance was already recorded for the
// session and person. Status carries the existing record's status.
type DuplicateError struct {
	SessionID string
	PersonID  string
	Status    models.AttendanceStatus
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("attendance for %s in session %s already recorded as %s", e.PersonID, e.SessionID, e.Status)
}

// ConflictError reports that an open or closing session already exists for
// the course and date. Existing is that session.
type ConflictError struct {
	CourseID string
	Date     string
	Existing *models.Session
}

func (e *ConflictError) Error() string {
	id := ""
	if e.Existing != nil {
		id = e.Existing.ID
	}
	return fmt.Sprintf("course %s already has an active session on %s (%s)", e.CourseID, e.Date, id)
}

// GeofenceRejection reports a check-in refused by the course's location
// policy. VenueOnly is set when the course accepts in-person codes only.
type GeofenceRejection struct {
	DistanceMeters float64
	RadiusMeters   int
	Attempt        int
	VenueOnly      bool
}

func (e *GeofenceRejection) Error() string {
	if e.VenueOnly {
		return "course accepts venue check-in only"
	}
	return fmt.Sprintf("%.0fm from classroom exceeds allowed %dm", e.DistanceMeters, e.RadiusMeters)
}

// DeliveryFailure wraps a failed outbound notification.
type DeliveryFailure struct {
	Token string
	Err   error
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Token, e.Err)
}

func (e *DeliveryFailure) Unwrap() error { return e.Err }

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsDuplicate reports whether err wraps a DuplicateError.
func IsDuplicate(err error) bool {
	var target *DuplicateError
	return errors.As(err, &target)
}

// IsConflict reports whether err wraps a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}
