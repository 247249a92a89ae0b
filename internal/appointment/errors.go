package appointment

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/availability"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrProfileNotFound     = errors.New("availability profile not found")

	// ErrUnavailable matches conflicts raised by the availability profile.
	ErrUnavailable = errors.New("time is not available")
	// ErrBookingConflict matches overlaps with an existing appointment.
	ErrBookingConflict = errors.New("time overlaps an existing appointment")

	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrNoValidOccurrences      = errors.New("no series occurrence could be scheduled")

	// ErrPractitionerBusy is returned when the practitioner lock could not be taken in time.
	ErrPractitionerBusy = errors.New("practitioner calendar is busy, please retry")
	// ErrLockUnavailable is returned when the lock store cannot be reached at all.
	ErrLockUnavailable = errors.New("practitioner lock backend unavailable")
	// ErrStorageUnavailable wraps every failure of the storage collaborator.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrReminderNotDue is returned when marking a reminder for an appointment that
	// is no longer upcoming or was already reminded.
	ErrReminderNotDue = errors.New("appointment does not need a reminder")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v.FieldErrors[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) orNil() error {
	if v == nil || len(v.FieldErrors) == 0 {
		return nil
	}
	return v
}

type ConflictReason string

const (
	ConflictOutsideWorkingHours = ConflictReason(availability.ReasonOutsideWorkingHours)
	ConflictWithinBreak         = ConflictReason(availability.ReasonWithinBreak)
	ConflictWithinTimeOff       = ConflictReason(availability.ReasonWithinTimeOff)
	ConflictOverlapsAppointment ConflictReason = "overlaps_appointment"
)

// ConflictError explains why a candidate interval was rejected.
type ConflictError struct {
	Reason     ConflictReason
	Start      time.Time
	End        time.Time
	BlockingID *uuid.UUID // set for ConflictOverlapsAppointment
}

func (e *ConflictError) Error() string {
	if e.BlockingID != nil {
		return fmt.Sprintf("%s at %s: blocked by appointment %s", e.Reason, e.Start.Format(time.RFC3339), e.BlockingID)
	}
	return fmt.Sprintf("%s at %s", e.Reason, e.Start.Format(time.RFC3339))
}

func (e *ConflictError) Is(target error) bool {
	switch target {
	case ErrBookingConflict:
		return e.Reason == ConflictOverlapsAppointment
	case ErrUnavailable:
		return e.Reason != ConflictOverlapsAppointment
	}
	return false
}

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	AppointmentID uuid.UUID
	From          AppointmentStatus
	Transition    Transition
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s appointment %s in status %s", e.Transition, e.AppointmentID, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidStatusTransition
}

// SeriesError is returned when not a single occurrence of a series validated.
type SeriesError struct {
	Skipped []SkippedOccurrence
}

func (e *SeriesError) Error() string {
	return fmt.Sprintf("%s: %d occurrences rejected", ErrNoValidOccurrences, len(e.Skipped))
}

func (e *SeriesError) Unwrap() error {
	return ErrNoValidOccurrences
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// ErrorKind maps sentinel and typed errors to a stable label for logs and API codes.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		return "validation_failed"
	case errors.Is(err, ErrAppointmentNotFound), errors.Is(err, ErrProfileNotFound):
		return "not_found"
	case errors.Is(err, ErrBookingConflict):
		return "booking_conflict"
	case errors.Is(err, ErrUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrInvalidStatusTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNoValidOccurrences):
		return "no_valid_occurrences"
	case errors.Is(err, ErrPractitionerBusy):
		return "practitioner_busy"
	case errors.Is(err, ErrLockUnavailable):
		return "lock_unavailable"
	case errors.Is(err, ErrReminderNotDue):
		return "reminder_not_due"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	}
	return "unexpected"
}
