package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/calendar"
)

type Appointment struct {
	ID                 uuid.UUID
	PractitionerID     uuid.UUID
	ClientID           uuid.UUID
	ServiceType        string
	StartTime          time.Time
	DurationMinutes    calendar.Minutes
	Status             AppointmentStatus
	SeriesID           *uuid.UUID
	Detached           bool       // individually rescheduled out of its series
	RescheduledFromID  *uuid.UUID // set on the replacement created by a reschedule
	CancellationReason *string
	ReminderSentAt     *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a Appointment) EndTime() time.Time {
	return a.StartTime.Add(a.DurationMinutes.Duration())
}

func (a Appointment) Interval() calendar.Interval {
	return calendar.NewInterval(a.StartTime, a.DurationMinutes)
}

// OccupiesCalendar reports whether the appointment still blocks its interval.
func (a Appointment) OccupiesCalendar() bool {
	return !a.Status.Released()
}

// EventLog is an append-only audit record of engine mutations.
type EventLog struct {
	ID             int64
	EventType      string
	PractitionerID uuid.UUID
	AppointmentID  *uuid.UUID
	Payload        []byte
	CreatedAt      time.Time
}

// BookingRequest is the input to Service.Book.
type BookingRequest struct {
	PractitionerID  uuid.UUID
	ClientID        uuid.UUID
	Start           time.Time
	DurationMinutes calendar.Minutes
	ServiceType     string
}

// SkippedOccurrence is a series occurrence that failed validation.
type SkippedOccurrence struct {
	Start  time.Time
	Reason error
}

// SeriesResult reports the outcome of CreateRecurringSeries. Skipped is non-empty on
// a partial success.
type SeriesResult struct {
	SeriesID uuid.UUID
	Created  []Appointment
	Skipped  []SkippedOccurrence
}

func (r SeriesResult) Partial() bool {
	return len(r.Skipped) > 0
}

// RescheduleResult holds the original, now marked rescheduled, and its replacement.
type RescheduleResult struct {
	Original    Appointment
	Replacement Appointment
}

func cloneAppointment(a Appointment) Appointment {
	clone := a
	if a.SeriesID != nil {
		id := *a.SeriesID
		clone.SeriesID = &id
	}
	if a.RescheduledFromID != nil {
		id := *a.RescheduledFromID
		clone.RescheduledFromID = &id
	}
	if a.CancellationReason != nil {
		reason := *a.CancellationReason
		clone.CancellationReason = &reason
	}
	if a.ReminderSentAt != nil {
		at := *a.ReminderSentAt
		clone.ReminderSentAt = &at
	}
	return clone
}
