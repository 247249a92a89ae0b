package appointment

import "fmt"

type AppointmentStatus string

const (
	StatusScheduled   AppointmentStatus = "scheduled"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCheckedIn   AppointmentStatus = "checked_in"
	StatusInProgress  AppointmentStatus = "in_progress"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusNoShow      AppointmentStatus = "no_show"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

func ParseStatus(s string) (AppointmentStatus, error) {
	st := AppointmentStatus(s)
	switch st {
	case StatusScheduled, StatusConfirmed, StatusCheckedIn, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return st, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

// Released statuses no longer occupy the calendar. Completed and in-progress
// appointments still do.
func (s AppointmentStatus) Released() bool {
	switch s {
	case StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// Upcoming statuses are bookings that have not started yet.
func (s AppointmentStatus) Upcoming() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

type Transition string

const (
	TransitionConfirm    Transition = "confirm"
	TransitionCheckIn    Transition = "check_in"
	TransitionStart      Transition = "start"
	TransitionComplete   Transition = "complete"
	TransitionNoShow     Transition = "no_show"
	TransitionCancel     Transition = "cancel"
	TransitionReschedule Transition = "reschedule"
)

type rule struct {
	from []AppointmentStatus
	to   AppointmentStatus
}

// transitions is the complete status machine; anything not listed is rejected.
var transitions = map[Transition]rule{
	TransitionConfirm:    {from: []AppointmentStatus{StatusScheduled, StatusConfirmed}, to: StatusConfirmed},
	TransitionCheckIn:    {from: []AppointmentStatus{StatusScheduled, StatusConfirmed}, to: StatusCheckedIn},
	TransitionStart:      {from: []AppointmentStatus{StatusCheckedIn}, to: StatusInProgress},
	TransitionComplete:   {from: []AppointmentStatus{StatusInProgress}, to: StatusCompleted},
	TransitionNoShow:     {from: []AppointmentStatus{StatusInProgress}, to: StatusNoShow},
	TransitionCancel:     {from: []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusCheckedIn}, to: StatusCancelled},
	TransitionReschedule: {from: []AppointmentStatus{StatusScheduled, StatusConfirmed}, to: StatusRescheduled},
}

// Next returns the status reached by applying t to from.
func Next(from AppointmentStatus, t Transition) (AppointmentStatus, bool) {
	r, ok := transitions[t]
	if !ok {
		return from, false
	}
	for _, s := range r.from {
		if s == from {
			return r.to, true
		}
	}
	return from, false
}

// StatusColor maps a status to the display color used by client applications.
func StatusColor(s AppointmentStatus) string {
	switch s {
	case StatusScheduled:
		return "blue"
	case StatusConfirmed:
		return "green"
	case StatusCheckedIn, StatusInProgress:
		return "orange"
	case StatusCompleted:
		return "gray"
	case StatusCancelled, StatusNoShow:
		return "red"
	case StatusRescheduled:
		return "purple"
	}
	return "gray"
}
