package appointment

import (
	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/calendar"
)

// FindConflict returns the first existing appointment whose interval overlaps the
// candidate once the candidate is padded by buffer on both sides. Appointments that
// no longer occupy the calendar, and the one identified by excludingID, are ignored.
func FindConflict(candidate calendar.Interval, existing []Appointment, excludingID uuid.UUID, buffer calendar.Minutes) (*Appointment, bool) {
	for i := range existing {
		a := &existing[i]
		if excludingID != uuid.Nil && a.ID == excludingID {
			continue
		}
		if !a.OccupiesCalendar() {
			continue
		}
		if candidate.Overlaps(a.Interval(), buffer) {
			return a, true
		}
	}
	return nil, false
}

func HasConflict(candidate calendar.Interval, existing []Appointment, excludingID uuid.UUID, buffer calendar.Minutes) bool {
	_, found := FindConflict(candidate, existing, excludingID, buffer)
	return found
}
