package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/calendar"
)

// SlotStep is the granularity at which candidate start times are enumerated.
const SlotStep calendar.Minutes = 15

type Reason string

const (
	ReasonNone                Reason = ""
	ReasonOutsideWorkingHours Reason = "outside_working_hours"
	ReasonWithinBreak         Reason = "within_break"
	ReasonWithinTimeOff       Reason = "within_time_off"
)

type TimeOffCategory string

const (
	TimeOffVacation TimeOffCategory = "vacation"
	TimeOffSick     TimeOffCategory = "sick"
	TimeOffHoliday  TimeOffCategory = "holiday"
	TimeOffPersonal TimeOffCategory = "personal"
	TimeOffOther    TimeOffCategory = "other"
)

func (c TimeOffCategory) Valid() bool {
	switch c {
	case TimeOffVacation, TimeOffSick, TimeOffHoliday, TimeOffPersonal, TimeOffOther:
		return true
	}
	return false
}

type WorkingHours struct {
	Start calendar.TimeOfDay `json:"start"`
	End   calendar.TimeOfDay `json:"end"`
}

// Break is a recurring hard block on the listed weekdays.
type Break struct {
	Days     []time.Weekday     `json:"days"`
	Start    calendar.TimeOfDay `json:"start"`
	Duration calendar.Minutes   `json:"duration_minutes"`
	Label    string             `json:"label,omitempty"`
}

func (b Break) appliesTo(day time.Weekday) bool {
	for _, d := range b.Days {
		if d == day {
			return true
		}
	}
	return false
}

// TimeOff closes every date in [Start, End], both ends inclusive.
type TimeOff struct {
	ID       uuid.UUID       `json:"id"`
	Start    calendar.Date   `json:"start"`
	End      calendar.Date   `json:"end"`
	Category TimeOffCategory `json:"category"`
	Reason   string          `json:"reason,omitempty"`
}

func (t TimeOff) covers(d calendar.Date) bool {
	return !d.Before(t.Start) && !d.After(t.End)
}

// Profile is a practitioner's weekly availability. The engine treats it as read-only.
type Profile struct {
	PractitionerID uuid.UUID                     `json:"practitioner_id"`
	WeeklyHours    map[time.Weekday]WorkingHours `json:"weekly_hours"`
	Breaks         []Break                       `json:"breaks"`
	TimeOff        []TimeOff                     `json:"time_off"`
	BufferMinutes  calendar.Minutes              `json:"buffer_minutes"`
	Location       *time.Location                `json:"-"`
	UpdatedAt      time.Time                     `json:"updated_at"`
}

// Validate reports every structural problem in the profile, keyed by field path.
func (p Profile) Validate() map[string]string {
	problems := make(map[string]string)
	if p.BufferMinutes < 0 {
		problems["buffer_minutes"] = "must not be negative"
	}
	for day, wh := range p.WeeklyHours {
		if !wh.Start.Before(wh.End) {
			problems[fmt.Sprintf("weekly_hours.%s", calendar.WeekdayName(day))] = "end must be after start"
		}
	}
	for i, b := range p.Breaks {
		if b.Duration <= 0 {
			problems[fmt.Sprintf("breaks[%d].duration_minutes", i)] = "must be positive"
		}
		if len(b.Days) == 0 {
			problems[fmt.Sprintf("breaks[%d].days", i)] = "at least one weekday is required"
		}
	}
	for i, off := range p.TimeOff {
		if off.End.Before(off.Start) {
			problems[fmt.Sprintf("time_off[%d].end", i)] = "must not be before start"
		}
		if !off.Category.Valid() {
			problems[fmt.Sprintf("time_off[%d].category", i)] = "unknown category"
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

func (p Profile) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// WorkingInterval returns the working window for the date, if the practitioner works that day.
func (p Profile) WorkingInterval(d calendar.Date) (calendar.Interval, bool) {
	wh, ok := p.WeeklyHours[d.Weekday()]
	if !ok {
		return calendar.Interval{}, false
	}
	loc := p.location()
	return calendar.Interval{Start: wh.Start.On(d, loc), End: wh.End.On(d, loc)}, true
}

// Check returns the first rule that rejects [at, at+duration), or ReasonNone.
func (p Profile) Check(at time.Time, duration calendar.Minutes) Reason {
	at = at.In(p.location())
	candidate := calendar.NewInterval(at, duration)
	date := calendar.DateOf(at)

	working, ok := p.WorkingInterval(date)
	if !ok || !candidate.Within(working) {
		return ReasonOutsideWorkingHours
	}

	for _, b := range p.Breaks {
		if !b.appliesTo(date.Weekday()) {
			continue
		}
		blocked := calendar.NewInterval(b.Start.On(date, p.location()), b.Duration)
		// Both break edges block a start instant.
		if candidate.Overlaps(blocked, 0) || at.Equal(blocked.End) {
			return ReasonWithinBreak
		}
	}

	last := calendar.DateOf(candidate.End.Add(-time.Nanosecond))
	for _, off := range p.TimeOff {
		if off.covers(date) || off.covers(last) {
			return ReasonWithinTimeOff
		}
	}

	return ReasonNone
}

func (p Profile) IsAvailable(at time.Time, duration calendar.Minutes) bool {
	return p.Check(at, duration) == ReasonNone
}

// CandidateSlots enumerates start times on date at SlotStep granularity that pass
// IsAvailable and are not reported by blocked. blocked may be nil.
func (p Profile) CandidateSlots(date calendar.Date, duration calendar.Minutes, blocked func(calendar.Interval) bool) []time.Time {
	if duration <= 0 {
		return nil
	}
	working, ok := p.WorkingInterval(date)
	if !ok {
		return nil
	}

	var slots []time.Time
	for t := working.Start; !t.Add(duration.Duration()).After(working.End); t = t.Add(SlotStep.Duration()) {
		if !p.IsAvailable(t, duration) {
			continue
		}
		if blocked != nil && blocked(calendar.NewInterval(t, duration)) {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}

// WorkingDays lists the weekdays with working hours, Monday first.
func (p Profile) WorkingDays() []time.Weekday {
	days := make([]time.Weekday, 0, len(p.WeeklyHours))
	for day := range p.WeeklyHours {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool {
		return (days[i]+6)%7 < (days[j]+6)%7
	})
	return days
}
