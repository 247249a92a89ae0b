package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/availability"
	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/recurrence"
)

type BookAppointmentRequest struct {
	ClientID        string    `json:"client_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	ServiceType     string    `json:"service_type"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type CompleteRequest struct {
	NoShow bool `json:"no_show"`
}

type RescheduleRequest struct {
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
}

type EndConditionRequest struct {
	Kind  string        `json:"kind"`
	Date  calendar.Date `json:"date,omitempty"`
	Count int           `json:"count,omitempty"`
}

type PatternRequest struct {
	Frequency  string              `json:"frequency"`
	Interval   int                 `json:"interval"`
	DaysOfWeek []string            `json:"days_of_week,omitempty"`
	End        EndConditionRequest `json:"end"`
}

type CreateSeriesRequest struct {
	ClientID        string         `json:"client_id"`
	FirstStart      time.Time      `json:"first_start"`
	DurationMinutes int            `json:"duration_minutes"`
	ServiceType     string         `json:"service_type"`
	Pattern         PatternRequest `json:"pattern"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	PractitionerID     uuid.UUID  `json:"practitioner_id"`
	ClientID           uuid.UUID  `json:"client_id"`
	ServiceType        string     `json:"service_type,omitempty"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            time.Time  `json:"end_time"`
	DurationMinutes    int        `json:"duration_minutes"`
	Status             string     `json:"status"`
	StatusColor        string     `json:"status_color"`
	SeriesID           *uuid.UUID `json:"series_id,omitempty"`
	Detached           bool       `json:"detached,omitempty"`
	RescheduledFromID  *uuid.UUID `json:"rescheduled_from_id,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	ReminderSentAt     *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type SkippedOccurrenceResponse struct {
	StartTime time.Time `json:"start_time"`
	Reason    string    `json:"reason"`
	Details   string    `json:"details"`
}

type SeriesResponse struct {
	SeriesID uuid.UUID                   `json:"series_id"`
	Created  []AppointmentResponse       `json:"created"`
	Skipped  []SkippedOccurrenceResponse `json:"skipped"`
}

type RescheduleResponse struct {
	Original    AppointmentResponse `json:"original"`
	Replacement AppointmentResponse `json:"replacement"`
}

type SlotsResponse struct {
	Date            calendar.Date `json:"date"`
	DurationMinutes int           `json:"duration_minutes"`
	Slots           []time.Time   `json:"slots"`
}

type AvailabilityCheckResponse struct {
	Available  bool       `json:"available"`
	Reason     string     `json:"reason,omitempty"`
	BlockingID *uuid.UUID `json:"blocking_appointment_id,omitempty"`
}

type WorkingHoursPayload struct {
	Start calendar.TimeOfDay `json:"start"`
	End   calendar.TimeOfDay `json:"end"`
}

type BreakPayload struct {
	Days            []string           `json:"days"`
	Start           calendar.TimeOfDay `json:"start"`
	DurationMinutes int                `json:"duration_minutes"`
	Label           string             `json:"label,omitempty"`
}

type TimeOffPayload struct {
	ID       uuid.UUID     `json:"id,omitempty"`
	Start    calendar.Date `json:"start"`
	End      calendar.Date `json:"end"`
	Category string        `json:"category"`
	Reason   string        `json:"reason,omitempty"`
}

// ProfilePayload is both the request and response body of the profile endpoints.
type ProfilePayload struct {
	Timezone      string                         `json:"timezone"`
	BufferMinutes int                            `json:"buffer_minutes"`
	WeeklyHours   map[string]WorkingHoursPayload `json:"weekly_hours"`
	Breaks        []BreakPayload                 `json:"breaks"`
	TimeOff       []TimeOffPayload               `json:"time_off"`
	UpdatedAt     *time.Time                     `json:"updated_at,omitempty"`
}

type PractitionersResponse struct {
	Practitioners []uuid.UUID `json:"practitioners"`
}

type ErrorResponse struct {
	Error      string            `json:"error"`
	Details    string            `json:"details,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	BlockingID *uuid.UUID        `json:"blocking_appointment_id,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		PractitionerID:     a.PractitionerID,
		ClientID:           a.ClientID,
		ServiceType:        a.ServiceType,
		StartTime:          a.StartTime,
		EndTime:            a.EndTime(),
		DurationMinutes:    int(a.DurationMinutes),
		Status:             string(a.Status),
		StatusColor:        appointment.StatusColor(a.Status),
		SeriesID:           a.SeriesID,
		Detached:           a.Detached,
		RescheduledFromID:  a.RescheduledFromID,
		CancellationReason: a.CancellationReason,
		ReminderSentAt:     a.ReminderSentAt,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toAppointmentResponses(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

func toSkippedResponses(skipped []appointment.SkippedOccurrence) []SkippedOccurrenceResponse {
	out := make([]SkippedOccurrenceResponse, 0, len(skipped))
	for _, s := range skipped {
		out = append(out, SkippedOccurrenceResponse{
			StartTime: s.Start,
			Reason:    skipReason(s.Reason),
			Details:   s.Reason.Error(),
		})
	}
	return out
}

func skipReason(err error) string {
	var conflict *appointment.ConflictError
	if errors.As(err, &conflict) {
		return string(conflict.Reason)
	}
	return appointment.ErrorKind(err)
}

func (p PatternRequest) toPattern() (recurrence.Pattern, map[string]string) {
	problems := make(map[string]string)
	freq, err := recurrence.ParseFrequency(p.Frequency)
	if err != nil {
		problems["pattern.frequency"] = err.Error()
	}

	days, dayProblems := parseWeekdays(p.DaysOfWeek, "pattern.days_of_week")
	for k, v := range dayProblems {
		problems[k] = v
	}

	var end recurrence.EndCondition
	switch recurrence.EndKind(p.End.Kind) {
	case recurrence.EndNever, "":
		end = recurrence.Never()
	case recurrence.EndOnDate:
		end = recurrence.OnDate(p.End.Date)
	case recurrence.EndAfterCount:
		end = recurrence.AfterCount(p.End.Count)
	default:
		problems["pattern.end.kind"] = fmt.Sprintf("unknown end condition %q", p.End.Kind)
	}

	return recurrence.Pattern{Frequency: freq, Interval: p.Interval, DaysOfWeek: days, End: end}, problems
}

func parseWeekdays(names []string, field string) ([]time.Weekday, map[string]string) {
	problems := make(map[string]string)
	days := make([]time.Weekday, 0, len(names))
	for i, name := range names {
		day, err := calendar.ParseWeekday(name)
		if err != nil {
			problems[fmt.Sprintf("%s[%d]", field, i)] = err.Error()
			continue
		}
		days = append(days, day)
	}
	return days, problems
}

func (p ProfilePayload) toProfile(practitionerID uuid.UUID) (availability.Profile, map[string]string) {
	problems := make(map[string]string)
	profile := availability.Profile{
		PractitionerID: practitionerID,
		WeeklyHours:    make(map[time.Weekday]availability.WorkingHours, len(p.WeeklyHours)),
		BufferMinutes:  calendar.Minutes(p.BufferMinutes),
	}

	if p.Timezone != "" {
		loc, err := time.LoadLocation(p.Timezone)
		if err != nil {
			problems["timezone"] = "unknown timezone"
		} else {
			profile.Location = loc
		}
	}

	for name, wh := range p.WeeklyHours {
		day, err := calendar.ParseWeekday(name)
		if err != nil {
			problems["weekly_hours."+name] = err.Error()
			continue
		}
		profile.WeeklyHours[day] = availability.WorkingHours{Start: wh.Start, End: wh.End}
	}

	for i, b := range p.Breaks {
		days, dayProblems := parseWeekdays(b.Days, fmt.Sprintf("breaks[%d].days", i))
		for k, v := range dayProblems {
			problems[k] = v
		}
		profile.Breaks = append(profile.Breaks, availability.Break{
			Days:     days,
			Start:    b.Start,
			Duration: calendar.Minutes(b.DurationMinutes),
			Label:    b.Label,
		})
	}

	for _, off := range p.TimeOff {
		id := off.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		profile.TimeOff = append(profile.TimeOff, availability.TimeOff{
			ID:       id,
			Start:    off.Start,
			End:      off.End,
			Category: availability.TimeOffCategory(off.Category),
			Reason:   off.Reason,
		})
	}

	for k, v := range profile.Validate() {
		problems[k] = v
	}
	return profile, problems
}

func toProfilePayload(p availability.Profile) ProfilePayload {
	out := ProfilePayload{
		BufferMinutes: int(p.BufferMinutes),
		WeeklyHours:   make(map[string]WorkingHoursPayload, len(p.WeeklyHours)),
		Breaks:        make([]BreakPayload, 0, len(p.Breaks)),
		TimeOff:       make([]TimeOffPayload, 0, len(p.TimeOff)),
	}
	if p.Location != nil {
		out.Timezone = p.Location.String()
	}
	if !p.UpdatedAt.IsZero() {
		updated := p.UpdatedAt
		out.UpdatedAt = &updated
	}
	for _, day := range p.WorkingDays() {
		wh := p.WeeklyHours[day]
		out.WeeklyHours[calendar.WeekdayName(day)] = WorkingHoursPayload{Start: wh.Start, End: wh.End}
	}
	for _, b := range p.Breaks {
		days := make([]string, 0, len(b.Days))
		for _, d := range b.Days {
			days = append(days, calendar.WeekdayName(d))
		}
		out.Breaks = append(out.Breaks, BreakPayload{
			Days:            days,
			Start:           b.Start,
			DurationMinutes: int(b.Duration),
			Label:           b.Label,
		})
	}
	for _, off := range p.TimeOff {
		out.TimeOff = append(out.TimeOff, TimeOffPayload{
			ID:       off.ID,
			Start:    off.Start,
			End:      off.End,
			Category: string(off.Category),
			Reason:   off.Reason,
		})
	}
	return out
}
