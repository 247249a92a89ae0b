package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/practice-scheduling/internal/availability"
	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/config"
	"github.com/hackgods/practice-scheduling/internal/lock"
	"github.com/hackgods/practice-scheduling/internal/logging"
	"github.com/hackgods/practice-scheduling/internal/recurrence"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventSeriesCreated          = "SERIES_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventStatusChanged          = "APPOINTMENT_STATUS_CHANGED"
	EventReminderSent           = "APPOINTMENT_REMINDER_SENT"
)

const (
	defaultUpcomingLimit = 20
	maxUpcomingLimit     = 100
)

// SeriesRequest is the input to Service.CreateRecurringSeries.
type SeriesRequest struct {
	PractitionerID  uuid.UUID
	ClientID        uuid.UUID
	First           time.Time
	DurationMinutes calendar.Minutes
	ServiceType     string
	Pattern         recurrence.Pattern
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(s *Service) { s.newID = gen }
}

type Service struct {
	repo   Repository
	locker lock.Locker
	cfg    config.Config
	logger *zap.Logger
	now    func() time.Time
	newID  func() uuid.UUID
}

func NewService(repo Repository, locker lock.Locker, cfg config.Config, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book creates a single scheduled appointment after the availability and
// conflict checks pass. The check and the write run under the practitioner lock.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	v := &ValidationError{}
	if req.PractitionerID == uuid.Nil {
		v.add("practitioner_id", "is required")
	}
	if req.ClientID == uuid.Nil {
		v.add("client_id", "is required")
	}
	if req.Start.IsZero() {
		v.add("start_time", "is required")
	}
	if req.DurationMinutes <= 0 {
		v.add("duration_minutes", "must be positive")
	}
	if err := v.orNil(); err != nil {
		return nil, s.reject(ctx, "book", req.PractitionerID, nil, err)
	}

	var booked *Appointment
	err := s.withPractitioner(ctx, req.PractitionerID, func(lockCtx context.Context) error {
		profile, existing, err := s.loadCalendar(lockCtx, req.PractitionerID)
		if err != nil {
			return err
		}
		if err := checkSlot(profile, existing, req.Start, req.DurationMinutes, uuid.Nil); err != nil {
			return err
		}

		now := s.now()
		a := Appointment{
			ID:              s.newID(),
			PractitionerID:  req.PractitionerID,
			ClientID:        req.ClientID,
			ServiceType:     strings.TrimSpace(req.ServiceType),
			StartTime:       req.Start,
			DurationMinutes: req.DurationMinutes,
			Status:          StatusScheduled,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.SaveAppointment(lockCtx, a); err != nil {
			return storageError("save appointment", err)
		}
		booked = &a

		s.logEvent(lockCtx, a.PractitionerID, &a.ID, EventAppointmentBooked, map[string]any{
			"client_id":        a.ClientID.String(),
			"start_time":       a.StartTime,
			"duration_minutes": a.DurationMinutes,
		})
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, "book", req.PractitionerID, nil, err)
	}
	return booked, nil
}

// CreateRecurringSeries expands the pattern and books every occurrence that passes
// validation against the profile, the stored calendar, and the occurrences already
// accepted for this series. Rejected occurrences are reported in the result.
func (s *Service) CreateRecurringSeries(ctx context.Context, req SeriesRequest) (*SeriesResult, error) {
	v := &ValidationError{}
	if req.PractitionerID == uuid.Nil {
		v.add("practitioner_id", "is required")
	}
	if req.ClientID == uuid.Nil {
		v.add("client_id", "is required")
	}
	if req.First.IsZero() {
		v.add("first_start", "is required")
	}
	if req.DurationMinutes <= 0 {
		v.add("duration_minutes", "must be positive")
	}
	if err := req.Pattern.Validate(req.First); err != nil {
		v.add("pattern", err.Error())
	}
	if err := v.orNil(); err != nil {
		return nil, s.reject(ctx, "create_series", req.PractitionerID, nil, err)
	}

	var result *SeriesResult
	err := s.withPractitioner(ctx, req.PractitionerID, func(lockCtx context.Context) error {
		profile, existing, err := s.loadCalendar(lockCtx, req.PractitionerID)
		if err != nil {
			return err
		}

		seriesID := s.newID()
		now := s.now()
		res := &SeriesResult{SeriesID: seriesID}
		pool := append([]Appointment(nil), existing...)

		for start := range recurrence.Expand(req.First, req.Pattern) {
			if err := checkSlot(profile, pool, start, req.DurationMinutes, uuid.Nil); err != nil {
				res.Skipped = append(res.Skipped, SkippedOccurrence{Start: start, Reason: err})
				continue
			}
			sid := seriesID
			a := Appointment{
				ID:              s.newID(),
				PractitionerID:  req.PractitionerID,
				ClientID:        req.ClientID,
				ServiceType:     strings.TrimSpace(req.ServiceType),
				StartTime:       start,
				DurationMinutes: req.DurationMinutes,
				Status:          StatusScheduled,
				SeriesID:        &sid,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			res.Created = append(res.Created, a)
			pool = append(pool, a)
		}

		if len(res.Created) == 0 {
			return &SeriesError{Skipped: res.Skipped}
		}
		if err := s.repo.SaveBatch(lockCtx, res.Created); err != nil {
			return storageError("save series", err)
		}
		result = res

		s.logEvent(lockCtx, req.PractitionerID, nil, EventSeriesCreated, map[string]any{
			"series_id": seriesID.String(),
			"frequency": req.Pattern.Frequency,
			"created":   len(res.Created),
			"skipped":   len(res.Skipped),
		})
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, "create_series", req.PractitionerID, nil, err)
	}
	if result.Partial() {
		s.logger.Info("series created with skipped occurrences",
			zap.String("practitioner_id", req.PractitionerID.String()),
			zap.String("series_id", result.SeriesID.String()),
			zap.Int("created", len(result.Created)),
			zap.Int("skipped", len(result.Skipped)),
		)
	}
	return result, nil
}

// Cancel releases the appointment's slot. A reason is required.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		err := &ValidationError{FieldErrors: map[string]string{"reason": "is required"}}
		return nil, s.reject(ctx, "cancel", uuid.Nil, &id, err)
	}
	return s.transition(ctx, id, TransitionCancel, func(a *Appointment) {
		a.CancellationReason = &reason
	})
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, TransitionConfirm, nil)
}

func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, TransitionCheckIn, nil)
}

func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, TransitionStart, nil)
}

// Complete finishes an in-progress appointment, or records a no-show.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, noShow bool) (*Appointment, error) {
	if noShow {
		return s.transition(ctx, id, TransitionNoShow, nil)
	}
	return s.transition(ctx, id, TransitionComplete, nil)
}

// Reschedule marks the appointment rescheduled and books a detached replacement at
// newStart. A zero newDuration keeps the current duration. The new interval is
// validated without the original's own occupancy.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time, newDuration calendar.Minutes) (*RescheduleResult, error) {
	v := &ValidationError{}
	if newStart.IsZero() {
		v.add("start_time", "is required")
	}
	if newDuration < 0 {
		v.add("duration_minutes", "must be positive")
	}
	if err := v.orNil(); err != nil {
		return nil, s.reject(ctx, "reschedule", uuid.Nil, &id, err)
	}

	current, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, s.reject(ctx, "reschedule", uuid.Nil, &id, err)
	}

	var result *RescheduleResult
	err = s.withPractitioner(ctx, current.PractitionerID, func(lockCtx context.Context) error {
		original, err := s.getAppointment(lockCtx, id)
		if err != nil {
			return err
		}
		next, ok := Next(original.Status, TransitionReschedule)
		if !ok {
			return &TransitionError{AppointmentID: id, From: original.Status, Transition: TransitionReschedule}
		}

		duration := newDuration
		if duration == 0 {
			duration = original.DurationMinutes
		}

		profile, existing, err := s.loadCalendar(lockCtx, original.PractitionerID)
		if err != nil {
			return err
		}
		if err := checkSlot(profile, existing, newStart, duration, original.ID); err != nil {
			return err
		}

		now := s.now()
		originalID := original.ID
		replacement := Appointment{
			ID:                s.newID(),
			PractitionerID:    original.PractitionerID,
			ClientID:          original.ClientID,
			ServiceType:       original.ServiceType,
			StartTime:         newStart,
			DurationMinutes:   duration,
			Status:            StatusScheduled,
			Detached:          true,
			RescheduledFromID: &originalID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if original.SeriesID != nil {
			sid := *original.SeriesID
			replacement.SeriesID = &sid
		}
		original.Status = next
		original.UpdatedAt = now

		if err := s.repo.SaveBatch(lockCtx, []Appointment{*original, replacement}); err != nil {
			return storageError("save reschedule", err)
		}
		result = &RescheduleResult{Original: *original, Replacement: replacement}

		s.logEvent(lockCtx, original.PractitionerID, &original.ID, EventAppointmentRescheduled, map[string]any{
			"replacement_id": replacement.ID.String(),
			"from":           original.StartTime,
			"to":             replacement.StartTime,
		})
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, "reschedule", current.PractitionerID, &id, err)
	}
	return result, nil
}

// MarkReminderSent records that the reminder for the appointment went out. It fails
// with ErrReminderNotDue once the appointment is no longer upcoming or was reminded.
func (s *Service) MarkReminderSent(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	current, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, s.reject(ctx, "mark_reminder_sent", uuid.Nil, &id, err)
	}

	var updated *Appointment
	err = s.withPractitioner(ctx, current.PractitionerID, func(lockCtx context.Context) error {
		a, err := s.getAppointment(lockCtx, id)
		if err != nil {
			return err
		}
		if !a.Status.Upcoming() {
			return fmt.Errorf("%w: status is %s", ErrReminderNotDue, a.Status)
		}
		if a.ReminderSentAt != nil {
			return fmt.Errorf("%w: reminder sent at %s", ErrReminderNotDue, a.ReminderSentAt.Format(time.RFC3339))
		}
		now := s.now()
		a.ReminderSentAt = &now
		a.UpdatedAt = now
		if err := s.repo.SaveAppointment(lockCtx, *a); err != nil {
			return storageError("save appointment", err)
		}
		updated = a
		s.logEvent(lockCtx, a.PractitionerID, &a.ID, EventReminderSent, map[string]any{})
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, "mark_reminder_sent", current.PractitionerID, &id, err)
	}
	return updated, nil
}

// CheckSlot returns nil when [at, at+duration) can be booked, or a *ConflictError
// describing the first rule that rejects it.
func (s *Service) CheckSlot(ctx context.Context, practitionerID uuid.UUID, at time.Time, duration calendar.Minutes) error {
	if duration <= 0 {
		return &ValidationError{FieldErrors: map[string]string{"duration_minutes": "must be positive"}}
	}
	profile, existing, err := s.loadCalendar(ctx, practitionerID)
	if err != nil {
		return err
	}
	return checkSlot(profile, existing, at, duration, uuid.Nil)
}

func (s *Service) IsAvailable(ctx context.Context, practitionerID uuid.UUID, at time.Time, duration calendar.Minutes) (bool, error) {
	err := s.CheckSlot(ctx, practitionerID, at, duration)
	var conflict *ConflictError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &conflict):
		return false, nil
	}
	return false, err
}

// AvailableSlots lists the bookable start times on date. Calling it twice without
// an intervening mutation returns the same slots.
func (s *Service) AvailableSlots(ctx context.Context, practitionerID uuid.UUID, date calendar.Date, duration calendar.Minutes) ([]time.Time, error) {
	if duration <= 0 {
		return nil, &ValidationError{FieldErrors: map[string]string{"duration_minutes": "must be positive"}}
	}
	profile, existing, err := s.loadCalendar(ctx, practitionerID)
	if err != nil {
		return nil, err
	}
	return profile.CandidateSlots(date, duration, func(iv calendar.Interval) bool {
		return HasConflict(iv, existing, uuid.Nil, profile.BufferMinutes)
	}), nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.getAppointment(ctx, id)
}

// Profile returns the practitioner's availability profile with its location resolved.
func (s *Service) Profile(ctx context.Context, practitionerID uuid.UUID) (*availability.Profile, error) {
	return s.loadProfile(ctx, practitionerID)
}

func (s *Service) Practitioners(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.repo.ListPractitioners(ctx)
	if err != nil {
		return nil, storageError("list practitioners", err)
	}
	return ids, nil
}

// AppointmentsOn returns every appointment, whatever its status, that intersects
// the date in the practitioner's location.
func (s *Service) AppointmentsOn(ctx context.Context, practitionerID uuid.UUID, date calendar.Date) ([]Appointment, error) {
	loc := s.cfg.DefaultTimezone
	profile, err := s.loadProfile(ctx, practitionerID)
	switch {
	case err == nil:
		loc = profile.Location
	case !errors.Is(err, ErrProfileNotFound):
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return s.AppointmentsInRange(ctx, practitionerID, date.Start(loc), date.AddDays(1).Start(loc))
}

// AppointmentsInRange returns appointments intersecting [from, to), ordered by start.
func (s *Service) AppointmentsInRange(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	if !from.Before(to) {
		return nil, &ValidationError{FieldErrors: map[string]string{"to": "must be after from"}}
	}
	all, err := s.loadAppointments(ctx, practitionerID)
	if err != nil {
		return nil, err
	}
	window := calendar.Interval{Start: from, End: to}
	result := make([]Appointment, 0, len(all))
	for _, a := range all {
		if a.Interval().Overlaps(window, 0) {
			result = append(result, a)
		}
	}
	return result, nil
}

// Upcoming returns scheduled and confirmed appointments starting from now, at most limit.
func (s *Service) Upcoming(ctx context.Context, practitionerID uuid.UUID, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = defaultUpcomingLimit
	}
	if limit > maxUpcomingLimit {
		limit = maxUpcomingLimit
	}
	all, err := s.loadAppointments(ctx, practitionerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	result := make([]Appointment, 0, limit)
	for _, a := range all {
		if len(result) == limit {
			break
		}
		if a.Status.Upcoming() && !a.StartTime.Before(now) {
			result = append(result, a)
		}
	}
	return result, nil
}

// NeedingReminders returns upcoming appointments starting within lead from now
// whose reminder has not been sent yet.
func (s *Service) NeedingReminders(ctx context.Context, practitionerID uuid.UUID, lead time.Duration) ([]Appointment, error) {
	all, err := s.loadAppointments(ctx, practitionerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	horizon := now.Add(lead)
	var result []Appointment
	for _, a := range all {
		if !a.Status.Upcoming() || a.ReminderSentAt != nil {
			continue
		}
		if a.StartTime.Before(now) || a.StartTime.After(horizon) {
			continue
		}
		result = append(result, a)
	}
	return result, nil
}

// SeriesAppointments returns the members of a series, including detached replacements.
func (s *Service) SeriesAppointments(ctx context.Context, practitionerID, seriesID uuid.UUID) ([]Appointment, error) {
	all, err := s.loadAppointments(ctx, practitionerID)
	if err != nil {
		return nil, err
	}
	var result []Appointment
	for _, a := range all {
		if a.SeriesID != nil && *a.SeriesID == seriesID {
			result = append(result, a)
		}
	}
	if len(result) == 0 {
		return nil, ErrAppointmentNotFound
	}
	return result, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, t Transition, mutate func(*Appointment)) (*Appointment, error) {
	op := string(t)
	current, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, s.reject(ctx, op, uuid.Nil, &id, err)
	}

	var updated *Appointment
	err = s.withPractitioner(ctx, current.PractitionerID, func(lockCtx context.Context) error {
		a, err := s.getAppointment(lockCtx, id)
		if err != nil {
			return err
		}
		next, ok := Next(a.Status, t)
		if !ok {
			return &TransitionError{AppointmentID: id, From: a.Status, Transition: t}
		}
		from := a.Status
		a.Status = next
		a.UpdatedAt = s.now()
		if mutate != nil {
			mutate(a)
		}
		if err := s.repo.SaveAppointment(lockCtx, *a); err != nil {
			return storageError("save appointment", err)
		}
		updated = a

		payload := map[string]any{"from": from, "to": next, "transition": t}
		if a.CancellationReason != nil && next == StatusCancelled {
			payload["reason"] = *a.CancellationReason
		}
		s.logEvent(lockCtx, a.PractitionerID, &a.ID, EventStatusChanged, payload)
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, op, current.PractitionerID, &id, err)
	}
	return updated, nil
}

// withPractitioner runs fn under the practitioner's lock.
func (s *Service) withPractitioner(ctx context.Context, practitionerID uuid.UUID, fn func(ctx context.Context) error) error {
	err := s.locker.WithKey(ctx, practitionerID, fn)
	switch {
	case errors.Is(err, lock.ErrBackend):
		return fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	case errors.Is(err, lock.ErrNotAcquired):
		return fmt.Errorf("%w: %w", ErrPractitionerBusy, err)
	}
	return err
}

func (s *Service) loadCalendar(ctx context.Context, practitionerID uuid.UUID) (*availability.Profile, []Appointment, error) {
	profile, err := s.loadProfile(ctx, practitionerID)
	if err != nil {
		return nil, nil, err
	}
	existing, err := s.loadAppointments(ctx, practitionerID)
	if err != nil {
		return nil, nil, err
	}
	return profile, existing, nil
}

func (s *Service) loadProfile(ctx context.Context, practitionerID uuid.UUID) (*availability.Profile, error) {
	profile, err := s.repo.LoadProfile(ctx, practitionerID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, err
		}
		return nil, storageError("load profile", err)
	}
	if profile.Location == nil {
		profile.Location = s.cfg.DefaultTimezone
	}
	return profile, nil
}

func (s *Service) loadAppointments(ctx context.Context, practitionerID uuid.UUID) ([]Appointment, error) {
	existing, err := s.repo.LoadAppointments(ctx, practitionerID)
	if err != nil {
		return nil, storageError("load appointments", err)
	}
	sortByStart(existing)
	return existing, nil
}

func (s *Service) getAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, storageError("load appointment", err)
	}
	return a, nil
}

// checkSlot runs the availability check and then the conflict check.
func checkSlot(profile *availability.Profile, existing []Appointment, start time.Time, duration calendar.Minutes, excludingID uuid.UUID) error {
	candidate := calendar.NewInterval(start, duration)
	if reason := profile.Check(start, duration); reason != availability.ReasonNone {
		return &ConflictError{Reason: ConflictReason(reason), Start: candidate.Start, End: candidate.End}
	}
	if blocking, found := FindConflict(candidate, existing, excludingID, profile.BufferMinutes); found {
		id := blocking.ID
		return &ConflictError{Reason: ConflictOverlapsAppointment, Start: candidate.Start, End: candidate.End, BlockingID: &id}
	}
	return nil
}

// reject logs a failed operation and returns err unchanged. Business rejections are
// logged at info, infrastructure failures at error.
func (s *Service) reject(ctx context.Context, op string, practitionerID uuid.UUID, appointmentID *uuid.UUID, err error) error {
	logger := logging.FromContext(ctx, s.logger)
	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("kind", ErrorKind(err)),
		zap.Error(err),
	}
	if practitionerID != uuid.Nil {
		fields = append(fields, zap.String("practitioner_id", practitionerID.String()))
	}
	if appointmentID != nil {
		fields = append(fields, zap.String("appointment_id", appointmentID.String()))
	}

	switch ErrorKind(err) {
	case "storage_unavailable", "lock_unavailable", "unexpected":
		logger.Error("scheduling operation failed", fields...)
	default:
		logger.Info("scheduling request rejected", fields...)
	}
	return err
}

func (s *Service) logEvent(ctx context.Context, practitionerID uuid.UUID, appointmentID *uuid.UUID, eventType string, payload map[string]any) {
	logger := logging.FromContext(ctx, s.logger)
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType:      eventType,
		PractitionerID: practitionerID,
		AppointmentID:  appointmentID,
		Payload:        data,
		CreatedAt:      s.now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		logger.Error("failed to insert event log",
			zap.String("event_type", eventType),
			zap.String("practitioner_id", practitionerID.String()),
			zap.Error(err),
		)
		return
	}
	logger.Debug("event recorded", zap.String("event_type", eventType), zap.String("practitioner_id", practitionerID.String()))
}
