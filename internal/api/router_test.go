package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/availability"
	"github.com/hackgods/practice-scheduling/internal/config"
	"github.com/hackgods/practice-scheduling/internal/lock"
)

var clock = time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

type testServer struct {
	handler http.Handler
	pid     uuid.UUID
}

func newTestServer(t *testing.T, deps ...Dependency) testServer {
	t.Helper()
	return newTestServerWithConfig(t, config.Config{DefaultTimezone: time.UTC}, deps...)
}

func newTestServerWithConfig(t *testing.T, cfg config.Config, deps ...Dependency) testServer {
	t.Helper()
	repo := appointment.NewMemoryRepository()
	svc := appointment.NewService(repo, lock.NewLocal(), cfg, nil,
		appointment.WithClock(func() time.Time { return clock }))
	h := NewRouter(RouterConfig{
		Service:      svc,
		Profiles:     repo,
		Dependencies: deps,
		ReminderLead: 24 * time.Hour,
		Env:          "test",
		Version:      "test",
	})
	return testServer{handler: h, pid: uuid.New()}
}

func (s testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s testServer) practitionerPath(suffix string) string {
	return "/practitioners/" + s.pid.String() + suffix
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

const weekdayProfileJSON = `{
	"timezone": "UTC",
	"buffer_minutes": 15,
	"weekly_hours": {
		"monday": {"start": "09:00", "end": "17:00"},
		"tuesday": {"start": "09:00", "end": "17:00"},
		"wednesday": {"start": "09:00", "end": "17:00"},
		"thursday": {"start": "09:00", "end": "17:00"},
		"friday": {"start": "09:00", "end": "17:00"}
	},
	"breaks": [{"days": ["monday"], "start": "12:00", "duration_minutes": 60, "label": "lunch"}],
	"time_off": [{"start": "2025-07-04", "end": "2025-07-04", "category": "holiday", "reason": "Independence Day"}]
}`

func (s testServer) putProfile(t *testing.T) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, s.practitionerPath("/profile"), bytes.NewBufferString(weekdayProfileJSON))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("put profile: %d %s", rec.Code, rec.Body.String())
	}
}

func (s testServer) book(t *testing.T, start string, minutes int) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, s.practitionerPath("/appointments"), map[string]any{
		"client_id":        gofakeit.UUID(),
		"start_time":       start,
		"duration_minutes": minutes,
		"service_type":     "follow-up",
	})
}

func TestProfileRoundTrip(t *testing.T) {
	s := newTestServer(t)
	s.putProfile(t)

	rec := s.do(t, http.MethodGet, s.practitionerPath("/profile"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get profile: %d %s", rec.Code, rec.Body.String())
	}
	got := decode[ProfilePayload](t, rec)
	if got.BufferMinutes != 15 || len(got.WeeklyHours) != 5 || len(got.Breaks) != 1 || len(got.TimeOff) != 1 {
		t.Fatalf("unexpected profile %+v", got)
	}
	if got.WeeklyHours["monday"].Start.String() != "09:00" || got.Breaks[0].Days[0] != "monday" {
		t.Fatalf("weekday names or times not preserved: %+v", got)
	}

	practitioners := decode[PractitionersResponse](t, s.do(t, http.MethodGet, "/practitioners", nil))
	if len(practitioners.Practitioners) != 1 || practitioners.Practitioners[0] != s.pid {
		t.Fatalf("unexpected practitioner list %+v", practitioners)
	}
}

func TestProfileValidation(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPut, s.practitionerPath("/profile"), map[string]any{
		"timezone":       "Mars/Olympus",
		"buffer_minutes": -5,
		"weekly_hours":   map[string]any{"funday": map[string]string{"start": "09:00", "end": "17:00"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	resp := decode[ErrorResponse](t, rec)
	for _, field := range []string{"timezone", "buffer_minutes", "weekly_hours.funday"} {
		if resp.Fields[field] == "" {
			t.Errorf("missing field error %s in %v", field, resp.Fields)
		}
	}
}

func TestProfileRejectsLooseTimes(t *testing.T) {
	s := newTestServer(t)
	for _, bad := range []string{"5:00pm", "09:30 PM", "10:00:45"} {
		rec := s.do(t, http.MethodPut, s.practitionerPath("/profile"), map[string]any{
			"weekly_hours": map[string]any{"monday": map[string]string{"start": bad, "end": "17:00"}},
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("start %q: expected 400, got %d %s", bad, rec.Code, rec.Body.String())
		}
	}
	if rec := s.do(t, http.MethodGet, s.practitionerPath("/profile"), nil); rec.Code != http.StatusNotFound {
		t.Fatalf("rejected profiles must not be stored, got %d", rec.Code)
	}
}

func TestProfileWithoutTimezoneUsesDefault(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	s := newTestServerWithConfig(t, config.Config{DefaultTimezone: ny})

	rec := s.do(t, http.MethodPut, s.practitionerPath("/profile"), map[string]any{
		"weekly_hours": map[string]any{"monday": map[string]string{"start": "09:00", "end": "17:00"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put profile: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[ProfilePayload](t, rec); got.Timezone != "America/New_York" {
		t.Fatalf("effective timezone = %q, want America/New_York", got.Timezone)
	}

	rec = s.do(t, http.MethodGet, s.practitionerPath("/availability/slots?date=2025-01-06&duration=60"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("slots: %d %s", rec.Code, rec.Body.String())
	}
	slots := decode[SlotsResponse](t, rec)
	if len(slots.Slots) == 0 {
		t.Fatal("expected slots on a working Monday")
	}
	// 09:00 in New York is 14:00 UTC in January.
	if first := slots.Slots[0].UTC(); !first.Equal(time.Date(2025, 1, 6, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("first slot = %s, want 14:00 UTC", first)
	}
}

func TestBookingFlow(t *testing.T) {
	s := newTestServer(t)
	s.putProfile(t)

	rec := s.book(t, "2025-01-06T09:00:00Z", 60)
	if rec.Code != http.StatusCreated {
		t.Fatalf("book: %d %s", rec.Code, rec.Body.String())
	}
	first := decode[AppointmentResponse](t, rec)
	if first.Status != "scheduled" || first.StatusColor != "blue" || !first.EndTime.Equal(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected appointment %+v", first)
	}

	rec = s.book(t, "2025-01-06T09:30:00Z", 60)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	conflict := decode[ErrorResponse](t, rec)
	if conflict.Error != "booking_conflict" || conflict.BlockingID == nil || *conflict.BlockingID != first.ID {
		t.Fatalf("unexpected conflict body %+v", conflict)
	}

	rec = s.book(t, "2025-07-04T10:00:00Z", 60)
	if body := decode[ErrorResponse](t, rec); rec.Code != http.StatusConflict || body.Error != "slot_unavailable" || body.Fields["reason"] != "within_time_off" {
		t.Fatalf("expected time off rejection, got %d %+v", rec.Code, body)
	}

	rec = s.do(t, http.MethodGet, s.practitionerPath("/availability/check?start=2025-01-06T10:15:00Z&duration=60"), nil)
	if check := decode[AvailabilityCheckResponse](t, rec); !check.Available {
		t.Fatalf("10:15 should be available: %+v", check)
	}
	rec = s.do(t, http.MethodGet, s.practitionerPath("/availability/check?start=2025-01-06T12:30:00Z&duration=30"), nil)
	if check := decode[AvailabilityCheckResponse](t, rec); check.Available || check.Reason != "within_break" {
		t.Fatalf("12:30 should fall in the lunch break: %+v", check)
	}

	rec = s.do(t, http.MethodGet, s.practitionerPath("/availability/slots?date=2025-01-06&duration=60"), nil)
	slots := decode[SlotsResponse](t, rec)
	if len(slots.Slots) == 0 || !slots.Slots[0].Equal(time.Date(2025, 1, 6, 10, 15, 0, 0, time.UTC)) {
		t.Fatalf("unexpected slots %+v", slots)
	}

	base := "/appointments/" + first.ID.String()
	for _, step := range []struct {
		path   string
		body   any
		status string
	}{
		{"/confirm", nil, "confirmed"},
		{"/check-in", nil, "checked_in"},
		{"/start", nil, "in_progress"},
		{"/complete", CompleteRequest{NoShow: false}, "completed"},
	} {
		rec := s.do(t, http.MethodPost, base+step.path, step.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", step.path, rec.Code, rec.Body.String())
		}
		if got := decode[AppointmentResponse](t, rec); got.Status != step.status {
			t.Fatalf("%s: expected %s, got %s", step.path, step.status, got.Status)
		}
	}

	rec = s.do(t, http.MethodPost, base+"/cancel", CancelRequest{Reason: "too late"})
	if rec.Code != http.StatusConflict || decode[ErrorResponse](t, rec).Error != "invalid_transition" {
		t.Fatalf("cancelling a completed appointment should be rejected, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, base, nil)
	if rec.Code != http.StatusOK || decode[AppointmentResponse](t, rec).Status != "completed" {
		t.Fatalf("get appointment: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCancelAndReschedule(t *testing.T) {
	s := newTestServer(t)
	s.putProfile(t)

	a := decode[AppointmentResponse](t, s.book(t, "2025-01-07T09:00:00Z", 60))

	rec := s.do(t, http.MethodPost, "/appointments/"+a.ID.String()+"/reschedule", RescheduleRequest{
		StartTime: time.Date(2025, 1, 7, 14, 0, 0, 0, time.UTC),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reschedule: %d %s", rec.Code, rec.Body.String())
	}
	res := decode[RescheduleResponse](t, rec)
	if res.Original.Status != "rescheduled" || !res.Replacement.Detached || res.Replacement.DurationMinutes != 60 {
		t.Fatalf("unexpected reschedule result %+v", res)
	}

	rec = s.do(t, http.MethodPost, "/appointments/"+res.Replacement.ID.String()+"/cancel", CancelRequest{})
	if rec.Code != http.StatusBadRequest || decode[ErrorResponse](t, rec).Fields["reason"] == "" {
		t.Fatalf("cancel without reason: %d %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/appointments/"+res.Replacement.ID.String()+"/cancel", CancelRequest{Reason: "client request"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body.String())
	}

	if rec := s.book(t, "2025-01-07T14:00:00Z", 60); rec.Code != http.StatusCreated {
		t.Fatalf("cancelled slot should be bookable again, got %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, s.practitionerPath("/appointments?date=2025-01-07"), nil)
	if list := decode[[]AppointmentResponse](t, rec); len(list) != 3 {
		t.Fatalf("expected original, cancelled replacement and new booking, got %d", len(list))
	}
}

func TestSeriesEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.putProfile(t)

	rec := s.do(t, http.MethodPost, s.practitionerPath("/series"), map[string]any{
		"client_id":        gofakeit.UUID(),
		"first_start":      "2025-01-06T10:00:00Z",
		"duration_minutes": 45,
		"pattern": map[string]any{
			"frequency": "weekly",
			"interval":  2,
			"end":       map[string]any{"kind": "after_count", "count": 3},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create series: %d %s", rec.Code, rec.Body.String())
	}
	series := decode[SeriesResponse](t, rec)
	if len(series.Created) != 3 || len(series.Skipped) != 0 {
		t.Fatalf("unexpected series %+v", series)
	}
	wantDays := []int{6, 20, 3}
	for i, a := range series.Created {
		if a.StartTime.Day() != wantDays[i] || a.StartTime.Hour() != 10 {
			t.Errorf("occurrence %d at %s", i, a.StartTime)
		}
	}

	rec = s.do(t, http.MethodGet, s.practitionerPath("/series/"+series.SeriesID.String()), nil)
	if list := decode[[]AppointmentResponse](t, rec); len(list) != 3 {
		t.Fatalf("series lookup returned %d", len(list))
	}

	rec = s.do(t, http.MethodPost, s.practitionerPath("/series"), map[string]any{
		"client_id":        gofakeit.UUID(),
		"first_start":      "2025-01-11T10:00:00Z",
		"duration_minutes": 45,
		"pattern": map[string]any{
			"frequency": "weekly",
			"interval":  1,
			"end":       map[string]any{"kind": "after_count", "count": 2},
		},
	})
	if rec.Code != http.StatusUnprocessableEntity || decode[ErrorResponse](t, rec).Error != "no_valid_occurrences" {
		t.Fatalf("weekend-only series: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, s.practitionerPath("/series"), map[string]any{
		"client_id":        gofakeit.UUID(),
		"first_start":      "2025-01-06T10:00:00Z",
		"duration_minutes": 45,
		"pattern":          map[string]any{"frequency": "fortnightly", "interval": 1},
	})
	if rec.Code != http.StatusBadRequest || decode[ErrorResponse](t, rec).Fields["pattern.frequency"] == "" {
		t.Fatalf("unknown frequency: %d %s", rec.Code, rec.Body.String())
	}
}

func TestUpcomingAndReminders(t *testing.T) {
	s := newTestServer(t)
	s.putProfile(t)
	s.book(t, "2025-01-06T09:00:00Z", 30)
	s.book(t, "2025-01-08T09:00:00Z", 30)

	rec := s.do(t, http.MethodGet, s.practitionerPath("/appointments/upcoming?limit=1"), nil)
	if list := decode[[]AppointmentResponse](t, rec); len(list) != 1 || list[0].StartTime.Day() != 6 {
		t.Fatalf("unexpected upcoming %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, s.practitionerPath("/appointments/reminders"), nil)
	if list := decode[[]AppointmentResponse](t, rec); len(list) != 1 {
		t.Fatalf("expected one reminder in the default lead, got %s", rec.Body.String())
	}
	rec = s.do(t, http.MethodGet, s.practitionerPath("/appointments/reminders?lead=96h"), nil)
	if list := decode[[]AppointmentResponse](t, rec); len(list) != 2 {
		t.Fatalf("expected two reminders with a longer lead, got %s", rec.Body.String())
	}
}

func TestRequestErrors(t *testing.T) {
	s := newTestServer(t)
	s.putProfile(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
		code   string
	}{
		{"bad practitioner id", http.MethodGet, "/practitioners/nope/profile", http.StatusBadRequest, "invalid_practitionerID"},
		{"unknown practitioner", http.MethodGet, "/practitioners/" + uuid.NewString() + "/profile", http.StatusNotFound, "not_found"},
		{"unknown appointment", http.MethodGet, "/appointments/" + uuid.NewString(), http.StatusNotFound, "not_found"},
		{"missing duration", http.MethodGet, s.practitionerPath("/availability/slots?date=2025-01-06"), http.StatusBadRequest, "validation_failed"},
		{"bad date", http.MethodGet, s.practitionerPath("/availability/slots?date=06/01/2025&duration=30"), http.StatusBadRequest, "validation_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, nil)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d %s", tt.status, rec.Code, rec.Body.String())
			}
			if got := decode[ErrorResponse](t, rec).Error; got != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, got)
			}
		})
	}

	t.Run("unknown fields", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, s.practitionerPath("/appointments"), map[string]any{"slot_id": "x"})
		if rec.Code != http.StatusBadRequest || decode[ErrorResponse](t, rec).Error != "invalid_request_body" {
			t.Fatalf("expected invalid body, got %d %s", rec.Code, rec.Body.String())
		}
	})
}

func TestHealth(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	tests := []struct {
		name   string
		deps   []Dependency
		code   int
		status string
	}{
		{"all up", []Dependency{{Name: "postgres", Critical: true, Ping: up}, {Name: "redis", Ping: up}}, http.StatusOK, "ok"},
		{"redis down", []Dependency{{Name: "postgres", Critical: true, Ping: up}, {Name: "redis", Ping: down}}, http.StatusOK, "degraded"},
		{"postgres down", []Dependency{{Name: "postgres", Critical: true, Ping: down}, {Name: "redis", Ping: up}}, http.StatusServiceUnavailable, "error"},
		{"no dependencies", nil, http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.deps...)
			rec := s.do(t, http.MethodGet, "/health/ready", nil)
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			if got := decode[ReadinessResponse](t, rec); got.Status != tt.status {
				t.Fatalf("expected %s, got %+v", tt.status, got)
			}
		})
	}

	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health/live", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("liveness: %d, request id %q", rec.Code, rec.Header().Get("X-Request-ID"))
	}
}

type failingProfileStore struct{}

func (failingProfileStore) SaveProfile(context.Context, availability.Profile) error {
	return errors.New("connection reset by peer")
}

func TestPutProfileLogsStorageFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	repo := appointment.NewMemoryRepository()
	h := NewRouter(RouterConfig{
		Service:  appointment.NewService(repo, lock.NewLocal(), config.Config{DefaultTimezone: time.UTC}, nil),
		Profiles: failingProfileStore{},
		Logger:   zap.New(core),
	})
	s := testServer{handler: h, pid: uuid.New()}

	req := httptest.NewRequest(http.MethodPut, s.practitionerPath("/profile"), bytes.NewBufferString(weekdayProfileJSON))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable || decode[ErrorResponse](t, rec).Error != "storage_unavailable" {
		t.Fatalf("expected 503 storage_unavailable, got %d %s", rec.Code, rec.Body.String())
	}

	entries := logs.FilterMessage("save profile failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected the storage failure to be logged once, got %d entries", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["practitioner_id"] != s.pid.String() || fields["error"] != "connection reset by peer" {
		t.Fatalf("unexpected log fields %v", fields)
	}
}

func TestServiceErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: %w", appointment.ErrLockUnavailable, errors.New("dial tcp: refused")), http.StatusServiceUnavailable, "lock_unavailable"},
		{fmt.Errorf("%w: status is cancelled", appointment.ErrReminderNotDue), http.StatusConflict, "reminder_not_due"},
		{appointment.ErrPractitionerBusy, http.StatusServiceUnavailable, "practitioner_busy"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if got := decode[ErrorResponse](t, rec).Error; got != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, got)
			}
		})
	}
}
