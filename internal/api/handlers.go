package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/logging"
)

func listPractitionersHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := svc.Practitioners(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if ids == nil {
			ids = []uuid.UUID{}
		}
		writeJSON(w, http.StatusOK, PractitionersResponse{Practitioners: ids})
	}
}

func getProfileHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid, ok := uuidParam(w, r, "practitionerID")
		if !ok {
			return
		}
		profile, err := svc.Profile(r.Context(), pid)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProfilePayload(*profile))
	}
}

// putProfileHandler saves the profile and answers with the effective profile,
// which carries the default timezone when none was given.
func putProfileHandler(svc *appointment.Service, store appointment.ProfileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid, ok := uuidParam(w, r, "practitionerID")
		if !ok {
			return
		}
		var req ProfilePayload
		if !decodeJSON(w, r, &req) {
			return
		}
		profile, problems := req.toProfile(pid)
		if len(problems) > 0 {
			writeValidation(w, problems)
			return
		}
		profile.UpdatedAt = time.Now().UTC()
		if err := store.SaveProfile(r.Context(), profile); err != nil {
			logging.FromContext(r.Context(), nil).Error("save profile failed",
				zap.Stringer("practitioner_id", pid),
				zap.Error(err),
			)
			writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "could not save profile")
			return
		}
		saved, err := svc.Profile(r.Context(), pid)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProfilePayload(*saved))
	}
}

func availableSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid, ok := uuidParam(w, r, "practitionerID")
		if !ok {
			return
		}
		date, ok := dateQuery(w, r, "date")
		if !ok {
			return
		}
		duration, ok := durationQuery(w, r)
		if !ok {
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), pid, date, duration)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if slots == nil {
			slots = []time.Time{}
		}
		writeJSON(w, http.StatusOK, SlotsResponse{Date: date, DurationMinutes: int(duration), Slots: slots})
	}
}

func checkAvailabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid, ok := uuidParam(w, r, "practitionerID")
		if !ok {
			return
		}
		start, ok := timeQuery(w, r, "start")
		if !ok {
			return
		}
		duration, ok := durationQuery(w, r)
		if !ok {
			return
		}

		err := svc.CheckSlot(r.Context(), pid, start, duration)
		if err == nil {
			writeJSON(w, http.StatusOK, AvailabilityCheckResponse{Available: true})
			return
		}
		if conflict, isConflict := asConflict(err); isConflict {
			writeJSON(w, http.StatusOK, AvailabilityCheckResponse{
				Reason:     string(conflict.Reason),
				BlockingID: conflict.BlockingID,
			})
			return
		}
		writeServiceError(w, r, err)
	}
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid, ok := uuidParam(w, r, "practitionerID")
		if !ok {
			return
		}
		var req BookAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		clientID, err := uuid.Parse(req.ClientID)
		if err != nil {
			writeValidation(w, map[string]string{"client_id": "must be a valid UUID"})
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookingRequest{
			PractitionerID:  pid,
			ClientID:        clientID,
			Start:           req.StartTime,
			DurationMinutes: calendar.Minutes(req.DurationMinutes),
			ServiceType:     req.ServiceType,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func createSeriesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid, ok := uuidParam(w, r, "practitionerID")
		if !ok {
			return
		}
		var req CreateSeriesRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		pattern, problems := req.Pattern.toPattern()
		clientID, err := uuid.Parse(req.ClientID)
		if err != nil {
			problems["client_id"] = "must be a valid UUID"
		}
		if len(problems) > 0 {
			writeValidation(w, problems)
			return
		}

		res, err := svc.CreateRecurringSeries(r.Context(), appointment.SeriesRequest{
			PractitionerID:  pid,
			ClientID:        clientID,
			First:           req.FirstStart,
			DurationMinutes: calendar.Minutes(req.DurationMinutes),
			ServiceType:     req.ServiceType,
			Pattern:         pattern,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, SeriesResponse{
			SeriesID: res.SeriesID,
			Created:  toAppointmentResponses(res.Created),
			Skipped:  toSkippedResponses(res.Skipped),
		})
	}
}

func seriesAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid, ok := uuidParam(w, r, "practitionerID")
		if !ok {
			return
		}
		seriesID, ok := uuidParam(w, r, "seriesID")
		if !ok {
			return
		}
		list, err := svc.SeriesAppointments(r.Context(), pid, seriesID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(list))
	}
}

// listAppointmentsHandler serves either ?date=YYYY-MM-DD or ?from=&to= (RFC 3339).
func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid, ok := uuidParam(w, r, "practitionerID")
		if !ok {
			return
		}

		var (
			list []appointment.Appointment
			err  error
		)
		if r.URL.Query().Get("date") != "" {
			date, ok := dateQuery(w, r, "date")
			if !ok {
				return
			}
			list, err = svc.AppointmentsOn(r.Context(), pid, date)
		} else {
			from, ok := timeQuery(w, r, "from")
			if !ok {
				return
			}
			to, ok := timeQuery(w, r, "to")
			if !ok {
				return
			}
			list, err = svc.AppointmentsInRange(r.Context(), pid, from, to)
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(list))
	}
}

func upcomingHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid, ok := uuidParam(w, r, "practitionerID")
		if !ok {
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeValidation(w, map[string]string{"limit": "must be a non-negative integer"})
				return
			}
			limit = n
		}
		list, err := svc.Upcoming(r.Context(), pid, limit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(list))
	}
}

func remindersHandler(svc *appointment.Service, defaultLead time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid, ok := uuidParam(w, r, "practitionerID")
		if !ok {
			return
		}
		lead := defaultLead
		if raw := r.URL.Query().Get("lead"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 {
				writeValidation(w, map[string]string{"lead": "must be a positive duration such as 24h"})
				return
			}
			lead = d
		}
		list, err := svc.NeedingReminders(r.Context(), pid, lead)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(list))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

// transitionHandler serves the body-less status transitions.
func transitionHandler(apply func(*http.Request, uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		appt, err := apply(r, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req CancelRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		appt, err := svc.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req CompleteRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		appt, err := svc.Complete(r.Context(), id, req.NoShow)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		res, err := svc.Reschedule(r.Context(), id, req.StartTime, calendar.Minutes(req.DurationMinutes))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, RescheduleResponse{
			Original:    toAppointmentResponse(res.Original),
			Replacement: toAppointmentResponse(res.Replacement),
		})
	}
}

func asConflict(err error) (*appointment.ConflictError, bool) {
	var conflict *appointment.ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}
