package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/logging"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func writeValidation(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "validation_failed",
		Details: "request failed validation",
		Fields:  fields,
	})
}

// writeServiceError maps a scheduling error to its HTTP status and stable error code.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := appointment.ErrorKind(err)
	resp := ErrorResponse{Error: kind, Details: err.Error()}

	var status int
	switch kind {
	case "validation_failed":
		status = http.StatusBadRequest
		var vErr *appointment.ValidationError
		if errors.As(err, &vErr) {
			resp.Fields = vErr.FieldErrors
		}
	case "not_found":
		status = http.StatusNotFound
	case "booking_conflict", "slot_unavailable":
		status = http.StatusConflict
		var conflict *appointment.ConflictError
		if errors.As(err, &conflict) {
			resp.BlockingID = conflict.BlockingID
			resp.Fields = map[string]string{"reason": string(conflict.Reason)}
		}
	case "invalid_transition", "reminder_not_due":
		status = http.StatusConflict
	case "no_valid_occurrences":
		status = http.StatusUnprocessableEntity
	case "practitioner_busy":
		w.Header().Set("Retry-After", "1")
		status = http.StatusServiceUnavailable
	case "storage_unavailable":
		status = http.StatusServiceUnavailable
		resp.Details = "storage is temporarily unavailable"
	case "lock_unavailable":
		status = http.StatusServiceUnavailable
		resp.Details = "scheduling coordination is temporarily unavailable"
		logging.FromContext(r.Context(), nil).Error("lock backend failure", zap.Error(err))
	default:
		status = http.StatusInternalServerError
		resp.Error = "internal_error"
		resp.Details = "internal error"
		logging.FromContext(r.Context(), nil).Error("unhandled error", zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON: "+err.Error())
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func durationQuery(w http.ResponseWriter, r *http.Request) (calendar.Minutes, bool) {
	raw := r.URL.Query().Get("duration")
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeValidation(w, map[string]string{"duration": "must be a positive number of minutes"})
		return 0, false
	}
	return calendar.Minutes(n), true
}

func dateQuery(w http.ResponseWriter, r *http.Request, name string) (calendar.Date, bool) {
	d, err := calendar.ParseDate(r.URL.Query().Get(name))
	if err != nil {
		writeValidation(w, map[string]string{name: "must be a date formatted YYYY-MM-DD"})
		return calendar.Date{}, false
	}
	return d, true
}

func timeQuery(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, r.URL.Query().Get(name))
	if err != nil {
		writeValidation(w, map[string]string{name: "must be an RFC 3339 timestamp"})
		return time.Time{}, false
	}
	return t, true
}
