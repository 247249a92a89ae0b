package main

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/api"
)

func TestFindOverlaps(t *testing.T) {
	base := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	appt := func(offset time.Duration, minutes int, status string) api.AppointmentResponse {
		return api.AppointmentResponse{ID: uuid.New(), StartTime: base.Add(offset), DurationMinutes: minutes, Status: status}
	}

	list := []api.AppointmentResponse{
		appt(0, 60, "scheduled"),
		appt(60*time.Minute, 30, "confirmed"),  // touches the first
		appt(30*time.Minute, 30, "cancelled"),  // released
		appt(180*time.Minute, 30, "completed"), // far away
	}

	if got := findOverlaps(list, 0); len(got) != 0 {
		t.Fatalf("adjacent appointments without buffer must not overlap, got %v", got)
	}
	got := findOverlaps(list, 15)
	if len(got) != 1 || got[0][0] != list[0].ID || got[0][1] != list[1].ID {
		t.Fatalf("expected the first two to collide under a 15 minute buffer, got %v", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		status int
		err    error
		want   outcome
	}{
		{http.StatusCreated, nil, outcomeSuccess},
		{http.StatusOK, nil, outcomeSuccess},
		{http.StatusConflict, nil, outcomeConflict},
		{http.StatusServiceUnavailable, nil, outcomeBusy},
		{http.StatusBadRequest, nil, outcomeError},
		{0, errors.New("dial tcp: refused"), outcomeError},
	}
	for _, c := range cases {
		if got := classify(c.status, c.err); got != c.want {
			t.Errorf("classify(%d, %v) = %d, want %d", c.status, c.err, got, c.want)
		}
	}
}

func TestOperationMetricsStats(t *testing.T) {
	var om OperationMetrics
	for i := 1; i <= 20; i++ {
		o := outcomeSuccess
		if i%5 == 0 {
			o = outcomeConflict
		}
		om.Record(time.Duration(i)*time.Millisecond, o)
	}
	if om.Total != 20 || om.Success != 16 || om.Conflict != 4 {
		t.Fatalf("unexpected counters: total=%d success=%d conflict=%d", om.Total, om.Success, om.Conflict)
	}
	avg, p50, p95, max := om.Stats()
	if p50 != 11*time.Millisecond || p95 != 20*time.Millisecond || max != 20*time.Millisecond {
		t.Fatalf("unexpected percentiles p50=%s p95=%s max=%s", p50, p95, max)
	}
	if avg != 10500*time.Microsecond {
		t.Fatalf("avg = %s", avg)
	}
}
