package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/practice-scheduling/internal/availability"
	"github.com/hackgods/practice-scheduling/internal/calendar"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, practitioner_id, client_id, service_type, start_time, duration_minutes, status,
	series_id, detached, rescheduled_from_id, cancellation_reason, reminder_sent_at, created_at, updated_at`

const upsertAppointmentSQL = `
	INSERT INTO appointments (` + appointmentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, now()), COALESCE($14, now()))
	ON CONFLICT (id) DO UPDATE SET
		start_time          = EXCLUDED.start_time,
		duration_minutes    = EXCLUDED.duration_minutes,
		status              = EXCLUDED.status,
		series_id           = EXCLUDED.series_id,
		detached            = EXCLUDED.detached,
		cancellation_reason = EXCLUDED.cancellation_reason,
		reminder_sent_at    = EXCLUDED.reminder_sent_at,
		updated_at          = EXCLUDED.updated_at
`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var (
		status   string
		duration int
	)

	err := row.Scan(
		&a.ID,
		&a.PractitionerID,
		&a.ClientID,
		&a.ServiceType,
		&a.StartTime,
		&duration,
		&status,
		&a.SeriesID,
		&a.Detached,
		&a.RescheduledFromID,
		&a.CancellationReason,
		&a.ReminderSentAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.DurationMinutes = calendar.Minutes(duration)
	a.Status = AppointmentStatus(status)
	return &a, nil
}

func appointmentArgs(a Appointment) []any {
	return []any{
		a.ID,
		a.PractitionerID,
		a.ClientID,
		a.ServiceType,
		a.StartTime,
		int(a.DurationMinutes),
		string(a.Status),
		a.SeriesID,
		a.Detached,
		a.RescheduledFromID,
		a.CancellationReason,
		a.ReminderSentAt,
		nullableTime(a.CreatedAt),
		nullableTime(a.UpdatedAt),
	}
}

// Interface methods

func (r *PgRepository) LoadProfile(ctx context.Context, practitionerID uuid.UUID) (*availability.Profile, error) {
	var (
		p        availability.Profile
		tz       string
		buffer   int
		hoursRaw []byte
		breaks   []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT practitioner_id, timezone, buffer_minutes, weekly_hours, breaks, updated_at
		FROM practitioner_profiles
		WHERE practitioner_id = $1
	`, practitionerID).Scan(&p.PractitionerID, &tz, &buffer, &hoursRaw, &breaks, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	p.BufferMinutes = calendar.Minutes(buffer)
	// An empty timezone leaves Location nil so the service default applies.
	if tz != "" {
		if p.Location, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("load profile timezone %q: %w", tz, err)
		}
	}
	if p.WeeklyHours, err = decodeWeeklyHours(hoursRaw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(breaks, &p.Breaks); err != nil {
		return nil, fmt.Errorf("decode breaks: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, start_date, end_date, category, reason
		FROM practitioner_time_off
		WHERE practitioner_id = $1
		ORDER BY start_date, id
	`, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("load time off: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			off        availability.TimeOff
			start, end time.Time
			category   string
		)
		if err := rows.Scan(&off.ID, &start, &end, &category, &off.Reason); err != nil {
			return nil, fmt.Errorf("scan time off: %w", err)
		}
		off.Start = calendar.DateOf(start)
		off.End = calendar.DateOf(end)
		off.Category = availability.TimeOffCategory(category)
		p.TimeOff = append(p.TimeOff, off)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load time off: %w", err)
	}

	return &p, nil
}

// SaveProfile replaces the practitioner's profile and time off in one transaction.
func (r *PgRepository) SaveProfile(ctx context.Context, p availability.Profile) error {
	hours, err := encodeWeeklyHours(p.WeeklyHours)
	if err != nil {
		return err
	}
	breaks := p.Breaks
	if breaks == nil {
		breaks = []availability.Break{}
	}
	breaksRaw, err := json.Marshal(breaks)
	if err != nil {
		return fmt.Errorf("encode breaks: %w", err)
	}
	tz := ""
	if p.Location != nil {
		tz = p.Location.String()
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO practitioner_profiles (practitioner_id, timezone, buffer_minutes, weekly_hours, breaks, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (practitioner_id) DO UPDATE SET
				timezone       = EXCLUDED.timezone,
				buffer_minutes = EXCLUDED.buffer_minutes,
				weekly_hours   = EXCLUDED.weekly_hours,
				breaks         = EXCLUDED.breaks,
				updated_at     = now()
		`, p.PractitionerID, tz, int(p.BufferMinutes), hours, breaksRaw)
		if err != nil {
			return fmt.Errorf("upsert profile: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM practitioner_time_off WHERE practitioner_id = $1`, p.PractitionerID); err != nil {
			return fmt.Errorf("clear time off: %w", err)
		}

		batch := &pgx.Batch{}
		for _, off := range p.TimeOff {
			id := off.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			batch.Queue(`
				INSERT INTO practitioner_time_off (id, practitioner_id, start_date, end_date, category, reason)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, id, p.PractitionerID, off.Start.Start(time.UTC), off.End.Start(time.UTC), string(off.Category), off.Reason)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert time off: %w", err)
		}
		return nil
	})
}

func (r *PgRepository) ListPractitioners(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT practitioner_id FROM practitioner_profiles ORDER BY practitioner_id`)
	if err != nil {
		return nil, fmt.Errorf("list practitioners: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("list practitioners: %w", err)
	}
	return ids, nil
}

func (r *PgRepository) LoadAppointments(ctx context.Context, practitionerID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
		ORDER BY start_time, id
	`, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) SaveAppointment(ctx context.Context, a Appointment) error {
	if _, err := r.pool.Exec(ctx, upsertAppointmentSQL, appointmentArgs(a)...); err != nil {
		return fmt.Errorf("upsert appointment: %w", err)
	}
	return nil
}

// SaveBatch upserts every appointment inside a single transaction.
func (r *PgRepository) SaveBatch(ctx context.Context, appointments []Appointment) error {
	if len(appointments) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, a := range appointments {
			batch.Queue(upsertAppointmentSQL, appointmentArgs(a)...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert appointment batch: %w", err)
		}
		return nil
	})
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, practitioner_id, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.PractitionerID, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Weekly hours are stored keyed by weekday name so the column stays readable.
func encodeWeeklyHours(hours map[time.Weekday]availability.WorkingHours) ([]byte, error) {
	named := make(map[string]availability.WorkingHours, len(hours))
	for day, wh := range hours {
		named[calendar.WeekdayName(day)] = wh
	}
	raw, err := json.Marshal(named)
	if err != nil {
		return nil, fmt.Errorf("encode weekly hours: %w", err)
	}
	return raw, nil
}

func decodeWeeklyHours(raw []byte) (map[time.Weekday]availability.WorkingHours, error) {
	var named map[string]availability.WorkingHours
	if err := json.Unmarshal(raw, &named); err != nil {
		return nil, fmt.Errorf("decode weekly hours: %w", err)
	}
	hours := make(map[time.Weekday]availability.WorkingHours, len(named))
	for name, wh := range named {
		day, err := calendar.ParseWeekday(name)
		if err != nil {
			return nil, fmt.Errorf("decode weekly hours: %w", err)
		}
		hours[day] = wh
	}
	return hours, nil
}
