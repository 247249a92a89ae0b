package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/practice-scheduling/internal/app"
	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/availability"
	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/config"
	"github.com/hackgods/practice-scheduling/internal/logging"
)

var (
	timezones    = []string{"UTC", "Europe/London", "Europe/Berlin", "America/New_York", "America/Chicago", "Asia/Kolkata"}
	serviceTypes = []string{"consultation", "follow_up", "therapy", "assessment", "check_up"}
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.StorageDriver != config.StoragePostgres {
		logger.Fatal("seed requires STORAGE_DRIVER=postgres")
	}
	// Seeding runs alone, so there is no one to coordinate with.
	cfg.LockBackend = config.LockLocal

	practitioners := getInt("SEED_PRACTITIONERS", 20)
	perPractitioner := getInt("SEED_APPOINTMENTS", 30)

	ctx := context.Background()
	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer rt.Close()

	logger.Info("seed starting", zap.Int("practitioners", practitioners), zap.Int("appointments_each", perPractitioner))

	ids, err := seedProfiles(ctx, rt.Profiles, practitioners, logger)
	if err != nil {
		logger.Fatal("seed profiles", zap.Error(err))
	}
	booked, err := seedAppointments(ctx, rt.Service, ids, perPractitioner, logger)
	if err != nil {
		logger.Fatal("seed appointments", zap.Error(err))
	}

	logger.Info("seed complete", zap.Int("practitioners", len(ids)), zap.Int("appointments", booked))
}

func seedProfiles(ctx context.Context, store appointment.ProfileStore, count int, logger *zap.Logger) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		profile, err := fakeProfile(uuid.New())
		if err != nil {
			return nil, err
		}
		if err := store.SaveProfile(ctx, profile); err != nil {
			return nil, err
		}
		ids = append(ids, profile.PractitionerID)
	}
	logger.Info("profiles seeded", zap.Int("count", len(ids)))
	return ids, nil
}

// fakeProfile builds a plausible working week: a random start between 7:00 and
// 10:00, an eight hour day, a lunch break and a few days of time off.
func fakeProfile(id uuid.UUID) (availability.Profile, error) {
	loc, err := time.LoadLocation(gofakeit.RandomString(timezones))
	if err != nil {
		return availability.Profile{}, err
	}

	startHour := gofakeit.Number(7, 10)
	open, _ := calendar.NewTimeOfDay(startHour, 0)
	closing, _ := calendar.NewTimeOfDay(startHour+8, 0)
	lunch, _ := calendar.NewTimeOfDay(startHour+4, 0)

	workdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	if gofakeit.Bool() {
		workdays = append(workdays, time.Saturday)
	}
	hours := make(map[time.Weekday]availability.WorkingHours, len(workdays))
	for _, day := range workdays {
		hours[day] = availability.WorkingHours{Start: open, End: closing}
	}

	offStart := calendar.DateOf(time.Now()).AddDays(gofakeit.Number(7, 60))
	profile := availability.Profile{
		PractitionerID: id,
		WeeklyHours:    hours,
		Breaks: []availability.Break{{
			Days:     workdays,
			Start:    lunch,
			Duration: calendar.Minutes(gofakeit.RandomInt([]int{30, 45, 60})),
			Label:    "lunch",
		}},
		TimeOff: []availability.TimeOff{{
			ID:       uuid.New(),
			Start:    offStart,
			End:      offStart.AddDays(gofakeit.Number(0, 6)),
			Category: availability.TimeOffCategory(gofakeit.RandomString([]string{"vacation", "personal", "holiday"})),
		}},
		BufferMinutes: calendar.Minutes(gofakeit.RandomInt([]int{0, 5, 10, 15})),
		Location:      loc,
	}
	if problems := profile.Validate(); problems != nil {
		return availability.Profile{}, fmt.Errorf("generated profile is invalid: %v", problems)
	}
	return profile, nil
}

// seedAppointments books through the service so every seeded appointment passes
// the same availability and conflict checks as a real booking.
func seedAppointments(ctx context.Context, svc *appointment.Service, practitioners []uuid.UUID, perPractitioner int, logger *zap.Logger) (int, error) {
	total := 0
	today := calendar.DateOf(time.Now())
	for _, pid := range practitioners {
		booked := 0
		for attempt := 0; attempt < perPractitioner*3 && booked < perPractitioner; attempt++ {
			duration := calendar.Minutes(gofakeit.RandomInt([]int{30, 45, 60}))
			date := today.AddDays(gofakeit.Number(1, 28))

			slots, err := svc.AvailableSlots(ctx, pid, date, duration)
			if err != nil {
				return total, err
			}
			if len(slots) == 0 {
				continue
			}
			_, err = svc.Book(ctx, appointment.BookingRequest{
				PractitionerID:  pid,
				ClientID:        uuid.New(),
				Start:           slots[gofakeit.Number(0, len(slots)-1)],
				DurationMinutes: duration,
				ServiceType:     gofakeit.RandomString(serviceTypes),
			})
			var conflict *appointment.ConflictError
			switch {
			case err == nil:
				booked++
			case errors.As(err, &conflict):
			default:
				return total, err
			}
		}
		total += booked
		logger.Debug("appointments seeded", zap.Stringer("practitioner_id", pid), zap.Int("count", booked))
	}
	return total, nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
