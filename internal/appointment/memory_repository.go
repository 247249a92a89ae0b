package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/availability"
)

// MemoryRepository keeps profiles and appointments in process memory. Reads return
// copies taken under a read lock, so a batch is either fully visible or not at all.
type MemoryRepository struct {
	mu           sync.RWMutex
	profiles     map[uuid.UUID]availability.Profile
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	nextEventID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		profiles:     make(map[uuid.UUID]availability.Profile),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (r *MemoryRepository) SaveProfile(_ context.Context, profile availability.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = time.Now().UTC()
	}
	r.profiles[profile.PractitionerID] = cloneProfile(profile)
	return nil
}

func (r *MemoryRepository) LoadProfile(_ context.Context, practitionerID uuid.UUID) (*availability.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[practitionerID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	clone := cloneProfile(p)
	return &clone, nil
}

func (r *MemoryRepository) ListPractitioners(_ context.Context) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (r *MemoryRepository) LoadAppointments(_ context.Context, practitionerID uuid.UUID) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Appointment
	for _, a := range r.appointments {
		if a.PractitionerID == practitionerID {
			result = append(result, cloneAppointment(a))
		}
	}
	sortByStart(result)
	return result, nil
}

func (r *MemoryRepository) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	clone := cloneAppointment(a)
	return &clone, nil
}

func (r *MemoryRepository) SaveAppointment(_ context.Context, a Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[a.ID] = cloneAppointment(a)
	return nil
}

func (r *MemoryRepository) SaveBatch(_ context.Context, appointments []Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range appointments {
		r.appointments[a.ID] = cloneAppointment(a)
	}
	return nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns the recorded event log in insertion order.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

func sortByStart(appointments []Appointment) {
	sort.Slice(appointments, func(i, j int) bool {
		if appointments[i].StartTime.Equal(appointments[j].StartTime) {
			return appointments[i].ID.String() < appointments[j].ID.String()
		}
		return appointments[i].StartTime.Before(appointments[j].StartTime)
	})
}

func cloneProfile(p availability.Profile) availability.Profile {
	clone := p
	clone.WeeklyHours = make(map[time.Weekday]availability.WorkingHours, len(p.WeeklyHours))
	for day, wh := range p.WeeklyHours {
		clone.WeeklyHours[day] = wh
	}
	clone.Breaks = make([]availability.Break, len(p.Breaks))
	for i, b := range p.Breaks {
		b.Days = append([]time.Weekday(nil), b.Days...)
		clone.Breaks[i] = b
	}
	clone.TimeOff = append([]availability.TimeOff(nil), p.TimeOff...)
	return clone
}
