package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/availability"
)

// Repository contains all storage interactions needed by the service. Every call
// either succeeds or fails as a whole; SaveBatch commits all appointments or none.
type Repository interface {
	LoadProfile(ctx context.Context, practitionerID uuid.UUID) (*availability.Profile, error)
	ListPractitioners(ctx context.Context) ([]uuid.UUID, error)

	// For conflict checks and queries
	LoadAppointments(ctx context.Context, practitionerID uuid.UUID) ([]Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Creation and updates, both upserts
	SaveAppointment(ctx context.Context, a Appointment) error
	SaveBatch(ctx context.Context, appointments []Appointment) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// ProfileStore is the configuration surface through which practitioners maintain
// their availability. The scheduling service never writes profiles.
type ProfileStore interface {
	SaveProfile(ctx context.Context, profile availability.Profile) error
}
