package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reminder is what the delivery subsystem needs to tell a client about an appointment.
type Reminder struct {
	AppointmentID  uuid.UUID
	PractitionerID uuid.UUID
	ClientID       uuid.UUID
	ServiceType    string
	StartTime      time.Time
}

// Notifier delivers reminders. Email, SMS and push implementations live outside
// this repository.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// LogNotifier writes reminders to the log instead of delivering them.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, r Reminder) error {
	n.logger.Info("appointment reminder",
		zap.String("appointment_id", r.AppointmentID.String()),
		zap.String("practitioner_id", r.PractitionerID.String()),
		zap.String("client_id", r.ClientID.String()),
		zap.String("service_type", r.ServiceType),
		zap.Time("start_time", r.StartTime),
	)
	return nil
}

// Recorder keeps every reminder it receives. Tests use it as a Notifier.
type Recorder struct {
	mu   sync.Mutex
	sent []Reminder
	Err  error
}

func (r *Recorder) Notify(_ context.Context, rem Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, rem)
	return nil
}

func (r *Recorder) Sent() []Reminder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reminder(nil), r.sent...)
}
