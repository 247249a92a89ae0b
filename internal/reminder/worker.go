package reminder

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/notify"
)

// Worker periodically hands appointments that need a reminder to the notifier and
// marks them sent, so each appointment is reminded at most once.
type Worker struct {
	svc      *appointment.Service
	notifier notify.Notifier
	lead     time.Duration
	logger   *zap.Logger
}

func NewWorker(svc *appointment.Service, notifier notify.Notifier, lead time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		svc:      svc,
		notifier: notifier,
		lead:     lead,
		logger:   logger,
	}
}

// Stats summarises one pass.
type Stats struct {
	Practitioners int
	Sent          int
	Skipped       int
	Failed        int
}

// Run executes a pass immediately and then every interval until ctx is done.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	w.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	stats, err := w.RunOnce(runCtx)
	if err != nil {
		w.logger.Error("reminder run failed", zap.Error(err))
		return
	}
	w.logger.Info("reminder run complete",
		zap.Int("practitioners", stats.Practitioners),
		zap.Int("sent", stats.Sent),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", time.Since(start)),
	)
}

// RunOnce processes every practitioner once. A failure for one appointment or
// practitioner is logged and does not stop the pass.
func (w *Worker) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	practitioners, err := w.svc.Practitioners(ctx)
	if err != nil {
		return stats, err
	}
	stats.Practitioners = len(practitioners)

	for _, pid := range practitioners {
		due, err := w.svc.NeedingReminders(ctx, pid, w.lead)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			w.logger.Warn("load reminders failed", zap.String("practitioner_id", pid.String()), zap.Error(err))
			continue
		}

		for _, a := range due {
			err := w.notifier.Notify(ctx, notify.Reminder{
				AppointmentID:  a.ID,
				PractitionerID: a.PractitionerID,
				ClientID:       a.ClientID,
				ServiceType:    a.ServiceType,
				StartTime:      a.StartTime,
			})
			if err == nil {
				_, err = w.svc.MarkReminderSent(ctx, a.ID)
			}
			if errors.Is(err, appointment.ErrReminderNotDue) {
				// Cancelled or reminded by another worker while we were notifying.
				stats.Skipped++
				w.logger.Debug("reminder no longer due", zap.String("appointment_id", a.ID.String()), zap.Error(err))
				continue
			}
			if err != nil {
				stats.Failed++
				w.logger.Warn("reminder not delivered",
					zap.String("appointment_id", a.ID.String()),
					zap.String("kind", appointment.ErrorKind(err)),
					zap.Error(err),
				)
				continue
			}
			stats.Sent++
		}
	}
	return stats, nil
}
