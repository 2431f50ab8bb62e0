// Package reminder sends WhatsApp reminders for upcoming appointments.
//
// A cron-scheduled sweep finds appointments falling due within the lookahead
// window and pushes one reminder message per appointment through the
// messaging service. The sweep is best-effort: a failed send is logged and
// retried naturally on the next run.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labflowhq/labflow/internal/messaging"
	"github.com/labflowhq/labflow/internal/models"
	"github.com/labflowhq/labflow/internal/scheduler"
	"github.com/labflowhq/labflow/internal/store"
)

// DefaultLookahead is how far ahead of the scheduled time a reminder fires.
const DefaultLookahead = 24 * time.Hour

// Service runs the periodic reminder sweep.
type Service struct {
	store     store.Store
	msg       messaging.Service
	sched     *scheduler.Scheduler
	lookahead time.Duration
	now       func() time.Time
}

// NewService creates a reminder service over the given scheduler.
func NewService(st store.Store, msg messaging.Service, sched *scheduler.Scheduler) *Service {
	return &Service{
		store:     st,
		msg:       msg,
		sched:     sched,
		lookahead: DefaultLookahead,
		now:       time.Now,
	}
}

// Start registers the sweep under the given cron expression.
func (s *Service) Start(cronExpr string) error {
	if err := s.sched.AddJob(cronExpr, s.Sweep); err != nil {
		return fmt.Errorf("failed to schedule reminder sweep: %w", err)
	}
	slog.Info("Reminder sweep scheduled", "cron", cronExpr, "lookahead", s.lookahead)
	return nil
}

// Sweep sends one reminder for every appointment due within the lookahead
// window. Only appointments still awaiting their visit are reminded.
func (s *Service) Sweep() {
	now := s.now()
	appointments, err := s.store.ListAppointmentsBetween(now, now.Add(s.lookahead))
	if err != nil {
		slog.Error("Reminder sweep listing failed", "error", err)
		return
	}

	sent := 0
	for _, appt := range appointments {
		if appt.Status != models.AppointmentStatusPending && appt.Status != models.AppointmentStatusHome {
			continue
		}
		user, err := s.store.GetUserByID(appt.PatientID)
		if err != nil {
			slog.Error("Reminder sweep user lookup failed", "error", err, "patientID", appt.PatientID)
			continue
		}
		if user == nil {
			slog.Warn("Reminder sweep appointment has no user", "appointmentID", appt.ID, "patientID", appt.PatientID)
			continue
		}
		if err := s.msg.SendMessage(context.Background(), user.Phone, reminderBody(appt)); err != nil {
			slog.Error("Reminder sweep send failed", "error", err, "appointmentID", appt.ID)
			continue
		}
		sent++
	}
	slog.Info("Reminder sweep finished", "appointments", len(appointments), "sent", sent)
}

func reminderBody(a models.Appointment) string {
	when := a.ScheduledAt.Format("Mon, 2 Jan at 3:04 PM")
	if a.HomeVisit {
		return fmt.Sprintf("🔔 Reminder: our team visits you for your %s on %s.", a.TestType, when)
	}
	return fmt.Sprintf("🔔 Reminder: your %s is scheduled for %s.", a.TestType, when)
}
