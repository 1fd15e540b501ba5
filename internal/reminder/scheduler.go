// Package reminder derives local reminder triggers from appointments and keeps
// at most one active trigger per appointment.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/appointments/internal/model"
)

// Delivery is the part of the notification capability the scheduler drives.
type Delivery interface {
	HasExactSchedulingCapability(ctx context.Context) (bool, error)
	ScheduleAt(ctx context.Context, at time.Time, id, title, body string) error
	Cancel(ctx context.Context, id string) error
}

// State is the lifecycle position of a trigger.
type State string

const (
	StateNone      State = "none"
	StateScheduled State = "scheduled"
	StateFired     State = "fired"
	StateCancelled State = "cancelled"
)

// Trigger is the scheduler's record of one reminder.
type Trigger struct {
	Handle        string    `json:"handle"`
	AppointmentID model.ID  `json:"appointment_id"`
	AppointmentAt time.Time `json:"appointment_at"`
	FireAt        time.Time `json:"fire_at"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	State         State     `json:"state"`
}

// Status classifies the result of ScheduleFor.
type Status string

const (
	StatusScheduled          Status = "scheduled"
	StatusPermissionRequired Status = "permission_required"
	StatusSkipped            Status = "skipped"
	StatusFailed             Status = "failed"
)

// Outcome is what ScheduleFor reports back. Err is set for every status other
// than StatusScheduled and is never meant to fail the caller's operation.
type Outcome struct {
	Status  Status   `json:"status"`
	Trigger *Trigger `json:"trigger,omitempty"`
	Err     error    `json:"-"`
}

// Message is a short user-facing description of the outcome.
func (o Outcome) Message() string {
	switch o.Status {
	case StatusScheduled:
		return "reminder scheduled"
	case StatusPermissionRequired:
		return "allow exact alarms to receive appointment reminders"
	case StatusSkipped:
		return "reminder skipped: appointment date or time is not valid"
	default:
		return "reminder could not be scheduled"
	}
}

// Config holds scheduler settings. Zero values fall back to DefaultLead,
// time.Local and time.Now.
type Config struct {
	Lead     time.Duration
	Location *time.Location
	Now      func() time.Time
}

// Scheduler computes, schedules and cancels reminder triggers. It keeps no
// persistent state of its own; its map is rebuilt from coordinator calls.
type Scheduler struct {
	mu       sync.Mutex
	delivery Delivery
	lead     time.Duration
	loc      *time.Location
	now      func() time.Time
	triggers map[model.ID]*Trigger
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler on top of the given delivery capability.
func NewScheduler(d Delivery, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Lead <= 0 {
		cfg.Lead = DefaultLead
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		delivery: d,
		lead:     cfg.Lead,
		loc:      cfg.Location,
		now:      cfg.Now,
		triggers: make(map[model.ID]*Trigger),
		logger:   logger,
	}
}

// ScheduleFor schedules the reminder for appt. An existing scheduled trigger
// for the same id is cancelled first, so a reschedule never leaves two active.
func (s *Scheduler) ScheduleFor(ctx context.Context, appt model.Appointment) Outcome {
	log := s.logger.With("appointment_id", appt.ID.String())

	if appt.ID == "" {
		err := &MalformedInputError{Field: "id", Value: ""}
		log.Warn("skipping reminder", "error", err)
		return Outcome{Status: StatusSkipped, Err: err}
	}

	exact, err := s.delivery.HasExactSchedulingCapability(ctx)
	if err != nil {
		log.Warn("check exact scheduling capability", "error", err)
		return Outcome{Status: StatusFailed, Err: &DeliveryError{Op: "capability", Err: err}}
	}
	if !exact {
		log.Info("exact scheduling unavailable, reminder not scheduled")
		return Outcome{Status: StatusPermissionRequired, Err: ErrPermissionRequired}
	}

	plan, err := ComputePlan(appt.Date, appt.Time, s.now(), s.lead, s.loc)
	if err != nil {
		log.Warn("skipping reminder", "error", err)
		return Outcome{Status: StatusSkipped, Err: err}
	}

	trigger := &Trigger{
		Handle:        uuid.NewString(),
		AppointmentID: appt.ID,
		AppointmentAt: plan.AppointmentAt,
		FireAt:        plan.FireAt,
		Title:         "Upcoming Appointment: " + appt.Title,
		Body:          strings.TrimSpace(fmt.Sprintf("Your appointment is %s! %s", plan.Phrase, appt.Content)),
		State:         StateScheduled,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(ctx, appt.ID, log)

	if err := s.delivery.ScheduleAt(ctx, trigger.FireAt, appt.ID.String(), trigger.Title, trigger.Body); err != nil {
		log.Error("schedule reminder", "error", err)
		return Outcome{Status: StatusFailed, Err: &DeliveryError{Op: "schedule", Err: err}}
	}
	s.triggers[appt.ID] = trigger

	log.Info("reminder scheduled", "fire_at", trigger.FireAt, "clamped", plan.Clamped, "handle", trigger.Handle)
	cp := *trigger
	return Outcome{Status: StatusScheduled, Trigger: &cp}
}

// Cancel cancels the reminder for id. Cancelling an id with no scheduled
// trigger is a no-op; delivery failures are logged.
func (s *Scheduler) Cancel(ctx context.Context, id model.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(ctx, id, s.logger.With("appointment_id", id.String()))
}

// cancelLocked always asks the delivery layer to cancel, since it may hold a
// trigger from before this scheduler was created.
func (s *Scheduler) cancelLocked(ctx context.Context, id model.ID, log *slog.Logger) {
	if id == "" {
		return
	}
	if err := s.delivery.Cancel(ctx, id.String()); err != nil {
		log.Warn("cancel reminder", "error", &DeliveryError{Op: "cancel", Err: err})
	}
	if t, ok := s.triggers[id]; ok && t.State == StateScheduled {
		t.State = StateCancelled
		log.Debug("reminder cancelled", "handle", t.Handle)
	}
}

// MarkFired records that the delivery layer fired the trigger for id.
func (s *Scheduler) MarkFired(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.triggers[model.ID(id)]; ok && t.State == StateScheduled {
		t.State = StateFired
	}
}

// State returns the state of the latest trigger for id.
func (s *Scheduler) State(id model.ID) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.triggers[id]; ok {
		return t.State
	}
	return StateNone
}

// Active returns the scheduled trigger for id, if any.
func (s *Scheduler) Active(id model.ID) (Trigger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[id]
	if !ok || t.State != StateScheduled {
		return Trigger{}, false
	}
	return *t, true
}

// Triggers returns a snapshot of every tracked trigger ordered by fire time.
func (s *Scheduler) Triggers() []Trigger {
	s.mu.Lock()
	out := make([]Trigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, *t)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].AppointmentID < out[j].AppointmentID
	})
	return out
}

// IsPermissionRequired reports whether err means exact scheduling is unavailable.
func IsPermissionRequired(err error) bool {
	return errors.Is(err, ErrPermissionRequired)
}
