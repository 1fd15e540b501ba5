// Package lifecycle coordinates appointment mutations against the store with
// reminder scheduling and owns the in-memory appointment collection.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/appointments/internal/model"
	"github.com/dukerupert/appointments/internal/reminder"
)

// Store is the remote appointment store.
type Store interface {
	List(ctx context.Context) ([]model.Appointment, error)
	Create(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	Update(ctx context.Context, appt model.Appointment) error
	Delete(ctx context.Context, id model.ID) error
}

// Reminders schedules and cancels per-appointment reminders.
type Reminders interface {
	ScheduleFor(ctx context.Context, appt model.Appointment) reminder.Outcome
	Cancel(ctx context.Context, id model.ID)
}

// Notifier shows confirmation notices.
type Notifier interface {
	DisplayImmediate(ctx context.Context, title, body string) error
}

// ValidationError lists the required fields missing from an appointment.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// Result describes a completed mutation. Reminder is nil for deletes.
type Result struct {
	Appointment model.Appointment `json:"appointment"`
	Reminder    *reminder.Outcome `json:"reminder,omitempty"`
	Warning     string            `json:"warning,omitempty"`
}

// Coordinator runs create, update and delete. After every successful store
// mutation the whole collection is fetched again; it is never patched locally.
type Coordinator struct {
	mu          sync.RWMutex
	store       Store
	reminders   Reminders
	notifier    Notifier
	appts       []model.Appointment
	refreshedAt time.Time
	logger      *slog.Logger
}

// New creates a Coordinator. notifier may be nil.
func New(store Store, reminders Reminders, notifier Notifier, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		reminders: reminders,
		notifier:  notifier,
		appts:     []model.Appointment{},
		logger:    logger,
	}
}

// Create validates and stores input, refreshes the collection and schedules a
// reminder under the id the store assigned.
func (c *Coordinator) Create(ctx context.Context, input model.Appointment) (*Result, error) {
	input.ID = ""
	if missing := input.MissingFields(); len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	created, err := c.store.Create(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	appt := input
	appt.ID = created.ID
	res := &Result{Appointment: appt}

	refreshErr := c.Refresh(ctx)

	c.notify(ctx, "Appointment Created",
		fmt.Sprintf("%q scheduled for %s at %s.", appt.Title, appt.Date, appt.Time))

	if appt.ID == "" {
		res.Warning = "store returned no id; reminder not scheduled"
		c.logger.Warn("no id returned from store, skipping reminder", "title", appt.Title)
	} else {
		out := c.reminders.ScheduleFor(ctx, appt)
		res.Reminder = &out
	}

	if refreshErr != nil {
		return res, refreshErr
	}
	return res, nil
}

// Update stores appt, refreshes the collection and replaces its reminder.
// A reminder failure does not undo the stored update.
func (c *Coordinator) Update(ctx context.Context, appt model.Appointment) (*Result, error) {
	missing := appt.MissingFields()
	if appt.ID == "" {
		missing = append([]string{"id"}, missing...)
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	if err := c.store.Update(ctx, appt); err != nil {
		return nil, fmt.Errorf("update appointment %s: %w", appt.ID, err)
	}
	res := &Result{Appointment: appt}

	refreshErr := c.Refresh(ctx)

	c.notify(ctx, "Appointment Updated",
		fmt.Sprintf("%q rescheduled to %s at %s.", appt.Title, appt.Date, appt.Time))

	c.reminders.Cancel(ctx, appt.ID)
	out := c.reminders.ScheduleFor(ctx, appt)
	res.Reminder = &out

	if refreshErr != nil {
		return res, refreshErr
	}
	return res, nil
}

// Delete removes the appointment, refreshes the collection and cancels its reminder.
func (c *Coordinator) Delete(ctx context.Context, id model.ID) (*Result, error) {
	if id == "" {
		return nil, &ValidationError{Missing: []string{"id"}}
	}

	prior, _ := c.Lookup(id)
	prior.ID = id

	if err := c.store.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete appointment %s: %w", id, err)
	}
	res := &Result{Appointment: prior}

	refreshErr := c.Refresh(ctx)

	title := prior.Title
	if title == "" {
		title = "Appointment"
	}
	c.notify(ctx, "Appointment Deleted", fmt.Sprintf("%q has been cancelled.", title))

	c.reminders.Cancel(ctx, id)

	if refreshErr != nil {
		return res, refreshErr
	}
	return res, nil
}

// Refresh replaces the collection with the store's current list. On failure
// the collection is left as it was. When refreshes overlap, the one that
// completes last wins.
func (c *Coordinator) Refresh(ctx context.Context) error {
	appts, err := c.store.List(ctx)
	if err != nil {
		c.logger.Warn("refresh appointments", "error", err)
		return fmt.Errorf("refresh appointments: %w", err)
	}
	if appts == nil {
		appts = []model.Appointment{}
	}

	c.mu.Lock()
	c.appts = appts
	c.refreshedAt = time.Now()
	c.mu.Unlock()

	c.logger.Debug("appointments refreshed", "count", len(appts))
	return nil
}

// Appointments returns a copy of the collection.
func (c *Coordinator) Appointments() []model.Appointment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Appointment(nil), c.appts...)
}

// RefreshedAt is when the collection was last replaced. Zero means never.
func (c *Coordinator) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}

// Lookup finds an appointment in the collection by id.
func (c *Coordinator) Lookup(id model.ID) (model.Appointment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.appts {
		if a.ID == id {
			return a, true
		}
	}
	return model.Appointment{}, false
}

// DailySlice returns the appointments on the calendar day of day, in
// collection order.
func (c *Coordinator) DailySlice(day time.Time) []model.Appointment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return FilterDay(c.appts, day)
}

// FilterDay keeps the appointments whose date is the calendar day of day.
func FilterDay(appts []model.Appointment, day time.Time) []model.Appointment {
	out := []model.Appointment{}
	for _, a := range appts {
		if a.OnDay(day) {
			out = append(out, a)
		}
	}
	return out
}

func (c *Coordinator) notify(ctx context.Context, title, body string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.DisplayImmediate(ctx, title, body); err != nil {
		c.logger.Warn("display confirmation", "title", title, "error", err)
	}
}
