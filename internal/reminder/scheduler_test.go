package reminder

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/appointments/internal/model"
)

type scheduled struct {
	at          time.Time
	title, body string
}

// fakeDelivery records triggers and fires them when its clock is advanced.
type fakeDelivery struct {
	mu          sync.Mutex
	now         time.Time
	exact       bool
	capErr      error
	scheduleErr error
	cancelErr   error
	pending     map[string]scheduled
	fired       []string
	cancels     []string
}

func newFakeDelivery(now time.Time) *fakeDelivery {
	return &fakeDelivery{now: now, exact: true, pending: make(map[string]scheduled)}
}

func (f *fakeDelivery) HasExactSchedulingCapability(ctx context.Context) (bool, error) {
	return f.exact, f.capErr
}

func (f *fakeDelivery) ScheduleAt(ctx context.Context, at time.Time, id, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduleErr != nil {
		return f.scheduleErr
	}
	f.pending[id] = scheduled{at: at, title: title, body: body}
	return nil
}

func (f *fakeDelivery) Cancel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, id)
	if f.cancelErr != nil {
		return f.cancelErr
	}
	delete(f.pending, id)
	return nil
}

func (f *fakeDelivery) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward and fires everything that came due.
func (f *fakeDelivery) Advance(d time.Duration) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	var due []string
	for id, s := range f.pending {
		if !s.at.After(f.now) {
			due = append(due, id)
			delete(f.pending, id)
		}
	}
	sort.Strings(due)
	f.fired = append(f.fired, due...)
	return due
}

func newTestScheduler(d *fakeDelivery) *Scheduler {
	return NewScheduler(d, Config{Location: time.UTC, Now: d.Now}, slog.Default())
}

func checkup() model.Appointment {
	return model.Appointment{ID: "1", Title: "Checkup", Content: "Bring your card.", Date: "2025-01-01", Time: "14:00"}
}

func TestScheduleForFutureAppointment(t *testing.T) {
	d := newFakeDelivery(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	s := newTestScheduler(d)

	out := s.ScheduleFor(context.Background(), checkup())
	if out.Status != StatusScheduled {
		t.Fatalf("status = %q, want %q (err %v)", out.Status, StatusScheduled, out.Err)
	}

	got, ok := d.pending["1"]
	if !ok {
		t.Fatal("expected trigger for id 1")
	}
	if want := time.Date(2025, 1, 1, 13, 55, 0, 0, time.UTC); !got.at.Equal(want) {
		t.Errorf("fire at = %v, want %v", got.at, want)
	}
	if got.title != "Upcoming Appointment: Checkup" {
		t.Errorf("title = %q", got.title)
	}
	if got.body != "Your appointment is in 5 minutes! Bring your card." {
		t.Errorf("body = %q", got.body)
	}
	if out.Trigger == nil || out.Trigger.Handle == "" {
		t.Error("expected trigger with handle in outcome")
	}
	if s.State("1") != StateScheduled {
		t.Errorf("state = %q, want %q", s.State("1"), StateScheduled)
	}
}

func TestScheduleForClampsInsideLeadWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 13, 57, 0, 0, time.UTC)
	d := newFakeDelivery(now)
	s := newTestScheduler(d)

	appt := checkup()
	appt.Content = ""
	out := s.ScheduleFor(context.Background(), appt)
	if out.Status != StatusScheduled {
		t.Fatalf("status = %q, want scheduled", out.Status)
	}

	got := d.pending["1"]
	if want := now.Add(time.Second); !got.at.Equal(want) {
		t.Errorf("fire at = %v, want %v", got.at, want)
	}
	if got.body != "Your appointment is in 3 minutes!" {
		t.Errorf("body = %q", got.body)
	}
}

func TestScheduleForPermissionRequired(t *testing.T) {
	d := newFakeDelivery(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	d.exact = false
	s := newTestScheduler(d)

	out := s.ScheduleFor(context.Background(), checkup())
	if out.Status != StatusPermissionRequired {
		t.Fatalf("status = %q, want %q", out.Status, StatusPermissionRequired)
	}
	if !IsPermissionRequired(out.Err) {
		t.Errorf("err = %v, want ErrPermissionRequired", out.Err)
	}
	if len(d.pending) != 0 {
		t.Error("expected nothing scheduled without permission")
	}
	if s.State("1") != StateNone {
		t.Errorf("state = %q, want none", s.State("1"))
	}
}

func TestScheduleForMalformedInputSkips(t *testing.T) {
	d := newFakeDelivery(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	s := newTestScheduler(d)

	appt := checkup()
	appt.Time = "two o'clock"
	out := s.ScheduleFor(context.Background(), appt)
	if out.Status != StatusSkipped {
		t.Fatalf("status = %q, want skipped", out.Status)
	}
	var mErr *MalformedInputError
	if !errors.As(out.Err, &mErr) {
		t.Errorf("err = %v, want MalformedInputError", out.Err)
	}
	if len(d.pending) != 0 {
		t.Error("expected nothing scheduled for malformed input")
	}
}

func TestScheduleForMissingID(t *testing.T) {
	d := newFakeDelivery(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	s := newTestScheduler(d)

	appt := checkup()
	appt.ID = ""
	if out := s.ScheduleFor(context.Background(), appt); out.Status != StatusSkipped {
		t.Errorf("status = %q, want skipped", out.Status)
	}
}

func TestScheduleForDeliveryFailure(t *testing.T) {
	d := newFakeDelivery(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	d.scheduleErr = errors.New("alarm service unavailable")
	s := newTestScheduler(d)

	out := s.ScheduleFor(context.Background(), checkup())
	if out.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", out.Status)
	}
	var dErr *DeliveryError
	if !errors.As(out.Err, &dErr) || dErr.Op != "schedule" {
		t.Errorf("err = %v, want schedule DeliveryError", out.Err)
	}
	if _, ok := s.Active("1"); ok {
		t.Error("expected no active trigger after delivery failure")
	}
}

func TestScheduleForCapabilityError(t *testing.T) {
	d := newFakeDelivery(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	d.capErr = errors.New("not initialized")
	s := newTestScheduler(d)

	out := s.ScheduleFor(context.Background(), checkup())
	if out.Status != StatusFailed {
		t.Errorf("status = %q, want failed", out.Status)
	}
}

func TestRescheduleLeavesOneActiveTrigger(t *testing.T) {
	d := newFakeDelivery(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	s := newTestScheduler(d)
	ctx := context.Background()

	first := s.ScheduleFor(ctx, checkup())

	moved := checkup()
	moved.Time = "16:00"
	second := s.ScheduleFor(ctx, moved)

	if first.Trigger.Handle == second.Trigger.Handle {
		t.Error("expected a fresh handle for the new trigger")
	}
	if len(d.pending) != 1 {
		t.Fatalf("pending triggers = %d, want 1", len(d.pending))
	}
	if want := time.Date(2025, 1, 1, 15, 55, 0, 0, time.UTC); !d.pending["1"].at.Equal(want) {
		t.Errorf("fire at = %v, want %v", d.pending["1"].at, want)
	}

	active := 0
	for _, tr := range s.Triggers() {
		if tr.State == StateScheduled {
			active++
		}
	}
	if active != 1 {
		t.Errorf("active triggers = %d, want 1", active)
	}
}

func TestCancelThenAdvanceDoesNotFire(t *testing.T) {
	d := newFakeDelivery(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	s := newTestScheduler(d)
	ctx := context.Background()

	s.ScheduleFor(ctx, checkup())
	s.Cancel(ctx, "1")

	if fired := d.Advance(7 * time.Hour); len(fired) != 0 {
		t.Errorf("fired = %v, want none", fired)
	}
	if s.State("1") != StateCancelled {
		t.Errorf("state = %q, want cancelled", s.State("1"))
	}
}

func TestCancelUnknownIsNoop(t *testing.T) {
	d := newFakeDelivery(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	s := newTestScheduler(d)

	s.Cancel(context.Background(), "404")
	if s.State("404") != StateNone {
		t.Errorf("state = %q, want none", s.State("404"))
	}
}

func TestCancelDeliveryErrorIsSwallowed(t *testing.T) {
	d := newFakeDelivery(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	s := newTestScheduler(d)
	ctx := context.Background()

	s.ScheduleFor(ctx, checkup())
	d.cancelErr = errors.New("cancel failed")
	s.Cancel(ctx, "1")

	if s.State("1") != StateCancelled {
		t.Errorf("state = %q, want cancelled", s.State("1"))
	}
}

func TestMarkFired(t *testing.T) {
	d := newFakeDelivery(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	s := newTestScheduler(d)
	ctx := context.Background()

	s.ScheduleFor(ctx, checkup())
	for _, id := range d.Advance(6 * time.Hour) {
		s.MarkFired(id)
	}

	if s.State("1") != StateFired {
		t.Errorf("state = %q, want fired", s.State("1"))
	}
	if _, ok := s.Active("1"); ok {
		t.Error("fired trigger should not be active")
	}

	// A fired trigger cannot be cancelled back into another state.
	s.Cancel(ctx, "1")
	if s.State("1") != StateFired {
		t.Errorf("state after cancel = %q, want fired", s.State("1"))
	}
}

func TestOutcomeMessage(t *testing.T) {
	if got := (Outcome{Status: StatusPermissionRequired}).Message(); got == "" {
		t.Error("expected a remediation message")
	}
}
